package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/hitoshi/pantryman/internal/model"
)

const claimsKeyPrefix = "claims:"

// ErrCacheMiss はキャッシュにエントリが存在しないことを表す。
var ErrCacheMiss = errors.New("cache miss")

// cachedClaims はRedisに保存する検証済みクレームの表現。
type cachedClaims struct {
	SubjectID   string    `json:"sub"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"name,omitempty"`
	PhotoURL    string    `json:"picture,omitempty"`
	ExpiresAt   time.Time `json:"exp"`
}

// ClaimsKey はトークンからキャッシュキーを導出する。
// トークン本体をRedisに置かないよう、BLAKE2b-256ダイジェストを用いる。
func ClaimsKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return claimsKeyPrefix + hex.EncodeToString(sum[:])
}

// GetClaims はトークンに対応する検証済みクレームを取得する。
// 未登録の場合はErrCacheMissを返す。
func (c *Cache) GetClaims(ctx context.Context, token string) (*model.IdentityClaims, error) {
	raw, err := c.client.Get(ctx, ClaimsKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cc cachedClaims
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("failed to decode cached claims: %w", err)
	}

	return &model.IdentityClaims{
		SubjectID:   cc.SubjectID,
		Email:       cc.Email,
		DisplayName: cc.DisplayName,
		PhotoURL:    cc.PhotoURL,
		ExpiresAt:   cc.ExpiresAt,
	}, nil
}

// SetClaims は検証済みクレームをttlの間保存する。
// ttlが0以下の場合は何もしない。
func (c *Cache) SetClaims(ctx context.Context, token string, claims *model.IdentityClaims, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(cachedClaims{
		SubjectID:   claims.SubjectID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		PhotoURL:    claims.PhotoURL,
		ExpiresAt:   claims.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	if err := c.client.Set(ctx, ClaimsKey(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
