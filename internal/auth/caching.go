package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/pantryman/internal/cache"
	"github.com/hitoshi/pantryman/internal/model"
)

// ClaimsCache は検証済みクレームのキャッシュインターフェース。
// 未登録の場合はcache.ErrCacheMissを返す。
type ClaimsCache interface {
	GetClaims(ctx context.Context, token string) (*model.IdentityClaims, error)
	SetClaims(ctx context.Context, token string, claims *model.IdentityClaims, ttl time.Duration) error
}

// CachingVerifier は検証結果をキャッシュするVerifierのデコレータ。
// エントリの寿命はttlとトークンの残り有効期間の短い方になる。
// キャッシュ障害時はキャッシュを使わずに検証を続行する。
type CachingVerifier struct {
	next  Verifier
	cache ClaimsCache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachingVerifier はCachingVerifierを生成する。
func NewCachingVerifier(next Verifier, cache ClaimsCache, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{
		next:  next,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Verify はキャッシュを参照し、無ければ下位のVerifierで検証して結果を保存する。
func (v *CachingVerifier) Verify(ctx context.Context, token string) (*model.IdentityClaims, error) {
	claims, err := v.cache.GetClaims(ctx, token)
	switch {
	case err == nil:
		if v.now().Before(claims.ExpiresAt) {
			return claims, nil
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		slog.Warn("claims cache lookup failed",
			slog.String("error", err.Error()),
		)
	}

	claims, err = v.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := v.ttl
	if remaining := claims.ExpiresAt.Sub(v.now()); remaining < ttl {
		ttl = remaining
	}
	if err := v.cache.SetClaims(ctx, token, claims, ttl); err != nil {
		slog.Warn("claims cache store failed",
			slog.String("error", err.Error()),
		)
	}

	return claims, nil
}

// compile-time interface check
var _ Verifier = (*CachingVerifier)(nil)
var _ ClaimsCache = (*cache.Cache)(nil)
