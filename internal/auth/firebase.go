package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/pantryman/internal/model"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"

	// 公開鍵取得のタイムアウト
	certsFetchTimeout = 10 * time.Second
	// Cache-Controlが無い場合の公開鍵キャッシュ期間
	defaultCertsMaxAge = time.Hour
	// キャッシュ期限切れ後、再取得を待たずに古い公開鍵で検証を続ける猶予
	maxStaleCerts = 30 * time.Minute
	// 発行時刻・有効期限の時計ずれ許容
	clockSkewLeeway = 30 * time.Second
	// Firebaseのuidの最大長
	maxSubjectLength = 128
)

// FirebaseConfig はFirebase IDトークン検証の設定。
type FirebaseConfig struct {
	ProjectID string
	CertsURL  string

	// テスト用にオーバーライド可能
	HTTPClient *http.Client
	Now        func() time.Time
}

// firebaseClaims はFirebase IDトークンのペイロード。
type firebaseClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// FirebaseVerifier はFirebase AuthenticationのIDトークンをRS256署名で検証する。
// 署名検証用の公開鍵はGoogleのx509証明書エンドポイントから取得し、
// Cache-Controlのmax-ageに従ってキャッシュする。
//
// 証明書の取得はロックの外で行い、同時に必要になった取得はsingleflightで1回にまとめる。
// 期限切れ直後（maxStaleCerts以内）は古い公開鍵で検証を続け、再取得はバックグラウンドで行う。
type FirebaseVerifier struct {
	config FirebaseConfig
	parser *jwt.Parser

	fetches    singleflight.Group
	refreshing atomic.Bool

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	keysUntil time.Time
}

const certsFetchKey = "certs"

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(config FirebaseConfig) *FirebaseVerifier {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: certsFetchTimeout}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuerPrefix+config.ProjectID),
		jwt.WithAudience(config.ProjectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithTimeFunc(config.Now),
	)

	return &FirebaseVerifier{
		config: config,
		parser: parser,
	}
}

// Verify はIDトークンを検証し、本人情報を返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*model.IdentityClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	var claims firebaseClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrKeysUnavailable) {
			return nil, fmt.Errorf("failed to verify token: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if claims.Subject == "" || len(claims.Subject) > maxSubjectLength {
		return nil, fmt.Errorf("%w: invalid sub claim", ErrInvalidCredential)
	}

	return &model.IdentityClaims{
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// publicKey はkidに対応する公開鍵を返す。
// キャッシュが無いか猶予を超えて古い場合は、再取得の完了かctxの終了まで待つ。
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	keys, until := v.keys, v.keysUntil
	v.mu.RUnlock()

	now := v.config.Now()
	switch {
	case keys != nil && now.Before(until):
	case keys != nil && now.Before(until.Add(maxStaleCerts)):
		v.refreshInBackground()
	default:
		var err error
		if keys, err = v.awaitRefresh(ctx); err != nil {
			return nil, err
		}
	}

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

// awaitRefresh は証明書の再取得を待つ。取得自体は呼び出し元のctxに依存しないため、
// 待っている1リクエストがキャンセルされても他の待機者には影響しない。
func (v *FirebaseVerifier) awaitRefresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	select {
	case res := <-v.fetches.DoChan(certsFetchKey, v.refreshKeys):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]*rsa.PublicKey), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeysUnavailable, ctx.Err())
	}
}

// refreshInBackground は証明書の再取得をバックグラウンドで開始する。既に実行中なら何もしない。
func (v *FirebaseVerifier) refreshInBackground() {
	if !v.refreshing.CompareAndSwap(false, true) {
		return
	}
	ch := v.fetches.DoChan(certsFetchKey, v.refreshKeys)
	go func() {
		defer v.refreshing.Store(false)
		if res := <-ch; res.Err != nil {
			slog.Warn("failed to refresh signing keys", slog.String("error", res.Err.Error()))
		}
	}()
}

// refreshKeys は証明書を取得してキャッシュを差し替える。
func (v *FirebaseVerifier) refreshKeys() (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), certsFetchTimeout)
	defer cancel()

	keys, maxAge, err := v.fetchKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}

	v.mu.Lock()
	v.keys = keys
	v.keysUntil = v.config.Now().Add(maxAge)
	v.mu.Unlock()

	return keys, nil
}

// fetchKeys は証明書エンドポイントからkid→公開鍵の対応表を取得する。
func (v *FirebaseVerifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.CertsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read certs response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("certs fetch failed with status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, 0, fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemCert := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemCert))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse certificate %q: %w", kid, err)
		}
		keys[kid] = key
	}

	return keys, parseMaxAge(resp.Header.Get("Cache-Control")), nil
}

// parseMaxAge はCache-Controlヘッダーからmax-ageを取り出す。
// 指定が無い場合はdefaultCertsMaxAgeを返す。
func parseMaxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return defaultCertsMaxAge
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultCertsMaxAge
}

// compile-time interface check
var _ Verifier = (*FirebaseVerifier)(nil)
