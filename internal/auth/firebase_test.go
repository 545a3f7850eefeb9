package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testProjectID = "pantry-test"
	testKID       = "test-kid"
)

// testIssuer はテスト用の署名鍵と証明書エンドポイントを保持する。
type testIssuer struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
	now      time.Time
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	ti := &testIssuer{
		key: key,
		now: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	certPEM := selfSignedCert(t, key, ti.now)

	ti.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ti.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		json.NewEncoder(w).Encode(map[string]string{testKID: certPEM})
	}))
	t.Cleanup(ti.server.Close)

	return ti
}

func selfSignedCert(t *testing.T, key *rsa.PrivateKey, now time.Time) string {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func (ti *testIssuer) verifier() *FirebaseVerifier {
	return NewFirebaseVerifier(FirebaseConfig{
		ProjectID: testProjectID,
		CertsURL:  ti.server.URL,
		Now:       func() time.Time { return ti.now },
	})
}

// validClaims は検証に成功するクレームを返す。
func (ti *testIssuer) validClaims() firebaseClaims {
	return firebaseClaims{
		Email:   "cook@example.com",
		Name:    "Cook",
		Picture: "https://example.com/cook.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    firebaseIssuerPrefix + testProjectID,
			Audience:  jwt.ClaimStrings{testProjectID},
			Subject:   "uid-123",
			IssuedAt:  jwt.NewNumericDate(ti.now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(ti.now.Add(time.Hour)),
		},
	}
}

func (ti *testIssuer) sign(t *testing.T, claims firebaseClaims, kid string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(ti.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestFirebaseVerifier_Verify_ValidToken(t *testing.T) {
	ti := newTestIssuer(t)
	v := ti.verifier()

	claims, err := v.Verify(context.Background(), ti.sign(t, ti.validClaims(), testKID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if claims.SubjectID != "uid-123" {
		t.Errorf("SubjectID = %q, want %q", claims.SubjectID, "uid-123")
	}
	if claims.Email != "cook@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "cook@example.com")
	}
	if claims.DisplayName != "Cook" {
		t.Errorf("DisplayName = %q, want %q", claims.DisplayName, "Cook")
	}
	if claims.PhotoURL != "https://example.com/cook.png" {
		t.Errorf("PhotoURL = %q", claims.PhotoURL)
	}
	if !claims.ExpiresAt.Equal(ti.now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, ti.now.Add(time.Hour))
	}
}

func TestFirebaseVerifier_Verify_CachesCerts(t *testing.T) {
	ti := newTestIssuer(t)
	v := ti.verifier()
	token := ti.sign(t, ti.validClaims(), testKID)

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), token); err != nil {
			t.Fatalf("Verify #%d failed: %v", i, err)
		}
	}
	if got := ti.requests.Load(); got != 1 {
		t.Errorf("certs requests = %d, want 1", got)
	}

	// max-age経過後は再取得する
	ti.now = ti.now.Add(2 * time.Hour)
	refreshed := ti.validClaims()
	if _, err := v.Verify(context.Background(), ti.sign(t, refreshed, testKID)); err != nil {
		t.Fatalf("Verify after expiry of cache failed: %v", err)
	}
	if got := ti.requests.Load(); got != 2 {
		t.Errorf("certs requests = %d, want 2", got)
	}
}

func TestFirebaseVerifier_Verify_Rejects(t *testing.T) {
	ti := newTestIssuer(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty token", func() string { return "" }},
		{"malformed token", func() string { return "not.a.jwt" }},
		{"expired", func() string {
			c := ti.validClaims()
			c.ExpiresAt = jwt.NewNumericDate(ti.now.Add(-time.Hour))
			return ti.sign(t, c, testKID)
		}},
		{"wrong audience", func() string {
			c := ti.validClaims()
			c.Audience = jwt.ClaimStrings{"another-project"}
			return ti.sign(t, c, testKID)
		}},
		{"wrong issuer", func() string {
			c := ti.validClaims()
			c.Issuer = "https://evil.example.com/" + testProjectID
			return ti.sign(t, c, testKID)
		}},
		{"empty subject", func() string {
			c := ti.validClaims()
			c.Subject = ""
			return ti.sign(t, c, testKID)
		}},
		{"unknown kid", func() string { return ti.sign(t, ti.validClaims(), "rotated-away") }},
		{"signed by another key", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, ti.validClaims())
			token.Header["kid"] = testKID
			s, err := token.SignedString(otherKey)
			if err != nil {
				t.Fatalf("failed to sign: %v", err)
			}
			return s
		}},
		{"HS256 algorithm", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, ti.validClaims())
			token.Header["kid"] = testKID
			s, err := token.SignedString([]byte("secret"))
			if err != nil {
				t.Fatalf("failed to sign: %v", err)
			}
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ti.verifier()
			claims, err := v.Verify(context.Background(), tt.token())
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("err = %v, want ErrInvalidCredential", err)
			}
			if claims != nil {
				t.Errorf("claims = %+v, want nil", claims)
			}
		})
	}
}

// 証明書エンドポイントの障害はトークン不正と区別して返す
func TestFirebaseVerifier_Verify_CertsEndpointDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ti := newTestIssuer(t)
	v := NewFirebaseVerifier(FirebaseConfig{
		ProjectID: testProjectID,
		CertsURL:  server.URL,
		Now:       func() time.Time { return ti.now },
	})

	_, err := v.Verify(context.Background(), ti.sign(t, ti.validClaims(), testKID))
	if !errors.Is(err, ErrKeysUnavailable) {
		t.Errorf("err = %v, want ErrKeysUnavailable", err)
	}
	if errors.Is(err, ErrInvalidCredential) {
		t.Errorf("endpoint failure should not be reported as an invalid credential: %v", err)
	}
}

// stallingCertsServer は最初の1回だけ証明書を返し、以降はreleaseが閉じられるまで応答しない。
func stallingCertsServer(t *testing.T, certPEM string) (url string, requests *atomic.Int32) {
	t.Helper()

	requests = &atomic.Int32{}
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) > 1 {
			<-release
		}
		w.Header().Set("Cache-Control", "max-age=3600")
		json.NewEncoder(w).Encode(map[string]string{testKID: certPEM})
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	return server.URL, requests
}

func TestFirebaseVerifier_Verify_StaleKeysServeWhileRefreshHangs(t *testing.T) {
	ti := newTestIssuer(t)
	url, requests := stallingCertsServer(t, selfSignedCert(t, ti.key, ti.now))

	now := ti.now
	v := NewFirebaseVerifier(FirebaseConfig{
		ProjectID: testProjectID,
		CertsURL:  url,
		Now:       func() time.Time { return now },
	})
	if _, err := v.Verify(context.Background(), ti.sign(t, ti.validClaims(), testKID)); err != nil {
		t.Fatalf("initial Verify failed: %v", err)
	}

	// キャッシュ期限の直後。再取得は応答しないまま止まる
	ti.now = ti.now.Add(61 * time.Minute)
	now = ti.now
	token := ti.sign(t, ti.validClaims(), testKID)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := v.Verify(ctx, token)
			errs <- err
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("Verify #%d failed: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("Verify #%d blocked behind the hanging certs refresh", i)
		}
	}

	// バックグラウンドの再取得は1回だけ発行される
	deadline := time.Now().Add(time.Second)
	for requests.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("certs requests = %d, want 2", got)
	}
}

func TestFirebaseVerifier_Verify_HangingFetchIsBoundedByCallerContext(t *testing.T) {
	ti := newTestIssuer(t)
	url, requests := stallingCertsServer(t, selfSignedCert(t, ti.key, ti.now))
	requests.Store(1) // 最初の取得から応答しない

	v := NewFirebaseVerifier(FirebaseConfig{
		ProjectID: testProjectID,
		CertsURL:  url,
		Now:       func() time.Time { return ti.now },
	})
	token := ti.sign(t, ti.validClaims(), testKID)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		start := time.Now()
		_, err := v.Verify(ctx, token)
		cancel()

		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Verify #%d took %v, want it bounded by its own deadline", i, elapsed)
		}
		if !errors.Is(err, ErrKeysUnavailable) {
			t.Errorf("Verify #%d err = %v, want ErrKeysUnavailable", i, err)
		}
	}

	// 2回目の呼び出しは実行中の取得に相乗りする
	if got := requests.Load(); got != 2 {
		t.Errorf("certs requests = %d, want 2", got)
	}
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"public, max-age=19302, must-revalidate, no-transform", 19302 * time.Second},
		{"max-age=60", time.Minute},
		{"no-cache", defaultCertsMaxAge},
		{"", defaultCertsMaxAge},
		{"max-age=abc", defaultCertsMaxAge},
		{"max-age=0", defaultCertsMaxAge},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := parseMaxAge(tt.header); got != tt.want {
				t.Errorf("parseMaxAge(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}
