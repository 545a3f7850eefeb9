package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/pantryman/internal/auth"
	"github.com/hitoshi/pantryman/internal/metrics"
	"github.com/hitoshi/pantryman/internal/model"
)

const bearerScheme = "bearer"

// ClaimsVerifier はベアラートークンの検証に必要なインターフェース。
// auth.Verifierと同じシグネチャを持つ。
type ClaimsVerifier interface {
	Verify(ctx context.Context, token string) (*model.IdentityClaims, error)
}

// UserResolver は検証済みクレームからユーザーを解決するインターフェース。
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, claims *model.IdentityClaims) (*model.User, error)
}

// AuthRecorder は認証結果を記録するインターフェース。
type AuthRecorder interface {
	RecordAuthResult(result string)
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 対応するユーザーをリクエストコンテキストに注入するミドルウェアを返す。
//   - ヘッダーが無い、またはBearerスキームでない場合は401 NO_TOKEN
//   - トークンの検証に失敗した場合は401 INVALID_TOKEN
//   - ユーザーの解決に失敗した場合は500 INTERNAL_ERROR
//
// recorderはnilでもよい。
func NewAuthMiddleware(verifier ClaimsVerifier, resolver UserResolver, recorder AuthRecorder) func(next http.Handler) http.Handler {
	record := func(result string) {
		if recorder != nil {
			recorder.RecordAuthResult(result)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. ベアラートークンを取り出す
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				record(metrics.AuthResultNoToken)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
				return
			}

			// 2. IdPの公開鍵でトークンを検証
			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				record(metrics.AuthResultInvalidToken)
				level := slog.LevelWarn
				if !errors.Is(err, auth.ErrInvalidCredential) {
					level = slog.LevelError
				}
				slog.Log(r.Context(), level, "token verification failed",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			// 3. ローカルユーザーを解決（初回は作成）
			user, err := resolver.ResolveOrCreate(r.Context(), claims)
			if err != nil {
				record(metrics.AuthResultError)
				slog.Error("failed to resolve user",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("subject_id", claims.SubjectID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			record(metrics.AuthResultSuccess)
			annotateSubject(r.Context(), user.SubjectID)

			// 4. 認証済みユーザーをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// bearerToken はAuthorizationヘッダー値からトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
