// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/pantryman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// requestIDContextKey はリクエストIDを格納するためのキー。
	requestIDContextKey = contextKey("request_id")
	// logFieldsContextKey はアクセスログに追記するフィールドを格納するためのキー。
	logFieldsContextKey = contextKey("log_fields")
)

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil || user.SubjectID == "" {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// RequestIDFromContext はリクエストIDを返す。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// logFields はアクセスログ出力後に判明する値を内側のハンドラーから受け渡すための入れ物。
type logFields struct {
	subjectID string
}

// annotateSubject はアクセスログにSubjectIDを記録する。
// ロギングミドルウェアの外側では何もしない。
func annotateSubject(ctx context.Context, subjectID string) {
	if f, ok := ctx.Value(logFieldsContextKey).(*logFields); ok {
		f.subjectID = subjectID
	}
}
