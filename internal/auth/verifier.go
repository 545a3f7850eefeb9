// Package auth はIDトークンの検証を提供する。
package auth

import (
	"context"
	"errors"

	"github.com/hitoshi/pantryman/internal/model"
)

// ErrInvalidCredential はトークンが欠落・不正・期限切れ、または署名検証に失敗したことを表す。
var ErrInvalidCredential = errors.New("auth: invalid credential")

// ErrKeysUnavailable は署名検証用の公開鍵を取得できなかったことを表す。
// トークン自体の不正ではないため、ErrInvalidCredentialとは区別する。
var ErrKeysUnavailable = errors.New("auth: signing keys unavailable")

// Verifier はベアラートークンを検証し、本人情報を返すインターフェース。
// トークンに起因する失敗はErrInvalidCredentialを、IdP側の障害はErrKeysUnavailableをラップして返す。
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.IdentityClaims, error)
}
