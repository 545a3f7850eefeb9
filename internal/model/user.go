// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// SubjectIDはIdP（Firebase Authentication）が発行する不変の識別子で、ユーザーごとに一意。
// 作成後にプロフィールを同期することはない。
type User struct {
	ID          string
	SubjectID   string
	Email       string
	DisplayName string
	PhotoURL    string
	CreatedAt   time.Time
}

// IdentityClaims はIDトークンの検証で得られた本人情報を表す。
type IdentityClaims struct {
	SubjectID   string
	Email       string
	DisplayName string
	PhotoURL    string
	ExpiresAt   time.Time
}
