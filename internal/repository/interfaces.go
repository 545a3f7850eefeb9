// Package repository はデータ永続化のインターフェースと実装を提供する。
// PostgreSQL（lib/pq）とMongoDB（mongo-driver）の2種類の実装を持つ。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
// 同一SubjectIDのユーザーを二重に作成しようとした場合に返される。
var ErrDuplicate = errors.New("repository: duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindBySubjectID はSubjectIDでユーザーを取得する。見つからない場合はnilを返す。
	FindBySubjectID(ctx context.Context, subjectID string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同一SubjectIDのユーザーが既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// PantryItemRepository は食材データの永続化インターフェース。
// すべての操作は所有者のSubjectIDで絞り込まれ、他ユーザーの食材には一切アクセスしない。
type PantryItemRepository interface {
	// ListByOwner は所有者の食材を賞味期限の昇順で返す。
	ListByOwner(ctx context.Context, ownerSubjectID string) ([]*model.PantryItem, error)

	// FindByOwnerAndID は所有者とIDで食材を取得する。見つからない場合はnilを返す。
	FindByOwnerAndID(ctx context.Context, ownerSubjectID, id string) (*model.PantryItem, error)

	// Create は食材を作成する。
	Create(ctx context.Context, item *model.PantryItem) error

	// UpdateByOwnerAndID は指定されたフィールドのみを1回の条件付き更新で書き換え、更新後の食材を返す。
	// 対象が存在しないか所有者が異なる場合はnilを返す。
	UpdateByOwnerAndID(ctx context.Context, ownerSubjectID, id string, patch model.PantryItemPatch, updatedAt time.Time) (*model.PantryItem, error)

	// DeleteByOwnerAndID は食材を物理削除し、削除前の食材を返す。
	// 対象が存在しないか所有者が異なる場合はnilを返す。
	DeleteByOwnerAndID(ctx context.Context, ownerSubjectID, id string) (*model.PantryItem, error)
}

// toDate は日付部分のみを残したUTCの0時に正規化する。
func toDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
