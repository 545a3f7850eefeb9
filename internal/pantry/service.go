// Package pantry は食材（パントリーアイテム）管理のドメインロジックを提供する。
package pantry

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// DefaultExpiringSoonDays は「期限間近」とみなす日数の既定値。
const DefaultExpiringSoonDays = 7

// Service は食材管理のサービス層。
// すべての操作は呼び出し元（認証済みユーザー）のSubjectIDで絞り込まれる。
type Service struct {
	repo             repository.PantryItemRepository
	expiringSoonDays int
	now              func() time.Time
	newID            func() string
}

// NewService はServiceの新しいインスタンスを生成する。
// expiringSoonDaysが負の場合はDefaultExpiringSoonDaysを用いる。
func NewService(repo repository.PantryItemRepository, expiringSoonDays int) *Service {
	if expiringSoonDays < 0 {
		expiringSoonDays = DefaultExpiringSoonDays
	}
	return &Service{
		repo:             repo,
		expiringSoonDays: expiringSoonDays,
		now:              time.Now,
		newID:            func() string { return ulid.Make().String() },
	}
}

// List は所有者の食材を賞味期限の昇順で返す。
func (s *Service) List(ctx context.Context, owner string) ([]*model.PantryItem, error) {
	items, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("食材一覧の取得に失敗しました: %w", err)
	}
	return items, nil
}

// Get は所有者の食材を1件返す。
// 存在しない場合と他ユーザーの食材の場合は同じNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, owner, id string) (*model.PantryItem, error) {
	if !isItemID(id) {
		return nil, model.NewPantryItemNotFoundError()
	}

	item, err := s.repo.FindByOwnerAndID(ctx, owner, id)
	if err != nil {
		return nil, fmt.Errorf("食材の取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewPantryItemNotFoundError()
	}
	return item, nil
}

// Create は入力を検証して食材を作成する。
// 所有者は引数のownerのみから設定し、入力値からは受け付けない。
func (s *Service) Create(ctx context.Context, owner string, in ItemInput) (*model.PantryItem, error) {
	fields, err := s.validateCreate(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &model.PantryItem{
		ID:             s.newID(),
		OwnerSubjectID: owner,
		Name:           *fields.Name,
		Category:       *fields.Category,
		Quantity:       *fields.Quantity,
		Unit:           *fields.Unit,
		ExpiryDate:     *fields.ExpiryDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("食材の作成に失敗しました: %w", err)
	}
	return item, nil
}

// Update は入力に含まれるフィールドのみを更新し、更新後の食材を返す。
// 更新対象のフィールドが無い場合は現在の食材をそのまま返す。
func (s *Service) Update(ctx context.Context, owner, id string, in ItemInput) (*model.PantryItem, error) {
	if !isItemID(id) {
		return nil, model.NewPantryItemNotFoundError()
	}

	patch, err := s.validatePatch(in)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.Get(ctx, owner, id)
	}

	item, err := s.repo.UpdateByOwnerAndID(ctx, owner, id, patch, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("食材の更新に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewPantryItemNotFoundError()
	}
	return item, nil
}

// Delete は食材を物理削除し、削除前の食材を返す。
func (s *Service) Delete(ctx context.Context, owner, id string) (*model.PantryItem, error) {
	if !isItemID(id) {
		return nil, model.NewPantryItemNotFoundError()
	}

	item, err := s.repo.DeleteByOwnerAndID(ctx, owner, id)
	if err != nil {
		return nil, fmt.Errorf("食材の削除に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewPantryItemNotFoundError()
	}
	return item, nil
}

// Summary は所有者の食材を賞味期限までの日数で分類する。
// 期限切れ: 0日未満、期限間近: 0日以上expiringSoonDays日以下、それ以外は余裕あり。
func (s *Service) Summary(ctx context.Context, owner string) (*model.UrgencySummary, error) {
	items, err := s.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	summary := &model.UrgencySummary{
		Expired:      []*model.PantryItem{},
		ExpiringSoon: []*model.PantryItem{},
		Fresh:        []*model.PantryItem{},
	}

	today := truncateToDate(s.now().UTC())
	for _, item := range items {
		days := DaysUntil(today, item.ExpiryDate)
		switch {
		case days < 0:
			summary.Expired = append(summary.Expired, item)
		case days <= s.expiringSoonDays:
			summary.ExpiringSoon = append(summary.ExpiringSoon, item)
		default:
			summary.Fresh = append(summary.Fresh, item)
		}
	}

	return summary, nil
}

// DaysUntil はtodayからexpiryまでの日数を返す。どちらも日付として扱う。
func DaysUntil(today, expiry time.Time) int {
	return int(truncateToDate(expiry).Sub(truncateToDate(today)).Hours() / 24)
}

// isItemID は文字列が食材IDの形式（ULID）かどうかを返す。
func isItemID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
