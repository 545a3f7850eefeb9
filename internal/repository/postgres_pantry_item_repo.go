package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// pantryItemColumns はSELECT/RETURNINGで使用するカラム一覧。scanPantryItemの順序と一致させる。
const pantryItemColumns = `id, owner_subject_id, name, category, quantity, unit, expiry_date, created_at, updated_at`

// PostgresPantryItemRepo はPostgreSQLを使用した食材リポジトリ。
type PostgresPantryItemRepo struct {
	db *sql.DB
}

// NewPostgresPantryItemRepo はPostgresPantryItemRepoを生成する。
func NewPostgresPantryItemRepo(db *sql.DB) *PostgresPantryItemRepo {
	return &PostgresPantryItemRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPantryItem は1行分の食材を読み取る。
func scanPantryItem(s rowScanner) (*model.PantryItem, error) {
	item := &model.PantryItem{}
	var category, unit string
	err := s.Scan(
		&item.ID, &item.OwnerSubjectID, &item.Name, &category, &item.Quantity, &unit,
		&item.ExpiryDate, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Category = model.Category(category)
	item.Unit = model.Unit(unit)
	item.ExpiryDate = toDate(item.ExpiryDate)
	return item, nil
}

// ListByOwner は所有者の食材を賞味期限の昇順で返す。
// 同じ賞味期限の食材は作成順に並べる。
func (r *PostgresPantryItemRepo) ListByOwner(ctx context.Context, ownerSubjectID string) ([]*model.PantryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pantryItemColumns+`
		 FROM pantry_items
		 WHERE owner_subject_id = $1
		 ORDER BY expiry_date ASC, created_at ASC, id ASC`,
		ownerSubjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pantry items: %w", err)
	}
	defer rows.Close()

	items := make([]*model.PantryItem, 0)
	for rows.Next() {
		item, err := scanPantryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pantry item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pantry items: %w", err)
	}

	return items, nil
}

// FindByOwnerAndID は所有者とIDで食材を取得する。見つからない場合はnilを返す。
func (r *PostgresPantryItemRepo) FindByOwnerAndID(ctx context.Context, ownerSubjectID, id string) (*model.PantryItem, error) {
	item, err := scanPantryItem(r.db.QueryRowContext(ctx,
		`SELECT `+pantryItemColumns+`
		 FROM pantry_items
		 WHERE id = $1 AND owner_subject_id = $2`,
		id, ownerSubjectID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pantry item: %w", err)
	}
	return item, nil
}

// Create は食材を作成する。
// DATE型へのタイムゾーン変換を避けるため、賞味期限は日付文字列で渡す。
func (r *PostgresPantryItemRepo) Create(ctx context.Context, item *model.PantryItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pantry_items (id, owner_subject_id, name, category, quantity, unit, expiry_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9)`,
		item.ID, item.OwnerSubjectID, item.Name, string(item.Category), item.Quantity, string(item.Unit),
		item.ExpiryDate.Format(model.DateLayout), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pantry item: %w", err)
	}
	return nil
}

// UpdateByOwnerAndID は指定されたフィールドのみを書き換え、更新後の食材を返す。
// NULLのパラメータはCOALESCEにより既存値を維持する。
// 対象が存在しないか所有者が異なる場合はnilを返す。
func (r *PostgresPantryItemRepo) UpdateByOwnerAndID(ctx context.Context, ownerSubjectID, id string, patch model.PantryItemPatch, updatedAt time.Time) (*model.PantryItem, error) {
	var category, unit, expiry any
	if patch.Category != nil {
		category = string(*patch.Category)
	}
	if patch.Unit != nil {
		unit = string(*patch.Unit)
	}
	if patch.ExpiryDate != nil {
		expiry = patch.ExpiryDate.Format(model.DateLayout)
	}

	item, err := scanPantryItem(r.db.QueryRowContext(ctx,
		`UPDATE pantry_items SET
			name        = COALESCE($3, name),
			category    = COALESCE($4, category),
			quantity    = COALESCE($5, quantity),
			unit        = COALESCE($6, unit),
			expiry_date = COALESCE($7::date, expiry_date),
			updated_at  = $8
		 WHERE id = $1 AND owner_subject_id = $2
		 RETURNING `+pantryItemColumns,
		id, ownerSubjectID, nullable(patch.Name), category, nullable(patch.Quantity), unit, expiry, updatedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pantry item: %w", err)
	}
	return item, nil
}

// DeleteByOwnerAndID は食材を物理削除し、削除前の食材を返す。
// 対象が存在しないか所有者が異なる場合はnilを返す。
func (r *PostgresPantryItemRepo) DeleteByOwnerAndID(ctx context.Context, ownerSubjectID, id string) (*model.PantryItem, error) {
	item, err := scanPantryItem(r.db.QueryRowContext(ctx,
		`DELETE FROM pantry_items
		 WHERE id = $1 AND owner_subject_id = $2
		 RETURNING `+pantryItemColumns,
		id, ownerSubjectID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete pantry item: %w", err)
	}
	return item, nil
}

// nullable はnilポインタをSQLのNULLに、それ以外を値に変換する。
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// compile-time interface check
var _ PantryItemRepository = (*PostgresPantryItemRepo)(nil)
