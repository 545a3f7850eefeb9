package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/pantryman/internal/model"
	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindBySubjectID はSubjectIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindBySubjectID(ctx context.Context, subjectID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, subject_id, email, display_name, photo_url, created_at
		 FROM users WHERE subject_id = $1`,
		subjectID,
	).Scan(&user.ID, &user.SubjectID, &user.Email, &user.DisplayName, &user.PhotoURL, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by subject ID: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
// subject_idの一意制約に違反した場合はErrDuplicateを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, subject_id, email, display_name, photo_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.SubjectID, user.Email, user.DisplayName, user.PhotoURL, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
