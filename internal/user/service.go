// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/repository"
)

// Service はユーザーディレクトリのサービス層。
// IdPのSubjectIDとローカルのユーザーレコードを対応付ける。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// ResolveOrCreate は検証済みクレームに対応するユーザーを返す。
// 未登録の場合はクレームの内容でユーザーを作成する。既存ユーザーのプロフィールは更新しない。
// 同一SubjectIDの同時初回ログインで作成が競合した場合は、先に作成されたレコードを返す。
func (s *Service) ResolveOrCreate(ctx context.Context, claims *model.IdentityClaims) (*model.User, error) {
	user, err := s.userRepo.FindBySubjectID(ctx, claims.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user != nil {
		return user, nil
	}

	newUser := &model.User{
		ID:          uuid.New().String(),
		SubjectID:   claims.SubjectID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		PhotoURL:    claims.PhotoURL,
		CreatedAt:   s.now().UTC(),
	}

	err = s.userRepo.Create(ctx, newUser)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, findErr := s.userRepo.FindBySubjectID(ctx, claims.SubjectID)
		if findErr != nil {
			return nil, fmt.Errorf("ユーザーの再取得に失敗しました: %w", findErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("ユーザーの作成が競合しましたが既存レコードが見つかりません: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", newUser.ID),
		slog.String("subject_id", newUser.SubjectID),
	)

	return newUser, nil
}
