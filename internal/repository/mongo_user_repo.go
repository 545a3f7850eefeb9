package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoUserDoc はusersコレクションのドキュメント。
type mongoUserDoc struct {
	ID          string    `bson:"_id"`
	SubjectID   string    `bson:"subjectId"`
	Email       string    `bson:"email"`
	DisplayName string    `bson:"displayName,omitempty"`
	PhotoURL    string    `bson:"photoURL,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func (d *mongoUserDoc) toModel() *model.User {
	return &model.User{
		ID:          d.ID,
		SubjectID:   d.SubjectID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		PhotoURL:    d.PhotoURL,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
// subjectIdのユニークインデックス（database.EnsureMongoIndexes）を前提とする。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(coll *mongo.Collection) *MongoUserRepo {
	return &MongoUserRepo{coll: coll}
}

// FindBySubjectID はSubjectIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindBySubjectID(ctx context.Context, subjectID string) (*model.User, error) {
	var doc mongoUserDoc
	err := r.coll.FindOne(ctx, bson.M{"subjectId": subjectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by subject ID: %w", err)
	}
	return doc.toModel(), nil
}

// Create はユーザーを作成する。
// ユニークインデックスに違反した場合はErrDuplicateを返す。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.coll.InsertOne(ctx, mongoUserDoc{
		ID:          user.ID,
		SubjectID:   user.SubjectID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		CreatedAt:   user.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
