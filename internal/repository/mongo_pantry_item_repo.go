package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoPantryItemDoc はpantry_itemsコレクションのドキュメント。
type mongoPantryItemDoc struct {
	ID             string    `bson:"_id"`
	OwnerSubjectID string    `bson:"ownerSubjectId"`
	Name           string    `bson:"name"`
	Category       string    `bson:"category"`
	Quantity       float64   `bson:"quantity"`
	Unit           string    `bson:"unit"`
	ExpiryDate     time.Time `bson:"expiryDate"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func newMongoPantryItemDoc(item *model.PantryItem) mongoPantryItemDoc {
	return mongoPantryItemDoc{
		ID:             item.ID,
		OwnerSubjectID: item.OwnerSubjectID,
		Name:           item.Name,
		Category:       string(item.Category),
		Quantity:       item.Quantity,
		Unit:           string(item.Unit),
		ExpiryDate:     toDate(item.ExpiryDate),
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func (d *mongoPantryItemDoc) toModel() *model.PantryItem {
	return &model.PantryItem{
		ID:             d.ID,
		OwnerSubjectID: d.OwnerSubjectID,
		Name:           d.Name,
		Category:       model.Category(d.Category),
		Quantity:       d.Quantity,
		Unit:           model.Unit(d.Unit),
		ExpiryDate:     toDate(d.ExpiryDate.UTC()),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

// MongoPantryItemRepo はMongoDBを使用した食材リポジトリ。
type MongoPantryItemRepo struct {
	coll *mongo.Collection
}

// NewMongoPantryItemRepo はMongoPantryItemRepoを生成する。
func NewMongoPantryItemRepo(coll *mongo.Collection) *MongoPantryItemRepo {
	return &MongoPantryItemRepo{coll: coll}
}

// ownedBy は所有者とIDで1件を特定するフィルタを返す。
func ownedBy(ownerSubjectID, id string) bson.M {
	return bson.M{"_id": id, "ownerSubjectId": ownerSubjectID}
}

// ListByOwner は所有者の食材を賞味期限の昇順で返す。
func (r *MongoPantryItemRepo) ListByOwner(ctx context.Context, ownerSubjectID string) ([]*model.PantryItem, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "expiryDate", Value: 1},
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})

	cur, err := r.coll.Find(ctx, bson.M{"ownerSubjectId": ownerSubjectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pantry items: %w", err)
	}
	defer cur.Close(ctx)

	items := make([]*model.PantryItem, 0)
	for cur.Next(ctx) {
		var doc mongoPantryItemDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode pantry item: %w", err)
		}
		items = append(items, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pantry items: %w", err)
	}

	return items, nil
}

// FindByOwnerAndID は所有者とIDで食材を取得する。見つからない場合はnilを返す。
func (r *MongoPantryItemRepo) FindByOwnerAndID(ctx context.Context, ownerSubjectID, id string) (*model.PantryItem, error) {
	var doc mongoPantryItemDoc
	err := r.coll.FindOne(ctx, ownedBy(ownerSubjectID, id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pantry item: %w", err)
	}
	return doc.toModel(), nil
}

// Create は食材を作成する。
func (r *MongoPantryItemRepo) Create(ctx context.Context, item *model.PantryItem) error {
	if _, err := r.coll.InsertOne(ctx, newMongoPantryItemDoc(item)); err != nil {
		return fmt.Errorf("failed to insert pantry item: %w", err)
	}
	return nil
}

// UpdateByOwnerAndID は指定されたフィールドのみを$setで書き換え、更新後の食材を返す。
// 対象が存在しないか所有者が異なる場合はnilを返す。
func (r *MongoPantryItemRepo) UpdateByOwnerAndID(ctx context.Context, ownerSubjectID, id string, patch model.PantryItemPatch, updatedAt time.Time) (*model.PantryItem, error) {
	set := bson.D{{Key: "updatedAt", Value: updatedAt}}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.Category != nil {
		set = append(set, bson.E{Key: "category", Value: string(*patch.Category)})
	}
	if patch.Quantity != nil {
		set = append(set, bson.E{Key: "quantity", Value: *patch.Quantity})
	}
	if patch.Unit != nil {
		set = append(set, bson.E{Key: "unit", Value: string(*patch.Unit)})
	}
	if patch.ExpiryDate != nil {
		set = append(set, bson.E{Key: "expiryDate", Value: toDate(*patch.ExpiryDate)})
	}

	var doc mongoPantryItemDoc
	err := r.coll.FindOneAndUpdate(ctx,
		ownedBy(ownerSubjectID, id),
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pantry item: %w", err)
	}
	return doc.toModel(), nil
}

// DeleteByOwnerAndID は食材を物理削除し、削除前の食材を返す。
// 対象が存在しないか所有者が異なる場合はnilを返す。
func (r *MongoPantryItemRepo) DeleteByOwnerAndID(ctx context.Context, ownerSubjectID, id string) (*model.PantryItem, error) {
	var doc mongoPantryItemDoc
	err := r.coll.FindOneAndDelete(ctx, ownedBy(ownerSubjectID, id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete pantry item: %w", err)
	}
	return doc.toModel(), nil
}

// compile-time interface check
var _ PantryItemRepository = (*MongoPantryItemRepo)(nil)
