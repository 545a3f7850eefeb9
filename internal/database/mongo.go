package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBのコレクション名
const (
	MongoUsersCollection       = "users"
	MongoPantryItemsCollection = "pantry_items"
)

// OpenMongo はMongoDBに接続し、指定データベースのハンドルを返す。
// 接続確認のためPingを実行する。
func OpenMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, client.Database(dbName), nil
}

// EnsureMongoIndexes はPostgreSQLのマイグレーションに相当するインデックスを作成する。
// 既に存在する場合は何もしない。
// users.subjectIdのユニークインデックスが同一ユーザーの重複作成を防ぐ。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(MongoUsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subjectId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_subject_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = db.Collection(MongoPantryItemsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ownerSubjectId", Value: 1}, {Key: "expiryDate", Value: 1}},
		Options: options.Index().SetName("idx_owner_expiry"),
	})
	if err != nil {
		return fmt.Errorf("failed to create pantry_items index: %w", err)
	}

	return nil
}
