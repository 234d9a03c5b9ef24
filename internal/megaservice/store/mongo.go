package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/pkg/component/mongodb"
)

var _ Store = (*MongoStore)(nil)

// MongoStore MongoDB 会话存储。
type MongoStore struct {
	client *mongodb.Client
}

// NewMongoStore 创建 MongoDB 会话存储。
func NewMongoStore(client *mongodb.Client) *MongoStore {
	return &MongoStore{client: client}
}

func (s *MongoStore) coll(db string) *mongo.Collection {
	return s.client.Collection(db)
}

// Create 实现 Store。
func (s *MongoStore) Create(ctx context.Context, db string, conv *model.Conversation) error {
	if conv.History == nil {
		conv.History = []model.Turn{}
	}
	if _, err := s.coll(db).InsertOne(ctx, conv); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Get 实现 Store。
func (s *MongoStore) Get(ctx context.Context, db, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.coll(db).FindOne(ctx, bson.M{"conversation_id": id}, options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv.History == nil {
		conv.History = []model.Turn{}
	}
	return &conv, nil
}

// AppendTurn 实现 Store。
func (s *MongoStore) AppendTurn(ctx context.Context, db, id string, turn model.Turn, at time.Time) error {
	if turn.Sources == nil {
		turn.Sources = []model.SourceInfo{}
	}
	update := bson.M{
		"$push":        bson.M{"history": turn},
		"$set":         bson.M{"last_updated": at},
		"$setOnInsert": bson.M{"created_at": at},
	}
	_, err := s.coll(db).UpdateOne(ctx, bson.M{"conversation_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("append conversation turn: %w", err)
	}
	return nil
}

// Delete 实现 Store。
func (s *MongoStore) Delete(ctx context.Context, db, id string) error {
	res, err := s.coll(db).DeleteOne(ctx, bson.M{"conversation_id": id})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List 实现 Store。
func (s *MongoStore) List(ctx context.Context, db string, limit, skip int) ([]model.Conversation, int64, error) {
	coll := s.coll(db)

	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "last_updated", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}

	convs := []model.Conversation{}
	if err := cur.All(ctx, &convs); err != nil {
		return nil, 0, fmt.Errorf("decode conversations: %w", err)
	}

	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}
	return convs, total, nil
}

// Ping 实现 Store。
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
