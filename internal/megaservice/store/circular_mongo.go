package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/pkg/component/mongodb"
)

var _ CircularStore = (*MongoCircularStore)(nil)

// MongoCircularStore 基于 easy_circulars.circulars 集合的通函存储。
type MongoCircularStore struct {
	coll *mongo.Collection
}

// NewMongoCircularStore 创建通函存储。
func NewMongoCircularStore(client *mongodb.Client) *MongoCircularStore {
	return &MongoCircularStore{coll: client.Client().Database(CircularsDB).Collection(CircularsCollection)}
}

// UpdateCircular 实现 CircularStore。
func (s *MongoCircularStore) UpdateCircular(ctx context.Context, id string, patch CircularPatch) error {
	set := bson.M{}
	if patch.Bookmark != nil {
		set["bookmark"] = *patch.Bookmark
	}
	if patch.ConversationID != nil {
		set["conversation_id"] = *patch.ConversationID
	}
	if len(set) == 0 {
		return nil
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update circular: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrCircularNotFound
	}
	return nil
}

// GetCircular 实现 CircularStore。
func (s *MongoCircularStore) GetCircular(ctx context.Context, id string) (*model.Circular, error) {
	var c model.Circular
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCircularNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find circular: %w", err)
	}
	return &c, nil
}

// FindCirculars 实现 CircularStore。
func (s *MongoCircularStore) FindCirculars(ctx context.Context, ids []string) ([]model.Circular, error) {
	if len(ids) == 0 {
		return []model.Circular{}, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// ListCirculars 实现 CircularStore。
func (s *MongoCircularStore) ListCirculars(ctx context.Context, bookmarked bool) ([]model.Circular, error) {
	filter := bson.M{}
	if bookmarked {
		filter["bookmark"] = true
	}
	return s.find(ctx, filter)
}

func (s *MongoCircularStore) find(ctx context.Context, filter bson.M) ([]model.Circular, error) {
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find circulars: %w", err)
	}
	out := []model.Circular{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode circulars: %w", err)
	}
	return out, nil
}
