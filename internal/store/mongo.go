package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// MongoHistoryStore keeps one document per streamer, keyed by _id.
type MongoHistoryStore struct {
	coll *mongo.Collection
}

// ConnectMongo dials uri and verifies the deployment is reachable.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func NewMongoHistoryStore(coll *mongo.Collection) *MongoHistoryStore {
	return &MongoHistoryStore{coll: coll}
}

func (s *MongoHistoryStore) Get(ctx context.Context, streamerID string) (*domain.StreamerHistory, error) {
	var h domain.StreamerHistory
	err := s.coll.FindOne(ctx, bson.M{"_id": streamerID}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("history %s: %w", streamerID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo findOne %s: %w", streamerID, err)
	}
	if h.History == nil {
		h.History = []domain.DayBucket{}
	}
	return &h, nil
}

func (s *MongoHistoryStore) Create(ctx context.Context, h *domain.StreamerHistory) error {
	doc := *h
	doc.Version = 1
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert %s: %w", h.StreamerID, domain.ErrConflict)
		}
		return fmt.Errorf("mongo insertOne %s: %w", h.StreamerID, err)
	}
	h.Version = doc.Version
	return nil
}

func (s *MongoHistoryStore) Save(ctx context.Context, h *domain.StreamerHistory) error {
	doc := *h
	doc.Version = h.Version + 1
	res, err := s.coll.ReplaceOne(ctx, versionFilter(h.StreamerID, h.Version), doc)
	if err != nil {
		return fmt.Errorf("mongo replaceOne %s: %w", h.StreamerID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("replace %s at version %d: %w", h.StreamerID, h.Version, domain.ErrConflict)
	}
	h.Version = doc.Version
	return nil
}

// versionFilter matches the document at version. Documents written before
// versioning have no version field and count as version 0.
func versionFilter(streamerID string, version int64) bson.M {
	if version == 0 {
		return bson.M{
			"_id": streamerID,
			"$or": bson.A{
				bson.M{"version": 0},
				bson.M{"version": bson.M{"$exists": false}},
			},
		}
	}
	return bson.M{"_id": streamerID, "version": version}
}
