package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/plotmines/internal/mine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB mine store.
type MongoConfig struct {
	URI        string `yaml:"uri"`        // e.g. mongodb://localhost:27017
	Database   string `yaml:"database"`   // e.g. plotmines
	Collection string `yaml:"collection"` // e.g. mines
}

// MongoMineStore keeps one document per mine, keyed by mine id.
type MongoMineStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoMineStore establishes connection and returns the store.
func NewMongoMineStore(cfg MongoConfig) (*MongoMineStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "plotmines"
	}
	if cfg.Collection == "" {
		cfg.Collection = "mines"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	store := &MongoMineStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := store.ensureIndexes(); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func (s *MongoMineStore) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ctxTimeout)
	defer cancel()
	ownerIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "owner.id", Value: 1}},
		Options: options.Index().SetName("owner_id"),
	}
	_, err := s.collection.Indexes().CreateOne(ctx, ownerIdx)
	return err
}

// Load reads every mine document.
func (s *MongoMineStore) Load(ctx context.Context) ([]mine.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ctxTimeout)
	defer cancel()

	cur, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find mines: %w", err)
	}
	defer cur.Close(ctx)

	var records []mine.Record
	for cur.Next(ctx) {
		var r mine.Record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("%w: mine document without _id", ErrCorruptState)
		}
		records = append(records, r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return records, nil
}

// SaveAll upserts every record, then removes documents missing from the set.
// A failure between the two steps leaves stale extras, never an empty collection.
func (s *MongoMineStore) SaveAll(ctx context.Context, records []mine.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.ctxTimeout)
	defer cancel()

	models, stale := mongoSaveModels(records)
	if len(models) > 0 {
		opts := options.BulkWrite().SetOrdered(false)
		if _, err := s.collection.BulkWrite(ctx, models, opts); err != nil {
			return fmt.Errorf("mongo upsert mines: %w", err)
		}
	}
	if _, err := s.collection.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("mongo prune mines: %w", err)
	}
	return nil
}

// mongoSaveModels builds one upserting replace per record and the filter
// matching documents whose _id is not in the set.
func mongoSaveModels(records []mine.Record) ([]mongo.WriteModel, bson.M) {
	models := make([]mongo.WriteModel, 0, len(records))
	ids := make(bson.A, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(r).
			SetUpsert(true))
		ids = append(ids, r.ID)
	}
	return models, bson.M{"_id": bson.M{"$nin": ids}}
}

// Close disconnects the client.
func (s *MongoMineStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ctxTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
