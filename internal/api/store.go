package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrLayoutNotFound is returned when a stored layout does not exist.
var ErrLayoutNotFound = errors.New("layout not found")

// LayoutStore persists finished layouts for later retrieval.
type LayoutStore interface {
	Put(ctx context.Context, l *StoredLayout) error
	Get(ctx context.Context, id string) (*StoredLayout, error)
	Close(ctx context.Context) error
}

// MemoryStore keeps layouts in process memory. Used when no Mongo URI is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	layouts map[string]*StoredLayout
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{layouts: map[string]*StoredLayout{}}
}

// Put stores a layout.
func (s *MemoryStore) Put(ctx context.Context, l *StoredLayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts[l.ID] = l
	return nil
}

// Get retrieves a layout by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*StoredLayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layouts[id]
	if !ok {
		return nil, ErrLayoutNotFound
	}
	return l, nil
}

// Close does nothing.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

// MongoStore persists layouts in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoConfig configures the Mongo connection.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "magga"
	}
	if cfg.Collection == "" {
		cfg.Collection = "layouts"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Put stores a layout, replacing any existing document with the same id.
func (s *MongoStore) Put(ctx context.Context, l *StoredLayout) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": l.ID}, l, opts)
	return err
}

// Get retrieves a layout by id.
func (s *MongoStore) Get(ctx context.Context, id string) (*StoredLayout, error) {
	var l StoredLayout
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrLayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
