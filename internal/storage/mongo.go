// Package storage adapts the MongoDB driver behind the narrow capability the
// planner needs: an idempotent connect and pipeline execution.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"smartquery/internal/logging"
)

// Store is the storage capability consumed by the planner.
type Store interface {
	// Connect establishes the connection if needed. Safe to call
	// concurrently and repeatedly.
	Connect(ctx context.Context) error

	// Aggregate executes an aggregation pipeline and returns all documents.
	Aggregate(ctx context.Context, database, collection string, pipeline mongo.Pipeline) ([]bson.M, error)

	// Close tears the connection down.
	Close(ctx context.Context) error
}

// MongoStore implements Store on the official driver.
type MongoStore struct {
	uri            string
	connectTimeout time.Duration
	log            *zap.Logger

	// mu serializes connection setup so exactly one connect attempt
	// proceeds while concurrent callers wait.
	mu     sync.Mutex
	client *mongo.Client
}

// NewMongoStore creates an unconnected store for the given URI.
func NewMongoStore(uri string, connectTimeout time.Duration) *MongoStore {
	if connectTimeout <= 0 {
		connectTimeout = 8 * time.Second
	}
	return &MongoStore{
		uri:            uri,
		connectTimeout: connectTimeout,
		log:            logging.Named("storage"),
	}
}

// Connect establishes and verifies the connection. Already-connected stores
// return immediately.
func (s *MongoStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("storage: connect failed: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("storage: ping failed: %w", err)
	}

	s.client = client
	s.log.Info("connected to mongodb")
	return nil
}

// Aggregate runs the pipeline and drains the cursor.
func (s *MongoStore) Aggregate(ctx context.Context, database, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("storage: not connected")
	}

	cursor, err := client.Database(database).Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("storage: aggregate failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("storage: cursor drain failed: %w", err)
	}
	return docs, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	return err
}
