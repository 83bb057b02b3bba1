package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alligator-inc/alligator-engine/pkg/config"
)

// Collection names used by the annotation pipeline. Field names inside the
// documents are deployment contract; see the repositories package.
const (
	CollectionDataset         = "dataset"
	CollectionTable           = "table"
	CollectionRow             = "row"
	CollectionCandidateScored = "candidateScored"
	CollectionCEA             = "cea"
	CollectionCEAPrelinking   = "ceaPrelinking"
	CollectionCTA             = "cta"
	CollectionCPA             = "cpa"
	CollectionLog             = "log"
)

// DB wraps a mongo client scoped to the engine database.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewConnection connects to the document store, pings it, and ensures the
// indexes every collection relies on.
func NewConnection(ctx context.Context, cfg *config.MongoConfig) (*DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := &DB{client: client, database: client.Database(cfg.Database)}
	if err := db.createIndexes(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Collection returns a handle on the named collection.
func (db *DB) Collection(name string) *mongo.Collection {
	return db.database.Collection(name)
}

// Close disconnects the underlying client.
func (db *DB) Close(ctx context.Context) error {
	if err := db.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	return nil
}

// createIndexes mirrors the query patterns of the artifact collections:
// everything is looked up by (datasetName, tableName [, page]), the worker
// claims row documents by status, and dataset/table identity is unique.
func (db *DB) createIndexes(ctx context.Context) error {
	artifactIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "datasetName", Value: 1}}},
		{Keys: bson.D{{Key: "tableName", Value: 1}}},
		{Keys: bson.D{{Key: "datasetName", Value: 1}, {Key: "tableName", Value: 1}}},
		{Keys: bson.D{{Key: "datasetName", Value: 1}, {Key: "tableName", Value: 1}, {Key: "page", Value: 1}}},
	}
	for _, name := range []string{CollectionCandidateScored, CollectionCEA, CollectionCEAPrelinking, CollectionCTA, CollectionCPA} {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, artifactIndexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}

	rowIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "datasetName", Value: 1}}},
		{Keys: bson.D{{Key: "datasetName", Value: 1}, {Key: "tableName", Value: 1}}},
	}
	if _, err := db.Collection(CollectionRow).Indexes().CreateMany(ctx, rowIndexes); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", CollectionRow, err)
	}

	unique := options.Index().SetUnique(true)
	datasetIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "datasetName", Value: 1}}, Options: unique},
	}
	if _, err := db.Collection(CollectionDataset).Indexes().CreateMany(ctx, datasetIndexes); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", CollectionDataset, err)
	}

	tableIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "datasetName", Value: 1}}},
		{Keys: bson.D{{Key: "tableName", Value: 1}}},
		{Keys: bson.D{{Key: "idJob", Value: 1}}},
		{Keys: bson.D{{Key: "datasetName", Value: 1}, {Key: "tableName", Value: 1}}, Options: unique},
	}
	if _, err := db.Collection(CollectionTable).Indexes().CreateMany(ctx, tableIndexes); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", CollectionTable, err)
	}

	logIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "datasetName", Value: 1}, {Key: "tableName", Value: 1}}},
	}
	if _, err := db.Collection(CollectionLog).Indexes().CreateMany(ctx, logIndexes); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", CollectionLog, err)
	}

	return nil
}
