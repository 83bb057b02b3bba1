package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/database"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// TableRepository provides data access for table summary documents.
// Tables are unique by (datasetName, tableName).
type TableRepository interface {
	// Upsert inserts the table or refreshes its row count and job id.
	Upsert(ctx context.Context, table *models.Table) error

	// ListByDataset retrieves table summaries for one listing page of a dataset.
	ListByDataset(ctx context.Context, datasetName string, page int) ([]*models.Table, error)

	// Get retrieves one table; apperrors.ErrNotFound when absent.
	Get(ctx context.Context, datasetName, tableName string) (*models.Table, error)

	// UpdateStatus sets the table-level processing status.
	UpdateStatus(ctx context.Context, datasetName, tableName, status string) error

	// Delete removes one table document.
	Delete(ctx context.Context, datasetName, tableName string) error

	// DeleteByDataset removes all table documents of a dataset.
	DeleteByDataset(ctx context.Context, datasetName string) error
}

type tableRepository struct {
	db *database.DB
}

// NewTableRepository creates a new TableRepository.
func NewTableRepository(db *database.DB) TableRepository {
	return &tableRepository{db: db}
}

var _ TableRepository = (*tableRepository)(nil)

func (r *tableRepository) Upsert(ctx context.Context, table *models.Table) error {
	filter := bson.M{"datasetName": table.DatasetName, "tableName": table.TableName}
	update := bson.M{
		"$set": bson.M{
			"Nrows":  table.NRows,
			"status": table.Status,
			"page":   table.Page,
			"idJob":  table.IDJob,
		},
		"$setOnInsert": bson.M{
			"datasetName": table.DatasetName,
			"tableName":   table.TableName,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.db.Collection(database.CollectionTable).UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert table %s/%s: %w", table.DatasetName, table.TableName, err)
	}
	return nil
}

func (r *tableRepository) ListByDataset(ctx context.Context, datasetName string, page int) ([]*models.Table, error) {
	filter := bson.M{"datasetName": datasetName, "page": page}
	cursor, err := r.db.Collection(database.CollectionTable).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Table
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tables: %w", err)
	}
	return out, nil
}

func (r *tableRepository) Get(ctx context.Context, datasetName, tableName string) (*models.Table, error) {
	var table models.Table
	err := r.db.Collection(database.CollectionTable).
		FindOne(ctx, bson.M{"datasetName": datasetName, "tableName": tableName}).
		Decode(&table)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("table %s/%s: %w", datasetName, tableName, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return &table, nil
}

func (r *tableRepository) UpdateStatus(ctx context.Context, datasetName, tableName, status string) error {
	filter := bson.M{"datasetName": datasetName, "tableName": tableName}
	update := bson.M{"$set": bson.M{"status": status}}
	if _, err := r.db.Collection(database.CollectionTable).UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to update table status: %w", err)
	}
	return nil
}

func (r *tableRepository) Delete(ctx context.Context, datasetName, tableName string) error {
	filter := bson.M{"datasetName": datasetName, "tableName": tableName}
	if _, err := r.db.Collection(database.CollectionTable).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	return nil
}

func (r *tableRepository) DeleteByDataset(ctx context.Context, datasetName string) error {
	if _, err := r.db.Collection(database.CollectionTable).DeleteMany(ctx, bson.M{"datasetName": datasetName}); err != nil {
		return fmt.Errorf("failed to delete tables of dataset %s: %w", datasetName, err)
	}
	return nil
}
