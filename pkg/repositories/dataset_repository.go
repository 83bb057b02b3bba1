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

// DatasetRepository provides data access for dataset summary documents.
type DatasetRepository interface {
	// Create inserts a new dataset; returns apperrors.ErrConflict when the
	// name is taken.
	Create(ctx context.Context, dataset *models.Dataset) error

	// Ensure creates the dataset if missing and bumps its table count.
	Ensure(ctx context.Context, datasetName string, addedTables int) error

	// List retrieves dataset summaries for one listing page.
	List(ctx context.Context, page int) ([]*models.Dataset, error)

	// GetByName retrieves one dataset; apperrors.ErrNotFound when absent.
	GetByName(ctx context.Context, datasetName string) (*models.Dataset, error)

	// Delete removes the dataset document only; artifact cleanup is the
	// caller's job.
	Delete(ctx context.Context, datasetName string) error
}

type datasetRepository struct {
	db *database.DB
}

// NewDatasetRepository creates a new DatasetRepository.
func NewDatasetRepository(db *database.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

var _ DatasetRepository = (*datasetRepository)(nil)

func (r *datasetRepository) Create(ctx context.Context, dataset *models.Dataset) error {
	_, err := r.db.Collection(database.CollectionDataset).InsertOne(ctx, dataset)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("dataset %s: %w", dataset.DatasetName, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert dataset: %w", err)
	}
	return nil
}

func (r *datasetRepository) Ensure(ctx context.Context, datasetName string, addedTables int) error {
	filter := bson.M{"datasetName": datasetName}
	update := bson.M{
		"$inc": bson.M{"Ntables": addedTables},
		"$setOnInsert": bson.M{
			"datasetName": datasetName,
			"status":      0,
			"%":           0.0,
			"process":     nil,
			"page":        1,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.db.Collection(database.CollectionDataset).UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to ensure dataset %s: %w", datasetName, err)
	}
	return nil
}

func (r *datasetRepository) List(ctx context.Context, page int) ([]*models.Dataset, error) {
	cursor, err := r.db.Collection(database.CollectionDataset).Find(ctx, bson.M{"page": page})
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Dataset
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode datasets: %w", err)
	}
	return out, nil
}

func (r *datasetRepository) GetByName(ctx context.Context, datasetName string) (*models.Dataset, error) {
	var dataset models.Dataset
	err := r.db.Collection(database.CollectionDataset).
		FindOne(ctx, bson.M{"datasetName": datasetName}).
		Decode(&dataset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("dataset %s: %w", datasetName, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &dataset, nil
}

func (r *datasetRepository) Delete(ctx context.Context, datasetName string) error {
	_, err := r.db.Collection(database.CollectionDataset).DeleteOne(ctx, bson.M{"datasetName": datasetName})
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return nil
}
