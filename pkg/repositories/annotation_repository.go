package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alligator-inc/alligator-engine/pkg/database"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// AnnotationRepository persists and serves the decision-stage artifacts:
// candidateScored, ceaPrelinking, cea, cta, cpa.
type AnnotationRepository interface {
	// StorePageArtifacts writes all artifacts of one page. It runs before the
	// page flips to DONE, so a DONE page always has its full artifact set.
	StorePageArtifacts(ctx context.Context, artifacts *models.PageArtifacts) error

	// FindCEA returns the CEA documents of a table (optionally one page),
	// ordered by (page, row).
	FindCEA(ctx context.Context, datasetName, tableName string, page *int) ([]*models.CEADoc, error)

	// CountCEA returns how many CEA row documents a table has.
	CountCEA(ctx context.Context, datasetName, tableName string, page *int) (int64, error)

	// FindCTA / FindCPA return one page-level decision document, or nil when
	// the page produced no such artifact content.
	FindCTA(ctx context.Context, datasetName, tableName string, page *int) (*models.CTADoc, error)
	FindCPA(ctx context.Context, datasetName, tableName string, page *int) (*models.CPADoc, error)

	// DeleteByTable / DeleteByDataset remove artifacts wholesale.
	DeleteByTable(ctx context.Context, datasetName, tableName string) error
	DeleteByDataset(ctx context.Context, datasetName string) error
}

type annotationRepository struct {
	db *database.DB
}

// NewAnnotationRepository creates a new AnnotationRepository.
func NewAnnotationRepository(db *database.DB) AnnotationRepository {
	return &annotationRepository{db: db}
}

var _ AnnotationRepository = (*annotationRepository)(nil)

func (r *annotationRepository) StorePageArtifacts(ctx context.Context, artifacts *models.PageArtifacts) error {
	if err := insertMany(ctx, r.db.Collection(database.CollectionCandidateScored), artifacts.CandidateScored); err != nil {
		return fmt.Errorf("failed to store candidateScored: %w", err)
	}
	if err := insertMany(ctx, r.db.Collection(database.CollectionCEAPrelinking), artifacts.CEAPrelinking); err != nil {
		return fmt.Errorf("failed to store ceaPrelinking: %w", err)
	}
	if err := insertMany(ctx, r.db.Collection(database.CollectionCEA), artifacts.CEA); err != nil {
		return fmt.Errorf("failed to store cea: %w", err)
	}
	if artifacts.CTA != nil {
		if _, err := r.db.Collection(database.CollectionCTA).InsertOne(ctx, artifacts.CTA); err != nil {
			return fmt.Errorf("failed to store cta: %w", err)
		}
	}
	if artifacts.CPA != nil {
		if _, err := r.db.Collection(database.CollectionCPA).InsertOne(ctx, artifacts.CPA); err != nil {
			return fmt.Errorf("failed to store cpa: %w", err)
		}
	}
	return nil
}

func insertMany[T any](ctx context.Context, coll *mongo.Collection, docs []T) error {
	if len(docs) == 0 {
		return nil
	}
	anyDocs := make([]any, len(docs))
	for i, d := range docs {
		anyDocs[i] = d
	}
	_, err := coll.InsertMany(ctx, anyDocs)
	return err
}

func tableFilter(datasetName, tableName string, page *int) bson.M {
	filter := bson.M{"datasetName": datasetName, "tableName": tableName}
	if page != nil {
		filter["page"] = *page
	}
	return filter
}

func (r *annotationRepository) FindCEA(ctx context.Context, datasetName, tableName string, page *int) ([]*models.CEADoc, error) {
	opts := options.Find().SetSort(bson.D{{Key: "page", Value: 1}, {Key: "row", Value: 1}})
	cursor, err := r.db.Collection(database.CollectionCEA).Find(ctx, tableFilter(datasetName, tableName, page), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query cea: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.CEADoc
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cea: %w", err)
	}
	return out, nil
}

func (r *annotationRepository) CountCEA(ctx context.Context, datasetName, tableName string, page *int) (int64, error) {
	n, err := r.db.Collection(database.CollectionCEA).CountDocuments(ctx, tableFilter(datasetName, tableName, page))
	if err != nil {
		return 0, fmt.Errorf("failed to count cea: %w", err)
	}
	return n, nil
}

func (r *annotationRepository) FindCTA(ctx context.Context, datasetName, tableName string, page *int) (*models.CTADoc, error) {
	var doc models.CTADoc
	err := r.db.Collection(database.CollectionCTA).FindOne(ctx, tableFilter(datasetName, tableName, page)).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cta: %w", err)
	}
	return &doc, nil
}

func (r *annotationRepository) FindCPA(ctx context.Context, datasetName, tableName string, page *int) (*models.CPADoc, error) {
	var doc models.CPADoc
	err := r.db.Collection(database.CollectionCPA).FindOne(ctx, tableFilter(datasetName, tableName, page)).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cpa: %w", err)
	}
	return &doc, nil
}

func (r *annotationRepository) DeleteByTable(ctx context.Context, datasetName, tableName string) error {
	return r.deleteWhere(ctx, bson.M{"datasetName": datasetName, "tableName": tableName})
}

func (r *annotationRepository) DeleteByDataset(ctx context.Context, datasetName string) error {
	return r.deleteWhere(ctx, bson.M{"datasetName": datasetName})
}

func (r *annotationRepository) deleteWhere(ctx context.Context, filter bson.M) error {
	collections := []string{
		database.CollectionCandidateScored,
		database.CollectionCEAPrelinking,
		database.CollectionCEA,
		database.CollectionCTA,
		database.CollectionCPA,
	}
	for _, name := range collections {
		if _, err := r.db.Collection(name).DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("failed to delete %s artifacts: %w", name, err)
		}
	}
	return nil
}
