package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/database"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// PageRepository provides data access for table pages (the row collection).
// A page is the unit of work a worker claims and processes end-to-end.
type PageRepository interface {
	// InsertPages stores freshly ingested pages with status TODO.
	InsertPages(ctx context.Context, pages []*models.TablePage) error

	// ClaimNext atomically transitions one TODO page to DOING and returns it.
	// Returns apperrors.ErrNoWork when nothing is claimable; at most one
	// worker ever owns a page.
	ClaimNext(ctx context.Context) (*models.TablePage, error)

	// CompletePage transitions a DOING page to DONE, storing the elected
	// column tags, target, and execution stats.
	CompletePage(ctx context.Context, id primitive.ObjectID, update *PageCompletion) error

	// FailPage transitions a DOING page to ERROR.
	FailPage(ctx context.Context, id primitive.ObjectID) error

	// Requeue resets DOING pages of a table back to TODO (operator-driven
	// crash recovery).
	Requeue(ctx context.Context, datasetName, tableName string) (int64, error)

	// ListByTable retrieves the pages of a table ordered by page number;
	// a nil page filter returns all pages.
	ListByTable(ctx context.Context, datasetName, tableName string, page *int) ([]*models.TablePage, error)

	// DeleteByTable / DeleteByDataset remove page documents wholesale.
	DeleteByTable(ctx context.Context, datasetName, tableName string) error
	DeleteByDataset(ctx context.Context, datasetName string) error
}

// PageCompletion carries everything CompletePage writes alongside the DONE
// status.
type PageCompletion struct {
	Column     map[string]string
	Target     *models.Target
	Metadata   map[string][]models.ColumnMetadataEntry
	Time       float64
	MemorySize uint64
	MemoryPeak uint64
}

type pageRepository struct {
	db *database.DB
}

// NewPageRepository creates a new PageRepository.
func NewPageRepository(db *database.DB) PageRepository {
	return &pageRepository{db: db}
}

var _ PageRepository = (*pageRepository)(nil)

func (r *pageRepository) InsertPages(ctx context.Context, pages []*models.TablePage) error {
	if len(pages) == 0 {
		return nil
	}
	docs := make([]any, len(pages))
	for i, p := range pages {
		docs[i] = p
	}
	if _, err := r.db.Collection(database.CollectionRow).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert pages: %w", err)
	}
	return nil
}

func (r *pageRepository) ClaimNext(ctx context.Context) (*models.TablePage, error) {
	filter := bson.M{"status": models.StatusTODO}
	update := bson.M{"$set": bson.M{"status": models.StatusDoing}}

	var page models.TablePage
	err := r.db.Collection(database.CollectionRow).
		FindOneAndUpdate(ctx, filter, update).
		Decode(&page)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNoWork
		}
		return nil, fmt.Errorf("failed to claim page: %w", err)
	}
	// FindOneAndUpdate returns the pre-update document.
	page.Status = models.StatusDoing
	return &page, nil
}

func (r *pageRepository) CompletePage(ctx context.Context, id primitive.ObjectID, update *PageCompletion) error {
	set := bson.M{
		"status":      models.StatusDone,
		"column":      update.Column,
		"target":      update.Target,
		"metadata":    update.Metadata,
		"time":        update.Time,
		"memory_size": update.MemorySize,
		"memory_peak": update.MemoryPeak,
	}
	res, err := r.db.Collection(database.CollectionRow).UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to complete page: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("page %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return nil
}

func (r *pageRepository) FailPage(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"status": models.StatusError}}
	if _, err := r.db.Collection(database.CollectionRow).UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to mark page as error: %w", err)
	}
	return nil
}

func (r *pageRepository) Requeue(ctx context.Context, datasetName, tableName string) (int64, error) {
	filter := bson.M{
		"datasetName": datasetName,
		"tableName":   tableName,
		"status":      models.StatusDoing,
	}
	update := bson.M{"$set": bson.M{"status": models.StatusTODO}}
	res, err := r.db.Collection(database.CollectionRow).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue pages: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *pageRepository) ListByTable(ctx context.Context, datasetName, tableName string, page *int) ([]*models.TablePage, error) {
	filter := bson.M{"datasetName": datasetName, "tableName": tableName}
	if page != nil {
		filter["page"] = *page
	}

	opts := options.Find().SetSort(bson.D{{Key: "page", Value: 1}})
	cursor, err := r.db.Collection(database.CollectionRow).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.TablePage
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode pages: %w", err)
	}
	return out, nil
}

func (r *pageRepository) DeleteByTable(ctx context.Context, datasetName, tableName string) error {
	filter := bson.M{"datasetName": datasetName, "tableName": tableName}
	if _, err := r.db.Collection(database.CollectionRow).DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	return nil
}

func (r *pageRepository) DeleteByDataset(ctx context.Context, datasetName string) error {
	if _, err := r.db.Collection(database.CollectionRow).DeleteMany(ctx, bson.M{"datasetName": datasetName}); err != nil {
		return fmt.Errorf("failed to delete pages of dataset %s: %w", datasetName, err)
	}
	return nil
}
