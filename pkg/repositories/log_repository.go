package repositories

import (
	"context"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/database"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// LogRepository persists diagnostic entries to the log collection.
// Recording must never fail the pipeline; write errors are reported to the
// process logger and dropped.
type LogRepository interface {
	Record(ctx context.Context, entry *models.LogDoc)
}

type logRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(db *database.DB, logger *zap.Logger) LogRepository {
	return &logRepository{db: db, logger: logger.Named("log-repository")}
}

var _ LogRepository = (*logRepository)(nil)

func (r *logRepository) Record(ctx context.Context, entry *models.LogDoc) {
	if _, err := r.db.Collection(database.CollectionLog).InsertOne(ctx, entry); err != nil {
		r.logger.Error("failed to persist log entry",
			zap.String("datasetName", entry.DatasetName),
			zap.String("tableName", entry.TableName),
			zap.Error(err))
	}
}
