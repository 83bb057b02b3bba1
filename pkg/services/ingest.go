package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// UploadMetadata carries caller-supplied column tags.
type UploadMetadata struct {
	Column []models.ColumnMetadataEntry `json:"column"`
}

// TableUpload is one table of a bulk upload.
type TableUpload struct {
	DatasetName         string           `json:"datasetName"`
	TableName           string           `json:"tableName"`
	Header              []string         `json:"header"`
	Rows                []models.RowData `json:"rows"`
	Metadata            *UploadMetadata  `json:"metadata,omitempty"`
	KGReference         string           `json:"kgReference,omitempty"`
	CandidateSize       int              `json:"candidateSize,omitempty"`
	SemanticAnnotations any              `json:"semanticAnnotations,omitempty"`
}

// IngestResult identifies one accepted table.
type IngestResult struct {
	ID          string `json:"id"`
	DatasetName string `json:"datasetName"`
	TableName   string `json:"tableName"`
}

// IngestService turns uploaded tables into TODO pages, maintains the dataset
// and table summaries, and clears the STOP signal so idle workers pick the
// work up.
type IngestService struct {
	datasets    repositories.DatasetRepository
	tables      repositories.TableRepository
	pages       repositories.PageRepository
	signal      JobSignal
	rowsPerPage int
	lookupLimit int
	logger      *zap.Logger
}

// NewIngestService creates the ingestion service.
func NewIngestService(
	datasets repositories.DatasetRepository,
	tables repositories.TableRepository,
	pages repositories.PageRepository,
	signal JobSignal,
	rowsPerPage int,
	lookupLimit int,
	logger *zap.Logger,
) *IngestService {
	if rowsPerPage < 1 {
		rowsPerPage = 100
	}
	if lookupLimit < 1 {
		lookupLimit = 50
	}
	return &IngestService{
		datasets:    datasets,
		tables:      tables,
		pages:       pages,
		signal:      signal,
		rowsPerPage: rowsPerPage,
		lookupLimit: lookupLimit,
		logger:      logger.Named("ingest"),
	}
}

// IngestTables stores a batch of uploads. Each table is split into pages of
// rowsPerPage rows inserted with status TODO.
func (s *IngestService) IngestTables(ctx context.Context, uploads []TableUpload) ([]IngestResult, error) {
	results := make([]IngestResult, 0, len(uploads))
	tablesPerDataset := make(map[string]int)

	for _, upload := range uploads {
		if err := validateUpload(&upload); err != nil {
			return nil, err
		}

		idJob := uuid.NewString()
		pages := s.buildPages(&upload)
		if err := s.pages.InsertPages(ctx, pages); err != nil {
			return nil, err
		}

		table := &models.Table{
			DatasetName: upload.DatasetName,
			TableName:   upload.TableName,
			NRows:       len(upload.Rows),
			Status:      models.StatusTODO,
			Page:        len(pages),
			IDJob:       idJob,
		}
		if err := s.tables.Upsert(ctx, table); err != nil {
			return nil, err
		}
		tablesPerDataset[upload.DatasetName]++

		results = append(results, IngestResult{
			ID:          idJob,
			DatasetName: upload.DatasetName,
			TableName:   upload.TableName,
		})
	}

	for datasetName, added := range tablesPerDataset {
		if err := s.datasets.Ensure(ctx, datasetName, added); err != nil {
			return nil, err
		}
	}

	if err := s.signal.ClearStop(ctx); err != nil {
		s.logger.Warn("failed to clear stop signal", zap.Error(err))
	}

	s.logger.Info("ingested tables", zap.Int("tables", len(results)))
	return results, nil
}

func validateUpload(upload *TableUpload) error {
	if upload.DatasetName == "" || upload.TableName == "" {
		return fmt.Errorf("datasetName and tableName are required: %w", apperrors.ErrInvalidInput)
	}
	if len(upload.Header) == 0 {
		return fmt.Errorf("table %s/%s has an empty header: %w", upload.DatasetName, upload.TableName, apperrors.ErrInvalidInput)
	}
	for _, row := range upload.Rows {
		if len(row.Data) != len(upload.Header) {
			return fmt.Errorf("table %s/%s row %d has %d cells, header has %d: %w",
				upload.DatasetName, upload.TableName, row.IDRow, len(row.Data), len(upload.Header), apperrors.ErrInvalidInput)
		}
	}
	return nil
}

func (s *IngestService) buildPages(upload *TableUpload) []*models.TablePage {
	kg := upload.KGReference
	if kg == "" {
		kg = "wikidata"
	}
	limit := upload.CandidateSize
	if limit < 1 {
		limit = s.lookupLimit
	}

	column, target := callerColumnHints(upload.Metadata)

	var pages []*models.TablePage
	for start := 0; start < len(upload.Rows) || start == 0; start += s.rowsPerPage {
		end := start + s.rowsPerPage
		if end > len(upload.Rows) {
			end = len(upload.Rows)
		}
		pages = append(pages, &models.TablePage{
			DatasetName: upload.DatasetName,
			TableName:   upload.TableName,
			Page:        len(pages) + 1,
			Header:      upload.Header,
			Rows:        upload.Rows[start:end],
			Column:      column,
			Target:      target,
			Status:      models.StatusTODO,
			Kwargs:      models.LamAPIKwargs{KG: kg, Limit: limit},
		})
		if end >= len(upload.Rows) {
			break
		}
	}
	return pages
}

// callerColumnHints maps the uploaded column metadata into the page's tag map
// and, for literal columns with a declared datatype, a partial target.
func callerColumnHints(metadata *UploadMetadata) (map[string]string, *models.Target) {
	column := map[string]string{}
	if metadata == nil {
		return column, nil
	}

	datatypes := map[string]string{}
	for _, entry := range metadata.Column {
		key := strconv.Itoa(entry.IDColumn)
		if entry.Tag != "" {
			column[key] = entry.Tag
		}
		if entry.Datatype != "" {
			datatypes[key] = entry.Datatype
		}
	}
	if len(datatypes) == 0 {
		return column, nil
	}
	return column, &models.Target{LitDatatype: datatypes}
}
