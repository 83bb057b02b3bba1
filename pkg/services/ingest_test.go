package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

type fakeDatasetRepo struct {
	mu      sync.Mutex
	ensured map[string]int
}

func (r *fakeDatasetRepo) Create(_ context.Context, _ *models.Dataset) error { return nil }

func (r *fakeDatasetRepo) Ensure(_ context.Context, datasetName string, addedTables int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensured == nil {
		r.ensured = map[string]int{}
	}
	r.ensured[datasetName] += addedTables
	return nil
}

func (r *fakeDatasetRepo) List(_ context.Context, _ int) ([]*models.Dataset, error) { return nil, nil }
func (r *fakeDatasetRepo) GetByName(_ context.Context, _ string) (*models.Dataset, error) {
	return nil, apperrors.ErrNotFound
}
func (r *fakeDatasetRepo) Delete(_ context.Context, _ string) error { return nil }

type fakeTableRepo struct {
	mu     sync.Mutex
	tables []*models.Table
}

func (r *fakeTableRepo) Upsert(_ context.Context, table *models.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, table)
	return nil
}

func (r *fakeTableRepo) ListByDataset(_ context.Context, _ string, _ int) ([]*models.Table, error) {
	return nil, nil
}
func (r *fakeTableRepo) Get(_ context.Context, _, _ string) (*models.Table, error) {
	return nil, apperrors.ErrNotFound
}
func (r *fakeTableRepo) UpdateStatus(_ context.Context, _, _, _ string) error { return nil }
func (r *fakeTableRepo) Delete(_ context.Context, _, _ string) error          { return nil }
func (r *fakeTableRepo) DeleteByDataset(_ context.Context, _ string) error    { return nil }

func uploadFixture(nRows int) TableUpload {
	rows := make([]models.RowData, nRows)
	for i := range rows {
		rows[i] = models.RowData{IDRow: i + 1, Data: []string{"a", "b"}}
	}
	return TableUpload{
		DatasetName: "Dataset1",
		TableName:   "Test1",
		Header:      []string{"A", "B"},
		Rows:        rows,
		KGReference: "wikidata",
	}
}

func TestIngestTables_SplitsIntoPages(t *testing.T) {
	pages := &fakePageRepo{}
	tables := &fakeTableRepo{}
	datasets := &fakeDatasetRepo{}
	signal := &fakeSignal{stopped: true}

	svc := NewIngestService(datasets, tables, pages, signal, 3, 50, zap.NewNop())

	results, err := svc.IngestTables(context.Background(), []TableUpload{uploadFixture(7)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].ID)

	// 7 rows at 3 rows per page -> 3 pages, all TODO, numbered from 1.
	require.Len(t, pages.todo, 3)
	assert.Equal(t, 1, pages.todo[0].Page)
	assert.Equal(t, 3, len(pages.todo[0].Rows))
	assert.Equal(t, 1, len(pages.todo[2].Rows))
	for _, p := range pages.todo {
		assert.Equal(t, models.StatusTODO, p.Status)
		assert.Equal(t, "wikidata", p.Kwargs.KG)
		assert.Equal(t, 50, p.Kwargs.Limit)
	}

	require.Len(t, tables.tables, 1)
	assert.Equal(t, 7, tables.tables[0].NRows)
	assert.Equal(t, 3, tables.tables[0].Page)

	assert.Equal(t, map[string]int{"Dataset1": 1}, datasets.ensured)
	assert.False(t, signal.stopped, "ingest must clear the STOP signal")
}

func TestIngestTables_CallerMetadataFlowsIntoPages(t *testing.T) {
	pages := &fakePageRepo{}
	svc := NewIngestService(&fakeDatasetRepo{}, &fakeTableRepo{}, pages, &fakeSignal{}, 100, 50, zap.NewNop())

	upload := uploadFixture(1)
	upload.CandidateSize = 10
	upload.Metadata = &UploadMetadata{Column: []models.ColumnMetadataEntry{
		{IDColumn: 0, Tag: models.TagNE},
		{IDColumn: 1, Tag: models.TagLit, Datatype: models.DatatypeNumber},
	}}

	_, err := svc.IngestTables(context.Background(), []TableUpload{upload})
	require.NoError(t, err)

	require.Len(t, pages.todo, 1)
	page := pages.todo[0]
	assert.Equal(t, models.TagNE, page.Column["0"])
	assert.Equal(t, models.TagLit, page.Column["1"])
	require.NotNil(t, page.Target)
	assert.Equal(t, models.DatatypeNumber, page.Target.LitDatatype["1"])
	assert.Equal(t, 10, page.Kwargs.Limit)
}

func TestIngestTables_RejectsInvalidUploads(t *testing.T) {
	svc := NewIngestService(&fakeDatasetRepo{}, &fakeTableRepo{}, &fakePageRepo{}, &fakeSignal{}, 100, 50, zap.NewNop())

	tests := []struct {
		name   string
		mutate func(*TableUpload)
	}{
		{"missing names", func(u *TableUpload) { u.DatasetName = "" }},
		{"empty header", func(u *TableUpload) { u.Header = nil }},
		{"arity mismatch", func(u *TableUpload) { u.Rows[0].Data = []string{"only one"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload := uploadFixture(2)
			tt.mutate(&upload)
			_, err := svc.IngestTables(context.Background(), []TableUpload{upload})
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestIngestTables_EmptyTableStillGetsAPage(t *testing.T) {
	pages := &fakePageRepo{}
	svc := NewIngestService(&fakeDatasetRepo{}, &fakeTableRepo{}, pages, &fakeSignal{}, 100, 50, zap.NewNop())

	_, err := svc.IngestTables(context.Background(), []TableUpload{uploadFixture(0)})
	require.NoError(t, err)
	assert.Len(t, pages.todo, 1)
}
