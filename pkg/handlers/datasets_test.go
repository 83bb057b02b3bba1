package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
	"github.com/alligator-inc/alligator-engine/pkg/services"
)

const testToken = "alligator_demo_89"

type stubDatasetRepo struct {
	mu       sync.Mutex
	datasets map[string]*models.Dataset
}

func (r *stubDatasetRepo) Create(_ context.Context, dataset *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.datasets == nil {
		r.datasets = map[string]*models.Dataset{}
	}
	if _, ok := r.datasets[dataset.DatasetName]; ok {
		return apperrors.ErrConflict
	}
	r.datasets[dataset.DatasetName] = dataset
	return nil
}

func (r *stubDatasetRepo) Ensure(_ context.Context, datasetName string, added int) error {
	return r.Create(context.Background(), &models.Dataset{DatasetName: datasetName, NTables: added})
}

func (r *stubDatasetRepo) List(_ context.Context, _ int) ([]*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	return out, nil
}

func (r *stubDatasetRepo) GetByName(_ context.Context, name string) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.datasets[name]; ok {
		return d, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *stubDatasetRepo) Delete(_ context.Context, _ string) error { return nil }

type stubTableRepo struct{}

func (stubTableRepo) Upsert(_ context.Context, _ *models.Table) error { return nil }
func (stubTableRepo) ListByDataset(_ context.Context, _ string, _ int) ([]*models.Table, error) {
	return []*models.Table{{DatasetName: "Dataset1", TableName: "Test1", NRows: 3, Status: models.StatusTODO}}, nil
}
func (stubTableRepo) Get(_ context.Context, _, _ string) (*models.Table, error) {
	return nil, apperrors.ErrNotFound
}
func (stubTableRepo) UpdateStatus(_ context.Context, _, _, _ string) error { return nil }
func (stubTableRepo) Delete(_ context.Context, _, _ string) error          { return nil }
func (stubTableRepo) DeleteByDataset(_ context.Context, _ string) error    { return nil }

type stubPageRepo struct {
	mu    sync.Mutex
	pages []*models.TablePage
}

func (r *stubPageRepo) InsertPages(_ context.Context, pages []*models.TablePage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, pages...)
	return nil
}
func (r *stubPageRepo) ClaimNext(_ context.Context) (*models.TablePage, error) {
	return nil, apperrors.ErrNoWork
}
func (r *stubPageRepo) CompletePage(_ context.Context, _ primitive.ObjectID, _ *repositories.PageCompletion) error {
	return nil
}
func (r *stubPageRepo) FailPage(_ context.Context, _ primitive.ObjectID) error { return nil }
func (r *stubPageRepo) Requeue(_ context.Context, _, _ string) (int64, error) { return 0, nil }
func (r *stubPageRepo) ListByTable(_ context.Context, _, _ string, _ *int) ([]*models.TablePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pages, nil
}
func (r *stubPageRepo) DeleteByTable(_ context.Context, _, _ string) error { return nil }
func (r *stubPageRepo) DeleteByDataset(_ context.Context, _ string) error  { return nil }

type stubAnnotationRepo struct{}

func (stubAnnotationRepo) StorePageArtifacts(_ context.Context, _ *models.PageArtifacts) error {
	return nil
}
func (stubAnnotationRepo) FindCEA(_ context.Context, _, _ string, _ *int) ([]*models.CEADoc, error) {
	return nil, nil
}
func (stubAnnotationRepo) CountCEA(_ context.Context, _, _ string, _ *int) (int64, error) {
	return 0, nil
}
func (stubAnnotationRepo) FindCTA(_ context.Context, _, _ string, _ *int) (*models.CTADoc, error) {
	return nil, nil
}
func (stubAnnotationRepo) FindCPA(_ context.Context, _, _ string, _ *int) (*models.CPADoc, error) {
	return nil, nil
}
func (stubAnnotationRepo) DeleteByTable(_ context.Context, _, _ string) error { return nil }
func (stubAnnotationRepo) DeleteByDataset(_ context.Context, _ string) error  { return nil }

type stubSignal struct {
	mu     sync.Mutex
	clears int
}

func (s *stubSignal) SetStop(_ context.Context) error { return nil }
func (s *stubSignal) ClearStop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}
func (s *stubSignal) Stopped(_ context.Context) (bool, error) { return false, nil }

func newTestServer(t *testing.T) (*httptest.Server, *stubSignal, *stubPageRepo) {
	t.Helper()
	logger := zap.NewNop()
	signal := &stubSignal{}
	pages := &stubPageRepo{}
	datasets := &stubDatasetRepo{}
	tables := stubTableRepo{}
	annotations := stubAnnotationRepo{}

	ingest := services.NewIngestService(datasets, tables, pages, signal, 100, 50, logger)
	tableSvc := services.NewTableService(datasets, tables, pages, annotations, logger)
	handler := NewDatasetHandler(ingest, tableSvc, datasets, tables, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, testToken)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, signal, pages
}

func TestRoutes_RejectInvalidToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/dataset?token=wrong")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/dataset")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateWithArray_QueuesTablesAndClearsStop(t *testing.T) {
	srv, signal, pages := newTestServer(t)

	body := `[{
		"datasetName": "Dataset1",
		"tableName": "Test1",
		"header": ["Actor", "City"],
		"rows": [{"idRow": 1, "data": ["Tom Hanks", "Concord"]}],
		"kgReference": "wikidata"
	}]`
	resp, err := http.Post(srv.URL+"/dataset/createWithArray?token="+testToken, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, signal.clears)
	assert.Len(t, pages.pages, 1)
}

func TestCreateWithArray_InvalidJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/dataset/createWithArray?token="+testToken, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateDataset_ConflictOnDuplicate(t *testing.T) {
	srv, _, _ := newTestServer(t)

	url := srv.URL + "/dataset?token=" + testToken + "&datasetName=Dataset1"
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTable_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/dataset/Dataset1/table/Missing?token=" + testToken)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
