package services

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/lamapi"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// fakeAPI is a scripted lookup-service client. Unset hooks return empty data.
type fakeAPI struct {
	mu          sync.Mutex
	lookupCalls []string

	lookupFn            func(text string, providedIDs []string, kg string, limit int) ([]lamapi.LookupCandidate, error)
	labelsFn            func(ids []string) (map[string]string, error)
	typesFn             func(ids []string) (map[string][]models.CandidateType, error)
	predicatesFn        func(ids []string) (map[string]map[string][]string, error)
	objectsFn           func(ids []string) (map[string][]string, error)
	literalsFn          func(ids []string) (map[string]map[string][]string, error)
	columnAnalysisFn    func(columns map[string][]string) (map[string]lamapi.ColumnClassification, error)
	literalRecognizerFn func(cells []string) (map[string]lamapi.CellClassification, error)
}

var _ lamapi.API = (*fakeAPI)(nil)

func (f *fakeAPI) Lookup(_ context.Context, text string, providedIDs []string, kg string, limit int) ([]lamapi.LookupCandidate, error) {
	f.mu.Lock()
	f.lookupCalls = append(f.lookupCalls, text)
	f.mu.Unlock()
	if f.lookupFn == nil {
		return nil, nil
	}
	return f.lookupFn(text, providedIDs, kg, limit)
}

func (f *fakeAPI) Labels(_ context.Context, ids []string) (map[string]string, error) {
	if f.labelsFn == nil {
		return map[string]string{}, nil
	}
	return f.labelsFn(ids)
}

func (f *fakeAPI) Types(_ context.Context, ids []string) (map[string][]models.CandidateType, error) {
	if f.typesFn == nil {
		return map[string][]models.CandidateType{}, nil
	}
	return f.typesFn(ids)
}

func (f *fakeAPI) Predicates(_ context.Context, ids []string) (map[string]map[string][]string, error) {
	if f.predicatesFn == nil {
		return map[string]map[string][]string{}, nil
	}
	return f.predicatesFn(ids)
}

func (f *fakeAPI) Objects(_ context.Context, ids []string) (map[string][]string, error) {
	if f.objectsFn == nil {
		return map[string][]string{}, nil
	}
	return f.objectsFn(ids)
}

func (f *fakeAPI) Literals(_ context.Context, ids []string) (map[string]map[string][]string, error) {
	if f.literalsFn == nil {
		return map[string]map[string][]string{}, nil
	}
	return f.literalsFn(ids)
}

func (f *fakeAPI) ColumnAnalysis(_ context.Context, columns map[string][]string) (map[string]lamapi.ColumnClassification, error) {
	if f.columnAnalysisFn == nil {
		return map[string]lamapi.ColumnClassification{}, nil
	}
	return f.columnAnalysisFn(columns)
}

func (f *fakeAPI) LiteralRecognizer(_ context.Context, cells []string) (map[string]lamapi.CellClassification, error) {
	if f.literalRecognizerFn == nil {
		return map[string]lamapi.CellClassification{}, nil
	}
	return f.literalRecognizerFn(cells)
}

// fakeLogRepo collects log entries.
type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*models.LogDoc
}

func (r *fakeLogRepo) Record(_ context.Context, entry *models.LogDoc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// fakePageRepo is an in-memory page queue.
type fakePageRepo struct {
	mu        sync.Mutex
	todo      []*models.TablePage
	completed []primitive.ObjectID
	failed    []primitive.ObjectID
}

var _ repositories.PageRepository = (*fakePageRepo)(nil)

func (r *fakePageRepo) InsertPages(_ context.Context, pages []*models.TablePage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pages {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		r.todo = append(r.todo, p)
	}
	return nil
}

func (r *fakePageRepo) ClaimNext(_ context.Context) (*models.TablePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.todo {
		if p.Status == models.StatusTODO {
			p.Status = models.StatusDoing
			return p, nil
		}
	}
	return nil, apperrors.ErrNoWork
}

func (r *fakePageRepo) CompletePage(_ context.Context, id primitive.ObjectID, _ *repositories.PageCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, id)
	for _, p := range r.todo {
		if p.ID == id {
			p.Status = models.StatusDone
		}
	}
	return nil
}

func (r *fakePageRepo) FailPage(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, id)
	for _, p := range r.todo {
		if p.ID == id {
			p.Status = models.StatusError
		}
	}
	return nil
}

func (r *fakePageRepo) Requeue(_ context.Context, _, _ string) (int64, error) { return 0, nil }

func (r *fakePageRepo) ListByTable(_ context.Context, datasetName, tableName string, page *int) ([]*models.TablePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TablePage
	for _, p := range r.todo {
		if p.DatasetName == datasetName && p.TableName == tableName && (page == nil || p.Page == *page) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePageRepo) DeleteByTable(_ context.Context, _, _ string) error { return nil }
func (r *fakePageRepo) DeleteByDataset(_ context.Context, _ string) error  { return nil }

// fakeAnnotationRepo stores artifacts in memory.
type fakeAnnotationRepo struct {
	mu        sync.Mutex
	artifacts []*models.PageArtifacts
}

var _ repositories.AnnotationRepository = (*fakeAnnotationRepo)(nil)

func (r *fakeAnnotationRepo) StorePageArtifacts(_ context.Context, artifacts *models.PageArtifacts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, artifacts)
	return nil
}

func (r *fakeAnnotationRepo) FindCEA(_ context.Context, _, _ string, _ *int) ([]*models.CEADoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CEADoc
	for _, a := range r.artifacts {
		out = append(out, a.CEA...)
	}
	return out, nil
}

func (r *fakeAnnotationRepo) CountCEA(_ context.Context, datasetName, tableName string, page *int) (int64, error) {
	docs, _ := r.FindCEA(context.Background(), datasetName, tableName, page)
	return int64(len(docs)), nil
}

func (r *fakeAnnotationRepo) FindCTA(_ context.Context, _, _ string, _ *int) (*models.CTADoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.CTA != nil {
			return a.CTA, nil
		}
	}
	return nil, nil
}

func (r *fakeAnnotationRepo) FindCPA(_ context.Context, _, _ string, _ *int) (*models.CPADoc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.CPA != nil {
			return a.CPA, nil
		}
	}
	return nil, nil
}

func (r *fakeAnnotationRepo) DeleteByTable(_ context.Context, _, _ string) error { return nil }
func (r *fakeAnnotationRepo) DeleteByDataset(_ context.Context, _ string) error  { return nil }

// fakeSignal tracks the STOP flag in memory.
type fakeSignal struct {
	mu      sync.Mutex
	stopped bool
	sets    int
	clears  int
}

var _ JobSignal = (*fakeSignal)(nil)

func (s *fakeSignal) SetStop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.sets++
	return nil
}

func (s *fakeSignal) ClearStop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.clears++
	return nil
}

func (s *fakeSignal) Stopped(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped, nil
}
