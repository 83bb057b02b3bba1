package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

func newTableServiceFixture(t *testing.T) (*TableService, *fakePageRepo, *fakeAnnotationRepo) {
	t.Helper()
	pages := &fakePageRepo{}
	annotations := &fakeAnnotationRepo{}
	svc := NewTableService(&fakeDatasetRepo{}, &fakeTableRepo{}, pages, annotations, zap.NewNop())
	return svc, pages, annotations
}

func TestGetAnnotated_NotFound(t *testing.T) {
	svc, _, _ := newTableServiceFixture(t)

	_, err := svc.GetAnnotated(context.Background(), "nope", "missing", nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetAnnotated_MergesPagesAndAssemblesAnnotations(t *testing.T) {
	svc, pages, annotations := newTableServiceFixture(t)

	require.NoError(t, pages.InsertPages(context.Background(), []*models.TablePage{
		{
			DatasetName: "Dataset1", TableName: "Test1", Page: 2,
			Header: []string{"Actor", "City"},
			Rows:   []models.RowData{{IDRow: 2, Data: []string{"Tom Hanks", "Concord"}}},
		},
		{
			DatasetName: "Dataset1", TableName: "Test1", Page: 1,
			Header: []string{"Actor", "City"},
			Rows:   []models.RowData{{IDRow: 1, Data: []string{"Zooey Deschanel", "Los Angeles"}}},
		},
	}))

	winner := &models.Candidate{
		ID: "Q212173", Name: "Zooey Deschanel", Match: true,
		Rho: 0.8, RhoPrime: 0.95, Delta: 0.4,
		Types: []models.CandidateType{{ID: "Q5", Name: "human"}},
	}
	winner.SetFeature(models.FeatEDScore, 1)

	require.NoError(t, annotations.StorePageArtifacts(context.Background(), &models.PageArtifacts{
		CEA: []*models.CEADoc{{
			DatasetName: "Dataset1", TableName: "Test1", Page: 1, Row: 1,
			WinningCandidates: [][]*models.Candidate{{winner}, {}},
		}},
		CTA: &models.CTADoc{
			DatasetName: "Dataset1", TableName: "Test1", Page: 1,
			CTA: map[string]string{"0": "Q5"},
		},
		CPA: &models.CPADoc{
			DatasetName: "Dataset1", TableName: "Test1", Page: 1,
			CPA: map[string]map[string]string{"0": {"1": "P19"}},
		},
	}))

	table, err := svc.GetAnnotated(context.Background(), "Dataset1", "Test1", nil)
	require.NoError(t, err)

	// Pages merge in page order.
	assert.Equal(t, 2, table.NRows)
	assert.Equal(t, 1, table.Rows[0].IDRow)
	assert.Equal(t, 2, table.Rows[1].IDRow)

	// One CEA document for two rows: still DOING.
	assert.Equal(t, models.StatusDoing, table.Status)

	require.Len(t, table.SemanticAnnotations.CEA, 2)
	entry := table.SemanticAnnotations.CEA[0]
	require.Len(t, entry.Entities, 1)
	// The public score is rho'; rho only surfaces as the omega feature.
	assert.Equal(t, 0.95, entry.Entities[0].Score)
	featureByID := map[string]float64{}
	for _, f := range entry.Entities[0].Features {
		featureByID[f.ID] = f.Value
	}
	assert.Equal(t, 0.8, featureByID["omega"])
	assert.Equal(t, 0.4, featureByID["delta"])
	assert.Equal(t, 1.0, featureByID[models.FeatEDScore])

	require.Len(t, table.SemanticAnnotations.CTA, 1)
	assert.Equal(t, 0, table.SemanticAnnotations.CTA[0].IDColumn)
	assert.Equal(t, []string{"Q5"}, table.SemanticAnnotations.CTA[0].Types)

	require.Len(t, table.SemanticAnnotations.CPA, 1)
	assert.Equal(t, "0", table.SemanticAnnotations.CPA[0].IDSourceColumn)
	assert.Equal(t, "1", table.SemanticAnnotations.CPA[0].IDTargetColumn)
	assert.Equal(t, []string{"P19"}, table.SemanticAnnotations.CPA[0].Predicates)
}

func TestGetAnnotated_DoneWhenEveryRowHasCEA(t *testing.T) {
	svc, pages, annotations := newTableServiceFixture(t)

	require.NoError(t, pages.InsertPages(context.Background(), []*models.TablePage{{
		DatasetName: "Dataset1", TableName: "Test1", Page: 1,
		Header: []string{"Actor"},
		Rows:   []models.RowData{{IDRow: 1, Data: []string{"Tom Hanks"}}},
	}}))
	require.NoError(t, annotations.StorePageArtifacts(context.Background(), &models.PageArtifacts{
		CEA: []*models.CEADoc{{
			DatasetName: "Dataset1", TableName: "Test1", Page: 1, Row: 1,
			WinningCandidates: [][]*models.Candidate{{}},
		}},
	}))

	table, err := svc.GetAnnotated(context.Background(), "Dataset1", "Test1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, table.Status)
	// A row whose cell produced no candidates still surfaces an empty entry.
	require.Len(t, table.SemanticAnnotations.CEA, 1)
	assert.Empty(t, table.SemanticAnnotations.CEA[0].Entities)
}
