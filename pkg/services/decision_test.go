package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alligator-inc/alligator-engine/pkg/models"
)

func pageKey() models.PageKey {
	return models.PageKey{DatasetName: "Dataset1", TableName: "Test1", KGReference: "wikidata", Page: 1}
}

func TestMaterialize_WritesAllArtifacts(t *testing.T) {
	subject := typedCand("Q100", "Zooey Deschanel", 0.9, "Q5")
	subject.RhoPrime = 0.95
	subject.MatchedLitPreds = map[int][]string{1: {"P569"}}

	rows := []*models.Row{buildRow(1,
		neCell("Zooey Deschanel", 0, true, subject),
		litCell("January 17, 1980", 1, models.DatatypeDatetime),
	)}

	repo := &fakeAnnotationRepo{}
	decision := NewDecision(repo, NewRevision())

	prelinking := SnapshotCEA(pageKey(), rows)
	artifacts, err := decision.Materialize(context.Background(), pageKey(), rows, prelinking)
	require.NoError(t, err)

	require.Len(t, repo.artifacts, 1)
	require.Len(t, artifacts.CandidateScored, 1)
	require.Len(t, artifacts.CEA, 1)
	require.Len(t, artifacts.CEAPrelinking, 1)
	require.NotNil(t, artifacts.CTA)
	require.NotNil(t, artifacts.CPA)

	// All artifacts carry the same page key.
	assert.Equal(t, "Dataset1", artifacts.CTA.DatasetName)
	assert.Equal(t, "Test1", artifacts.CPA.TableName)
	assert.Equal(t, 1, artifacts.CEA[0].Page)

	// CTA and CPA are elected from the rho'-refreshed profiles.
	assert.Equal(t, "Q5", artifacts.CTA.CTA["0"])
	assert.Equal(t, "P569", artifacts.CPA.CPA["0"]["1"])

	// The CEA matrix has one slot per column.
	require.Len(t, artifacts.CEA[0].WinningCandidates, 2)
	assert.Len(t, artifacts.CEA[0].WinningCandidates[0], 1)
	assert.Empty(t, artifacts.CEA[0].WinningCandidates[1])
}

func TestMaterialize_EmptyCellsGetEmptyCEAEntries(t *testing.T) {
	rows := []*models.Row{buildRow(1,
		neCell("Jerusalem", 0, true), // lookup failed, no candidates
	)}

	decision := NewDecision(&fakeAnnotationRepo{}, NewRevision())
	artifacts, err := decision.Materialize(context.Background(), pageKey(), rows, nil)
	require.NoError(t, err)

	require.Len(t, artifacts.CEA, 1)
	assert.Empty(t, artifacts.CEA[0].WinningCandidates[0])
	// No evidence, no CTA/CPA documents.
	assert.Nil(t, artifacts.CTA)
	assert.Nil(t, artifacts.CPA)
}

func TestSnapshotCEA_IsImmutableUnderLaterMutation(t *testing.T) {
	c := typedCand("Q1", "x", 0.8, "Q5")
	c.SetFeature(models.FeatEDScore, 0.5)
	rows := []*models.Row{buildRow(1, neCell("x", 0, true, c))}

	snapshot := SnapshotCEA(pageKey(), rows)

	// Mutations after the snapshot must not leak into it.
	c.RhoPrime = 0.99
	c.SetFeature(models.FeatEDScore, 0.1)

	snap := snapshot[0].WinningCandidates[0][0]
	assert.Zero(t, snap.RhoPrime)
	assert.Equal(t, 0.5, snap.Features[models.FeatEDScore])
	assert.Equal(t, 0.8, snap.Rho)
}
