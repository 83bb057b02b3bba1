package services

import (
	"context"
	"fmt"

	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// Decision elects the winning annotations of a page and persists all of its
// artifacts. The artifact writes happen before the page flips to DONE, so a
// DONE page always carries a consistent CEA/CTA/CPA triple (with gaps where
// evidence was insufficient).
type Decision struct {
	annotations repositories.AnnotationRepository
	revision    *Revision
}

// NewDecision creates the decision stage.
func NewDecision(annotations repositories.AnnotationRepository, revision *Revision) *Decision {
	return &Decision{annotations: annotations, revision: revision}
}

// Materialize builds and stores the page artifacts. The CEA surfaces the full
// candidate list per cell ordered by final score; CTA and CPA are re-elected
// from profiles refreshed with the final scores. Cells without candidates get
// empty CEA entries; columns and pairs without evidence are omitted.
func (d *Decision) Materialize(ctx context.Context, key models.PageKey, rows []*models.Row, prelinking []*models.CEADoc) (*models.PageArtifacts, error) {
	artifacts := &models.PageArtifacts{
		CEAPrelinking: prelinking,
	}

	for _, row := range rows {
		scored := &models.CandidateScoredDoc{
			DatasetName: key.DatasetName,
			TableName:   key.TableName,
			KGReference: key.KGReference,
			Page:        key.Page,
			Row:         row.IDRow,
			Candidates:  candidateMatrix(row),
		}
		cea := &models.CEADoc{
			DatasetName:       key.DatasetName,
			TableName:         key.TableName,
			KGReference:       key.KGReference,
			Page:              key.Page,
			Row:               row.IDRow,
			WinningCandidates: candidateMatrix(row),
		}
		artifacts.CandidateScored = append(artifacts.CandidateScored, scored)
		artifacts.CEA = append(artifacts.CEA, cea)
	}

	profiles := d.revision.BuildProfiles(rows, func(c *models.Candidate) float64 { return c.RhoPrime })
	if cta := WinningTypes(profiles); len(cta) > 0 {
		artifacts.CTA = &models.CTADoc{
			DatasetName: key.DatasetName,
			TableName:   key.TableName,
			KGReference: key.KGReference,
			Page:        key.Page,
			CTA:         cta,
		}
	}
	if cpa := WinningPredicates(profiles); cpa != nil {
		artifacts.CPA = &models.CPADoc{
			DatasetName: key.DatasetName,
			TableName:   key.TableName,
			KGReference: key.KGReference,
			Page:        key.Page,
			CPA:         cpa,
		}
	}

	if err := d.annotations.StorePageArtifacts(ctx, artifacts); err != nil {
		return nil, fmt.Errorf("failed to store page artifacts: %w", err)
	}
	return artifacts, nil
}

// candidateMatrix lays the row's candidate lists out by column index; non-NE
// columns and candidate-less cells hold empty lists.
func candidateMatrix(row *models.Row) [][]*models.Candidate {
	matrix := make([][]*models.Candidate, len(row.Cells))
	for i := range matrix {
		matrix[i] = []*models.Candidate{}
	}
	for _, cell := range row.Cells {
		if cell.Tag == models.TagNE && cell.Candidates != nil {
			matrix[cell.Column] = cell.Candidates
		}
	}
	return matrix
}

// SnapshotCEA captures the current ranking as CEA documents with deep-copied
// candidates, so later passes cannot mutate the snapshot. Used for the
// pre-linking artifact taken after the first scoring pass.
func SnapshotCEA(key models.PageKey, rows []*models.Row) []*models.CEADoc {
	out := make([]*models.CEADoc, 0, len(rows))
	for _, row := range rows {
		matrix := make([][]*models.Candidate, len(row.Cells))
		for i := range matrix {
			matrix[i] = []*models.Candidate{}
		}
		for _, cell := range row.Cells {
			if cell.Tag != models.TagNE {
				continue
			}
			cloned := make([]*models.Candidate, len(cell.Candidates))
			for i, c := range cell.Candidates {
				cloned[i] = cloneCandidate(c)
			}
			matrix[cell.Column] = cloned
		}
		out = append(out, &models.CEADoc{
			DatasetName:       key.DatasetName,
			TableName:         key.TableName,
			KGReference:       key.KGReference,
			Page:              key.Page,
			Row:               row.IDRow,
			WinningCandidates: matrix,
		})
	}
	return out
}

func cloneCandidate(c *models.Candidate) *models.Candidate {
	clone := *c
	clone.RelatedPreds = nil
	clone.MatchedLitPreds = nil
	clone.Types = append([]models.CandidateType(nil), c.Types...)
	clone.Features = make(map[string]float64, len(c.Features))
	for k, v := range c.Features {
		clone.Features[k] = v
	}
	return &clone
}
