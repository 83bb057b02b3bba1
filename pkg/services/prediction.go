package services

import (
	"fmt"

	"github.com/alligator-inc/alligator-engine/pkg/ml"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// Pass selects which score field a prediction run writes.
type Pass int

const (
	// PassRho is the initial scoring over the first-pass features.
	PassRho Pass = iota
	// PassRhoPrime is the final scoring over the revision-augmented features.
	PassRhoPrime
)

// Prediction scores every (cell, candidate) pair of a page with a pretrained
// model. The model is loaded once per worker process; the stage is stateless
// beyond it.
type Prediction struct {
	model *ml.Model
}

// NewPrediction creates a prediction stage around a loaded model.
func NewPrediction(model *ml.Model) *Prediction {
	return &Prediction{model: model}
}

// Compute assembles the batch feature tensor in canonical order, invokes the
// model, writes the scalar into the pass's score field, re-sorts each cell by
// descending score with ties broken by id, and sets each cell's delta (the
// margin between rank 1 and rank 2).
func (p *Prediction) Compute(rows []*models.Row, pass Pass) error {
	var batch [][]float64
	var flat []*models.Candidate
	for _, row := range rows {
		for _, cell := range row.NECells() {
			for _, c := range cell.Candidates {
				batch = append(batch, c.FeatureVector())
				flat = append(flat, c)
			}
		}
	}

	scores, err := p.model.Predict(batch)
	if err != nil {
		return fmt.Errorf("failed to score candidates: %w", err)
	}

	for i, c := range flat {
		if pass == PassRho {
			c.Rho = scores[i]
		} else {
			c.RhoPrime = scores[i]
		}
	}

	score := scoreOf(pass)
	for _, row := range rows {
		for _, cell := range row.NECells() {
			models.SortCandidates(cell.Candidates, score)

			delta := 0.0
			if len(cell.Candidates) >= 2 {
				delta = score(cell.Candidates[0]) - score(cell.Candidates[1])
			}
			for _, c := range cell.Candidates {
				c.Delta = delta
			}
		}
	}
	return nil
}

func scoreOf(pass Pass) func(*models.Candidate) float64 {
	if pass == PassRho {
		return func(c *models.Candidate) float64 { return c.Rho }
	}
	return func(c *models.Candidate) float64 { return c.RhoPrime }
}
