package services

import (
	"sort"
	"strconv"

	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// profileSize is how many reference types/predicates a profile keeps.
const profileSize = 5

// ProfileEntry is one reference id with its normalized frequency.
type ProfileEntry struct {
	ID        string
	Frequency float64
}

// Profiles holds the cross-row aggregates computed on a stable snapshot of
// top-1 assignments: per-NE-column type profiles and per-column-pair
// predicate profiles (plus the pair-spanning profile the revision features
// use). Workers never observe partial profiles; a Profiles value is built in
// full before any candidate is touched.
type Profiles struct {
	// Types is keyed by NE column index.
	Types map[int][]ProfileEntry
	// PredicatePairs is keyed by target column index; the source is always
	// the subject column.
	PredicatePairs map[int][]ProfileEntry
	// Predicates aggregates all pairs, for the per-candidate cpa features.
	Predicates []ProfileEntry
	// SubjectColumn is the elected subject, -1 when none.
	SubjectColumn int
}

// Revision re-derives features from the initial ranking: each candidate gains
// cta_t1..5 and cpa_t1..5 drawn from the snapshot profiles, feeding the
// second scoring pass.
type Revision struct{}

// NewRevision creates the feature-revision stage.
func NewRevision() *Revision {
	return &Revision{}
}

// BuildProfiles aggregates the top-1 snapshot weighted by the given score.
// Equal totals break by ascending id, keeping the aggregation deterministic.
func (r *Revision) BuildProfiles(rows []*models.Row, score func(*models.Candidate) float64) *Profiles {
	profiles := &Profiles{
		Types:          make(map[int][]ProfileEntry),
		PredicatePairs: make(map[int][]ProfileEntry),
		SubjectColumn:  -1,
	}

	typeWeights := make(map[int]map[string]float64)
	pairWeights := make(map[int]map[string]float64)
	globalWeights := make(map[string]float64)

	for _, row := range rows {
		subject := row.SubjectCell()
		var top1Subject *models.Candidate
		if subject != nil {
			profiles.SubjectColumn = subject.Column
			top1Subject = subject.TopCandidate()
		}

		for _, cell := range row.NECells() {
			top1 := cell.TopCandidate()
			if top1 == nil {
				continue
			}
			if typeWeights[cell.Column] == nil {
				typeWeights[cell.Column] = make(map[string]float64)
			}
			for _, t := range top1.Types {
				typeWeights[cell.Column][t.ID] += score(top1)
			}

			// Predicates from the subject's top-1 to this cell's top-1,
			// weighted by the product of their scores.
			if top1Subject == nil || cell.IsSubject {
				continue
			}
			for _, pred := range top1Subject.RelatedPreds[top1.ID] {
				w := score(top1Subject) * score(top1)
				addPairWeight(pairWeights, cell.Column, pred, w)
				globalWeights[pred] += w
			}
		}

		// Predicates from the subject's top-1 to matching literals.
		if top1Subject != nil {
			for _, lit := range row.LitCells() {
				for _, pred := range top1Subject.MatchedLitPreds[lit.Column] {
					w := score(top1Subject)
					addPairWeight(pairWeights, lit.Column, pred, w)
					globalWeights[pred] += w
				}
			}
		}
	}

	for col, weights := range typeWeights {
		profiles.Types[col] = topEntries(weights, profileSize)
	}
	for col, weights := range pairWeights {
		profiles.PredicatePairs[col] = topEntries(weights, profileSize)
	}
	profiles.Predicates = topEntries(globalWeights, profileSize)

	return profiles
}

// ComputeFeatures assigns the revision features from the snapshot profiles.
func (r *Revision) ComputeFeatures(rows []*models.Row, profiles *Profiles) {
	ctaNames := []string{models.FeatCTA1, models.FeatCTA2, models.FeatCTA3, models.FeatCTA4, models.FeatCTA5}
	cpaNames := []string{models.FeatCPA1, models.FeatCPA2, models.FeatCPA3, models.FeatCPA4, models.FeatCPA5}

	for _, row := range rows {
		for _, cell := range row.NECells() {
			colTypes := profiles.Types[cell.Column]
			for _, c := range cell.Candidates {
				for k, name := range ctaNames {
					c.SetFeature(name, ctaFeature(c, colTypes, k))
				}
				for k, name := range cpaNames {
					c.SetFeature(name, cpaFeature(row, cell, c, profiles, k))
				}
			}
		}
	}
}

// ctaFeature is f_k when the candidate carries reference type t_k, else 0.
func ctaFeature(c *models.Candidate, entries []ProfileEntry, k int) float64 {
	if k >= len(entries) {
		return 0
	}
	for _, t := range c.Types {
		if t.ID == entries[k].ID {
			return entries[k].Frequency
		}
	}
	return 0
}

// cpaFeature is f_k when, in this row, the subject candidate connects via
// predicate p_k to some other cell's top-1 candidate or matching literal.
func cpaFeature(row *models.Row, cell *models.Cell, c *models.Candidate, profiles *Profiles, k int) float64 {
	if !cell.IsSubject || k >= len(profiles.Predicates) {
		return 0
	}
	pred := profiles.Predicates[k]

	for _, other := range row.NECells() {
		if other.Column == cell.Column {
			continue
		}
		top1 := other.TopCandidate()
		if top1 == nil {
			continue
		}
		if containsID(c.RelatedPreds[top1.ID], pred.ID) {
			return pred.Frequency
		}
	}
	for _, lit := range row.LitCells() {
		if containsID(c.MatchedLitPreds[lit.Column], pred.ID) {
			return pred.Frequency
		}
	}
	return 0
}

func addPairWeight(weights map[int]map[string]float64, col int, pred string, w float64) {
	if weights[col] == nil {
		weights[col] = make(map[string]float64)
	}
	weights[col][pred] += w
}

// topEntries ranks ids by total weight descending (ties by ascending id),
// keeps the first n, and normalizes their frequencies to sum to 1.
func topEntries(weights map[string]float64, n int) []ProfileEntry {
	entries := make([]ProfileEntry, 0, len(weights))
	for id, w := range weights {
		if w <= 0 {
			continue
		}
		entries = append(entries, ProfileEntry{ID: id, Frequency: w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Frequency != entries[j].Frequency {
			return entries[i].Frequency > entries[j].Frequency
		}
		return entries[i].ID < entries[j].ID
	})
	if len(entries) > n {
		entries = entries[:n]
	}

	total := 0.0
	for _, e := range entries {
		total += e.Frequency
	}
	if total > 0 {
		for i := range entries {
			entries[i].Frequency /= total
		}
	}
	return entries
}

// WinningTypes elects one type per NE column from the given profiles.
func WinningTypes(profiles *Profiles) map[string]string {
	out := make(map[string]string)
	for col, entries := range profiles.Types {
		if len(entries) > 0 {
			out[strconv.Itoa(col)] = entries[0].ID
		}
	}
	return out
}

// WinningPredicates elects one predicate per (subject, other) column pair.
func WinningPredicates(profiles *Profiles) map[string]map[string]string {
	if profiles.SubjectColumn < 0 || len(profiles.PredicatePairs) == 0 {
		return nil
	}
	src := strconv.Itoa(profiles.SubjectColumn)
	pairs := make(map[string]string)
	for col, entries := range profiles.PredicatePairs {
		if len(entries) > 0 {
			pairs[strconv.Itoa(col)] = entries[0].ID
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return map[string]map[string]string{src: pairs}
}
