package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/lamapi"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// Caps used to scale count-like mention/label features into [0,1].
const (
	maxTokensCap = 10
	maxLengthCap = 50
	ngramSize    = 3
)

// FeatureExtraction computes the per-(cell, candidate) features of the first
// pass: label similarity, retrieval signals, mention shape, and the row
// context derived from the KG neighborhood of each candidate. Neighborhood
// data (objects, predicates, literals) is fetched once per page and stashed
// on the candidates so the revision stage needs no further I/O.
type FeatureExtraction struct {
	api    lamapi.API
	logger *zap.Logger
}

// NewFeatureExtraction creates the initial feature-extraction stage.
func NewFeatureExtraction(api lamapi.API, logger *zap.Logger) *FeatureExtraction {
	return &FeatureExtraction{api: api, logger: logger.Named("features")}
}

// kgContext is the page-level snapshot of the candidates' KG neighborhood.
type kgContext struct {
	objects      map[string][]string            // candidate id -> object ids
	objectLabels map[string]string              // object id -> label
	predicates   map[string]map[string][]string // candidate id -> related id -> predicate ids
	literals     map[string]map[string][]string // candidate id -> predicate id -> literal values
}

// ComputeFeatures fills every candidate's feature map. Data the service could
// not provide leaves the affected features at 0; the stage never fails the
// page.
func (f *FeatureExtraction) ComputeFeatures(ctx context.Context, rows []*models.Row, lookupLimit int) {
	if lookupLimit <= 0 {
		lookupLimit = 50
	}

	kg := f.fetchContext(ctx, rows)

	for _, row := range rows {
		for _, cell := range row.NECells() {
			f.computeCellFeatures(row, cell, kg, lookupLimit)
		}
	}
}

// fetchContext batches the neighborhood calls for all candidates of the page.
func (f *FeatureExtraction) fetchContext(ctx context.Context, rows []*models.Row) *kgContext {
	idSet := make(map[string]struct{})
	for _, row := range rows {
		for _, cell := range row.NECells() {
			for _, c := range cell.Candidates {
				idSet[c.ID] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	kg := &kgContext{
		objects:      map[string][]string{},
		objectLabels: map[string]string{},
		predicates:   map[string]map[string][]string{},
		literals:     map[string]map[string][]string{},
	}
	if len(ids) == 0 {
		return kg
	}

	if objects, err := f.api.Objects(ctx, ids); err == nil {
		kg.objects = objects
	} else {
		f.logger.Warn("objects unavailable, row-context features default to 0", zap.Error(err))
	}
	if predicates, err := f.api.Predicates(ctx, ids); err == nil {
		kg.predicates = predicates
	} else {
		f.logger.Warn("predicates unavailable, predicate features default to 0", zap.Error(err))
	}
	if literals, err := f.api.Literals(ctx, ids); err == nil {
		kg.literals = literals
	} else {
		f.logger.Warn("literals unavailable, literal features default to 0", zap.Error(err))
	}

	objIDSet := make(map[string]struct{})
	for _, objIDs := range kg.objects {
		for _, id := range objIDs {
			objIDSet[id] = struct{}{}
		}
	}
	objIDs := make([]string, 0, len(objIDSet))
	for id := range objIDSet {
		objIDs = append(objIDs, id)
	}
	if len(objIDs) > 0 {
		if labels, err := f.api.Labels(ctx, objIDs); err == nil {
			kg.objectLabels = labels
		} else {
			f.logger.Warn("object labels unavailable, p_obj_ne defaults to 0", zap.Error(err))
		}
	}

	return kg
}

func (f *FeatureExtraction) computeCellFeatures(row *models.Row, cell *models.Cell, kg *kgContext, lookupLimit int) {
	n := len(cell.Candidates)
	if n == 0 {
		return
	}

	cellTokens := Tokens(cell.Normalized)
	ambiguity := capRatio(float64(n), float64(lookupLimit))
	ntokenMention := capRatio(float64(len(cellTokens)), maxTokensCap)
	lengthMention := capRatio(float64(len([]rune(cell.Normalized))), maxLengthCap)

	popMin, popMax := featureRange(cell.Candidates, models.FeatPopularity)
	esMin, esMax := featureRange(cell.Candidates, models.FeatESScore)

	for rank, c := range cell.Candidates {
		foldedName := Fold(CleanCell(c.Name))
		foldedDesc := Fold(CleanCell(c.Description))
		nameTokens := Tokens(foldedName)

		c.SetFeature(models.FeatAmbiguityMention, ambiguity)
		c.SetFeature(models.FeatNTokenMention, ntokenMention)
		c.SetFeature(models.FeatLengthMention, lengthMention)
		c.SetFeature(models.FeatNTokenEntity, capRatio(float64(len(nameTokens)), maxTokensCap))
		c.SetFeature(models.FeatLengthEntity, capRatio(float64(len([]rune(foldedName))), maxLengthCap))

		c.SetFeature(models.FeatEDScore, EditScore(cell.Normalized, foldedName))
		c.SetFeature(models.FeatJaccardScore, JaccardTokens(cell.Normalized, foldedName))
		c.SetFeature(models.FeatJaccardNgramScore, JaccardNgrams(cell.Normalized, foldedName, ngramSize))
		c.SetFeature(models.FeatNCorrectsTokens, correctTokens(cellTokens, nameTokens))

		c.SetFeature(models.FeatPopularity, minMax(c.Feature(models.FeatPopularity), popMin, popMax))
		c.SetFeature(models.FeatESScore, minMax(c.Feature(models.FeatESScore), esMin, esMax))
		c.SetFeature(models.FeatPosScore, 1-float64(rank)/float64(n))

		c.SetFeature(models.FeatDesc, descOverlap(cellTokens, foldedDesc))
		c.SetFeature(models.FeatDescNgram, JaccardNgrams(cell.Normalized, foldedDesc, ngramSize))

		f.computeRowContext(row, cell, c, kg)
	}
}

// computeRowContext derives the row-level co-occurrence signals of one
// candidate, and stashes its predicate connections for the revision stage.
func (f *FeatureExtraction) computeRowContext(row *models.Row, cell *models.Cell, c *models.Candidate, kg *kgContext) {
	c.RelatedPreds = kg.predicates[c.ID]

	// p_obj_ne: other NE cells of the row whose text appears among the
	// candidate's object labels.
	objectLabels := make(map[string]struct{})
	for _, objID := range kg.objects[c.ID] {
		if label, ok := kg.objectLabels[objID]; ok {
			objectLabels[Fold(CleanCell(label))] = struct{}{}
		}
	}
	others := 0
	matched := 0
	for _, other := range row.NECells() {
		if other.Column == cell.Column {
			continue
		}
		others++
		if _, ok := objectLabels[other.Normalized]; ok {
			matched++
		}
	}
	if others > 0 {
		c.SetFeature(models.FeatPObjNE, float64(matched)/float64(others))
	}

	// p_subj_ne: how many subject candidates link to this candidate.
	if !cell.IsSubject {
		if subject := row.SubjectCell(); subject != nil && len(subject.Candidates) > 0 {
			linked := 0
			for _, s := range subject.Candidates {
				if containsID(kg.objects[s.ID], c.ID) {
					linked++
				}
			}
			c.SetFeature(models.FeatPSubjNE, float64(linked)/float64(len(subject.Candidates)))
		}
	}

	// Literal context is a subject-candidate signal: how much of the row's
	// literal data this candidate's KG literals explain.
	if cell.IsSubject {
		f.computeLiteralContext(row, c, kg)
	}
}

func (f *FeatureExtraction) computeLiteralContext(row *models.Row, c *models.Candidate, kg *kgContext) {
	litCells := row.LitCells()
	if len(litCells) == 0 {
		return
	}

	literalsByPred := kg.literals[c.ID]
	matchedSameDt := 0
	matchedAnyDt := 0
	c.MatchedLitPreds = make(map[int][]string)

	for _, lit := range litCells {
		sameDt, anyDt := false, false
		for pred, values := range literalsByPred {
			for _, v := range values {
				if !LiteralMatches(lit.Text, v) {
					continue
				}
				anyDt = true
				if ClassifyLiteral(v) == lit.Datatype {
					sameDt = true
				}
				c.MatchedLitPreds[lit.Column] = appendUnique(c.MatchedLitPreds[lit.Column], pred)
			}
		}
		if sameDt {
			matchedSameDt++
		}
		if anyDt {
			matchedAnyDt++
		}
	}

	c.SetFeature(models.FeatPSubjLitDatatype, float64(matchedSameDt)/float64(len(litCells)))
	c.SetFeature(models.FeatPSubjLitAllDatatype, float64(matchedAnyDt)/float64(len(litCells)))
	if otherCells := len(row.Cells) - 1; otherCells > 0 {
		c.SetFeature(models.FeatPSubjLitRow, float64(matchedAnyDt)/float64(otherCells))
	}
}

func featureRange(candidates []*models.Candidate, name string) (min, max float64) {
	first := true
	for _, c := range candidates {
		v := c.Feature(name)
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// minMax scales v into [0,1] within the observed range; a degenerate range
// maps everything to 1 so that a lone candidate keeps full signal.
func minMax(v, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (v - min) / (max - min)
}

func capRatio(v, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	if v >= ceiling {
		return 1
	}
	return v / ceiling
}

func correctTokens(cellTokens, nameTokens []string) float64 {
	if len(cellTokens) == 0 {
		return 0
	}
	nameSet := make(map[string]struct{}, len(nameTokens))
	for _, tok := range nameTokens {
		nameSet[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range cellTokens {
		if _, ok := nameSet[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(cellTokens))
}

// descOverlap is 1 when any cell token occurs verbatim in the description.
func descOverlap(cellTokens []string, foldedDesc string) float64 {
	if foldedDesc == "" {
		return 0
	}
	descSet := tokenSet(foldedDesc)
	for _, tok := range cellTokens {
		if _, ok := descSet[tok]; ok {
			return 1
		}
	}
	return 0
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
