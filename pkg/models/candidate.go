package models

import "sort"

// Feature names, in the canonical order the scoring models consume.
const (
	FeatAmbiguityMention    = "ambiguity_mention"
	FeatNCorrectsTokens     = "ncorrects_tokens"
	FeatNTokenMention       = "ntoken_mention"
	FeatNTokenEntity        = "ntoken_entity"
	FeatLengthMention       = "length_mention"
	FeatLengthEntity        = "length_entity"
	FeatPopularity          = "popularity"
	FeatPosScore            = "pos_score"
	FeatESScore             = "es_score"
	FeatEDScore             = "ed_score"
	FeatJaccardScore        = "jaccard_score"
	FeatJaccardNgramScore   = "jaccardNgram_score"
	FeatPSubjNE             = "p_subj_ne"
	FeatPSubjLitDatatype    = "p_subj_lit_datatype"
	FeatPSubjLitAllDatatype = "p_subj_lit_all_datatype"
	FeatPSubjLitRow         = "p_subj_lit_row"
	FeatPObjNE              = "p_obj_ne"
	FeatDesc                = "desc"
	FeatDescNgram           = "descNgram"
	FeatCTA1                = "cta_t1"
	FeatCTA2                = "cta_t2"
	FeatCTA3                = "cta_t3"
	FeatCTA4                = "cta_t4"
	FeatCTA5                = "cta_t5"
	FeatCPA1                = "cpa_t1"
	FeatCPA2                = "cpa_t2"
	FeatCPA3                = "cpa_t3"
	FeatCPA4                = "cpa_t4"
	FeatCPA5                = "cpa_t5"
)

// FeatureOrder is the fixed input layout of the scoring models. Missing
// features default to 0 when the vector is assembled.
var FeatureOrder = []string{
	FeatAmbiguityMention,
	FeatNCorrectsTokens,
	FeatNTokenMention,
	FeatNTokenEntity,
	FeatLengthMention,
	FeatLengthEntity,
	FeatPopularity,
	FeatPosScore,
	FeatESScore,
	FeatEDScore,
	FeatJaccardScore,
	FeatJaccardNgramScore,
	FeatPSubjNE,
	FeatPSubjLitDatatype,
	FeatPSubjLitAllDatatype,
	FeatPSubjLitRow,
	FeatPObjNE,
	FeatDesc,
	FeatDescNgram,
	FeatCTA1,
	FeatCTA2,
	FeatCTA3,
	FeatCTA4,
	FeatCTA5,
	FeatCPA1,
	FeatCPA2,
	FeatCPA3,
	FeatCPA4,
	FeatCPA5,
}

// CandidateType is one KG class attached to a candidate.
type CandidateType struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// Candidate is one KG entity proposed for a cell. The persisted field names
// are contract: "score" holds the first-pass score rho (surfaced publicly as
// the diagnostic feature omega), "rho'" holds the final score.
type Candidate struct {
	ID          string             `bson:"id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Types       []CandidateType    `bson:"types" json:"types"`
	Match       bool               `bson:"match" json:"match"`
	Features    map[string]float64 `bson:"features" json:"features"`
	Rho         float64            `bson:"score" json:"score"`
	RhoPrime    float64            `bson:"rho'" json:"rho'"`
	Delta       float64            `bson:"delta" json:"delta"`

	// KG context captured during feature extraction so that the revision
	// stage stays pure. Never persisted.
	RelatedPreds    map[string][]string `bson:"-" json:"-"`
	MatchedLitPreds map[int][]string    `bson:"-" json:"-"`
}

// Feature returns the named feature, defaulting to 0 when absent.
func (c *Candidate) Feature(name string) float64 {
	if c.Features == nil {
		return 0
	}
	return c.Features[name]
}

// SetFeature stores a feature value, allocating the map on first use.
func (c *Candidate) SetFeature(name string, value float64) {
	if c.Features == nil {
		c.Features = make(map[string]float64, len(FeatureOrder))
	}
	c.Features[name] = value
}

// FeatureVector assembles the candidate's features in canonical order.
func (c *Candidate) FeatureVector() []float64 {
	vec := make([]float64, len(FeatureOrder))
	for i, name := range FeatureOrder {
		vec[i] = c.Feature(name)
	}
	return vec
}

// SortCandidates orders candidates by the given score descending, breaking
// ties by ascending id. Every pipeline stage that assigns scores re-sorts
// with this so that candidate order stays fully determined.
func SortCandidates(candidates []*Candidate, score func(*Candidate) float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := score(candidates[i]), score(candidates[j])
		if si != sj {
			return si > sj
		}
		return candidates[i].ID < candidates[j].ID
	})
}
