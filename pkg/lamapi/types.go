package lamapi

import "github.com/alligator-inc/alligator-engine/pkg/models"

// LookupCandidate is one ranked entry returned by entity retrieval. The
// service's ordering is preserved verbatim by the lookup stage.
type LookupCandidate struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Types       []models.CandidateType `json:"types"`
	Popularity  float64                `json:"popularity"`
	Score       float64                `json:"score"`
}

// ColumnClassification is the per-column verdict of column analysis.
type ColumnClassification struct {
	Tag            string             `json:"tag"`
	Datatype       string             `json:"datatype"`
	Classification string             `json:"classification"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

// CellClassification is the per-cell verdict of the literal recognizer,
// used as a fallback when column analysis yields no confident tag.
type CellClassification struct {
	Datatype       string `json:"datatype"`
	Classification string `json:"classification"`
}
