package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// CandidateScoredDoc stores the full scored candidate matrix of one row:
// one candidate list per column (empty lists for non-NE columns).
type CandidateScoredDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetName string             `bson:"datasetName" json:"datasetName"`
	TableName   string             `bson:"tableName" json:"tableName"`
	KGReference string             `bson:"kgReference,omitempty" json:"kgReference,omitempty"`
	Page        int                `bson:"page" json:"page"`
	Row         int                `bson:"row" json:"row"`
	Candidates  [][]*Candidate     `bson:"candidates" json:"candidates"`
}

// CEADoc stores the winning candidates of one row, one ranked list per column.
type CEADoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetName       string             `bson:"datasetName" json:"datasetName"`
	TableName         string             `bson:"tableName" json:"tableName"`
	KGReference       string             `bson:"kgReference,omitempty" json:"kgReference,omitempty"`
	Page              int                `bson:"page" json:"page"`
	Row               int                `bson:"row" json:"row"`
	WinningCandidates [][]*Candidate     `bson:"winningCandidates" json:"winningCandidates"`
}

// CTADoc stores the winning type per NE column of one page.
type CTADoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetName string             `bson:"datasetName" json:"datasetName"`
	TableName   string             `bson:"tableName" json:"tableName"`
	KGReference string             `bson:"kgReference,omitempty" json:"kgReference,omitempty"`
	Page        int                `bson:"page" json:"page"`
	CTA         map[string]string  `bson:"cta" json:"cta"`
}

// CPADoc stores the winning predicate per ordered column pair of one page,
// keyed source column -> target column -> predicate id.
type CPADoc struct {
	ID          primitive.ObjectID           `bson:"_id,omitempty" json:"-"`
	DatasetName string                       `bson:"datasetName" json:"datasetName"`
	TableName   string                       `bson:"tableName" json:"tableName"`
	KGReference string                       `bson:"kgReference,omitempty" json:"kgReference,omitempty"`
	Page        int                          `bson:"page" json:"page"`
	CPA         map[string]map[string]string `bson:"cpa" json:"cpa"`
}

// LogDoc is one diagnostic entry in the log collection, queryable by
// (datasetName, tableName).
type LogDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetName string             `bson:"datasetName,omitempty" json:"datasetName,omitempty"`
	TableName   string             `bson:"tableName,omitempty" json:"tableName,omitempty"`
	IDRow       *int               `bson:"idRow,omitempty" json:"idRow,omitempty"`
	Cell        string             `bson:"cell,omitempty" json:"cell,omitempty"`
	Type        string             `bson:"type,omitempty" json:"type,omitempty"`
	Method      string             `bson:"method,omitempty" json:"method,omitempty"`
	URL         string             `bson:"url,omitempty" json:"url,omitempty"`
	Params      map[string]string  `bson:"params,omitempty" json:"params,omitempty"`
	Body        string             `bson:"body,omitempty" json:"body,omitempty"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
	StackTrace  string             `bson:"stackTrace,omitempty" json:"stackTrace,omitempty"`
}

// PageArtifacts groups everything the decision stage persists for one page,
// so a partially completed page never shows DONE without all of it.
type PageArtifacts struct {
	CandidateScored []*CandidateScoredDoc
	CEAPrelinking   []*CEADoc
	CEA             []*CEADoc
	CTA             *CTADoc
	CPA             *CPADoc
}
