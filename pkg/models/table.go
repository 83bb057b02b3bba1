package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Page processing status. TODO -> DOING on claim, DOING -> DONE on success,
// DOING -> ERROR on fatal failure. The TODO -> DOING transition is atomic
// across workers (findOneAndUpdate).
const (
	StatusTODO  = "TODO"
	StatusDoing = "DOING"
	StatusDone  = "DONE"
	StatusError = "ERROR"
)

// Column tags.
const (
	TagNE      = "NE"
	TagLit     = "LIT"
	TagSubject = "SUBJ"
	TagNoTag   = "NOTAG"
)

// Literal datatypes as classified by the lookup service.
const (
	DatatypeString   = "STRING"
	DatatypeNumber   = "NUMBER"
	DatatypeDatetime = "DATETIME"
	DatatypeGeo      = "GEO"
	DatatypeEntity   = "ENTITY"
)

// Dataset summarizes a named batch of tables.
type Dataset struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetName string             `bson:"datasetName" json:"datasetName"`
	NTables     int                `bson:"Ntables" json:"Ntables"`
	Status      int                `bson:"status" json:"status"`
	Percent     float64            `bson:"%" json:"%"`
	Process     *string            `bson:"process" json:"process"`
	Page        int                `bson:"page" json:"page"`
}

// Table is unique by (datasetName, tableName).
type Table struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	DatasetName string             `bson:"datasetName" json:"datasetName"`
	TableName   string             `bson:"tableName" json:"tableName"`
	NRows       int                `bson:"Nrows" json:"nrows"`
	Status      string             `bson:"status" json:"status"`
	Page        int                `bson:"page" json:"page"`
	IDJob       string             `bson:"idJob" json:"-"`
}

// RowData is one raw row as uploaded: cell texts in header order, plus
// optional pre-known KG entity ids per column used as lookup hints.
type RowData struct {
	IDRow int      `bson:"idRow" json:"idRow"`
	Data  []string `bson:"data" json:"data"`
	IDs   []string `bson:"ids,omitempty" json:"ids,omitempty"`
}

// Target summarizes the column roles elected during data preparation.
type Target struct {
	NE          []int             `bson:"NE" json:"NE"`
	Lit         []int             `bson:"LIT" json:"LIT"`
	LitDatatype map[string]string `bson:"LIT_DATATYPE" json:"LIT_DATATYPE"`
	Subject     *int              `bson:"SUBJ" json:"SUBJ"`
}

// LamAPIKwargs carries per-table lookup-service options.
type LamAPIKwargs struct {
	KG    string `bson:"kg" json:"kg"`
	Limit int    `bson:"limit" json:"limit"`
}

// ColumnMetadataEntry is the caller-facing column tag record.
type ColumnMetadataEntry struct {
	IDColumn int    `bson:"idColumn" json:"idColumn"`
	Tag      string `bson:"tag" json:"tag"`
	Datatype string `bson:"datatype,omitempty" json:"datatype,omitempty"`
}

// TablePage is one unit of work: a contiguous row slice of one table,
// persisted in the row collection.
type TablePage struct {
	ID          primitive.ObjectID               `bson:"_id,omitempty" json:"-"`
	DatasetName string                           `bson:"datasetName" json:"datasetName"`
	TableName   string                           `bson:"tableName" json:"tableName"`
	Page        int                              `bson:"page" json:"page"`
	Header      []string                         `bson:"header" json:"header"`
	Rows        []RowData                        `bson:"rows" json:"rows"`
	Column      map[string]string                `bson:"column" json:"column"`
	Target      *Target                          `bson:"target,omitempty" json:"target,omitempty"`
	Status      string                           `bson:"status" json:"status"`
	Kwargs      LamAPIKwargs                     `bson:"lamapi_kwargs" json:"lamapi_kwargs"`
	Metadata    map[string][]ColumnMetadataEntry `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Time        float64                          `bson:"time,omitempty" json:"time,omitempty"`
	MemorySize  uint64                           `bson:"memory_size,omitempty" json:"-"`
	MemoryPeak  uint64                           `bson:"memory_peak,omitempty" json:"-"`
}

// PageKey identifies the artifacts of one processed page.
type PageKey struct {
	DatasetName string `bson:"datasetName" json:"datasetName"`
	TableName   string `bson:"tableName" json:"tableName"`
	KGReference string `bson:"kgReference,omitempty" json:"kgReference,omitempty"`
	Page        int    `bson:"page" json:"page"`
}
