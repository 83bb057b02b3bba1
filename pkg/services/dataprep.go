package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/lamapi"
	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// DataPreparation infers column tags and literal datatypes, elects the
// subject column, and normalizes the raw rows before lookup.
type DataPreparation struct {
	api    lamapi.API
	logger *zap.Logger
}

// NewDataPreparation creates the data-preparation stage.
func NewDataPreparation(api lamapi.API, logger *zap.Logger) *DataPreparation {
	return &DataPreparation{api: api, logger: logger.Named("dataprep")}
}

// ComputeDatatypes fills the page's column tag map and target. Caller-supplied
// tags are respected; missing ones are inferred via column analysis with the
// literal recognizer as fallback. The elected subject column's tag becomes
// SUBJ in the output mapping while staying an NE column in the target.
func (d *DataPreparation) ComputeDatatypes(ctx context.Context, page *models.TablePage) (map[string]string, *models.Target, error) {
	if len(page.Header) == 0 {
		return nil, nil, fmt.Errorf("empty header: %w", apperrors.ErrInvalidInput)
	}
	for _, row := range page.Rows {
		if len(row.Data) != len(page.Header) {
			return nil, nil, fmt.Errorf("row %d has %d cells, header has %d: %w",
				row.IDRow, len(row.Data), len(page.Header), apperrors.ErrInvalidInput)
		}
	}

	tags := make(map[string]string, len(page.Header))
	datatypes := make(map[string]string)

	// Caller-supplied tags win.
	for col, tag := range page.Column {
		switch tag {
		case models.TagNE, models.TagLit, models.TagSubject, models.TagNoTag:
			tags[col] = tag
		}
	}
	if page.Target != nil {
		for col, dt := range page.Target.LitDatatype {
			datatypes[col] = dt
		}
	}

	missing := d.missingColumns(page, tags)
	if len(missing) > 0 {
		if err := d.analyzeColumns(ctx, page, missing, tags, datatypes); err != nil {
			d.logger.Warn("column analysis unavailable, falling back to literal recognizer",
				zap.String("datasetName", page.DatasetName),
				zap.String("tableName", page.TableName),
				zap.Error(err))
		}
	}

	// Literal recognizer fallback for columns still without a verdict.
	for _, col := range d.missingColumns(page, tags) {
		tag, datatype := d.recognizeColumn(ctx, page, col)
		key := strconv.Itoa(col)
		tags[key] = tag
		if tag == models.TagLit {
			datatypes[key] = datatype
		}
	}

	target := buildTarget(page, tags, datatypes)
	if target.Subject != nil {
		tags[strconv.Itoa(*target.Subject)] = models.TagSubject
	}
	return tags, target, nil
}

func (d *DataPreparation) missingColumns(page *models.TablePage, tags map[string]string) []int {
	var out []int
	for col := range page.Header {
		if _, ok := tags[strconv.Itoa(col)]; !ok {
			out = append(out, col)
		}
	}
	return out
}

// analyzeColumns asks the service to classify whole column projections.
func (d *DataPreparation) analyzeColumns(ctx context.Context, page *models.TablePage, columns []int, tags, datatypes map[string]string) error {
	projections := make(map[string][]string, len(columns))
	for _, col := range columns {
		projections[strconv.Itoa(col)] = columnValues(page, col)
	}

	analysis, err := d.api.ColumnAnalysis(ctx, projections)
	if err != nil {
		return err
	}

	for _, col := range columns {
		key := strconv.Itoa(col)
		verdict, ok := analysis[key]
		if !ok || verdict.Tag == "" {
			continue // no confidence; literal recognizer decides below
		}
		tags[key] = verdict.Tag
		if verdict.Tag == models.TagLit {
			datatypes[key] = verdict.Datatype
		}
	}
	return nil
}

// recognizeColumn aggregates cell-level classifications into a column-level
// majority. A STRING cell whose classification matches its datatype counts
// as ENTITY.
func (d *DataPreparation) recognizeColumn(ctx context.Context, page *models.TablePage, col int) (tag, datatype string) {
	values := columnValues(page, col)
	verdicts, err := d.api.LiteralRecognizer(ctx, values)
	if err != nil || len(verdicts) == 0 {
		// Missing classification defaults the column to NE.
		return models.TagNE, ""
	}

	freq := make(map[string]int)
	for _, v := range values {
		verdict, ok := verdicts[v]
		if !ok {
			continue
		}
		dt := verdict.Classification
		if verdict.Datatype == models.DatatypeString && verdict.Classification == models.DatatypeString {
			dt = models.DatatypeEntity
		}
		freq[dt]++
	}

	winner, count := "", -1
	for dt, n := range freq {
		if n > count || (n == count && dt < winner) {
			winner, count = dt, n
		}
	}
	if winner == "" || winner == models.DatatypeEntity {
		return models.TagNE, ""
	}
	return models.TagLit, winner
}

// buildTarget derives the NE/LIT split and elects the subject column among NE
// columns: highest mean cell length, ties broken by lowest column index.
func buildTarget(page *models.TablePage, tags, datatypes map[string]string) *models.Target {
	target := &models.Target{
		NE:          []int{},
		Lit:         []int{},
		LitDatatype: map[string]string{},
	}

	for col := range page.Header {
		key := strconv.Itoa(col)
		switch tags[key] {
		case models.TagNE, models.TagSubject:
			target.NE = append(target.NE, col)
		case models.TagLit:
			target.Lit = append(target.Lit, col)
			if dt, ok := datatypes[key]; ok {
				target.LitDatatype[key] = dt
			} else {
				target.LitDatatype[key] = models.DatatypeString
			}
		}
	}
	sort.Ints(target.NE)
	sort.Ints(target.Lit)

	if len(target.NE) > 0 {
		best, bestLen := -1, -1.0
		for _, col := range target.NE {
			mean := meanCellLength(page, col)
			if mean > bestLen {
				best, bestLen = col, mean
			}
		}
		target.Subject = &best
	}
	return target
}

// NormalizeRows rewrites the raw row data in place with cleaned cell values.
func (d *DataPreparation) NormalizeRows(page *models.TablePage) {
	for i := range page.Rows {
		for j, cell := range page.Rows[i].Data {
			page.Rows[i].Data[j] = CleanCell(cell)
		}
	}
}

func columnValues(page *models.TablePage, col int) []string {
	out := make([]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		if col < len(row.Data) {
			out = append(out, row.Data[col])
		}
	}
	return out
}

func meanCellLength(page *models.TablePage, col int) float64 {
	if len(page.Rows) == 0 {
		return 0
	}
	total := 0
	for _, row := range page.Rows {
		if col < len(row.Data) {
			total += len(row.Data[col])
		}
	}
	return float64(total) / float64(len(page.Rows))
}
