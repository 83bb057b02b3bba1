package services

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/lamapi"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// Lookup retrieves candidates for every NE cell of a page. Requests are
// dispatched concurrently (one per distinct cell text, memoized for the
// page) and fan in before the stage returns; the in-flight bound lives in
// the KG client's semaphore.
type Lookup struct {
	api    lamapi.API
	logs   repositories.LogRepository
	logger *zap.Logger
}

// NewLookup creates the lookup stage.
func NewLookup(api lamapi.API, logs repositories.LogRepository, logger *zap.Logger) *Lookup {
	return &Lookup{api: api, logs: logs, logger: logger.Named("lookup")}
}

// GenerateCandidates builds the in-memory rows of a page with candidates
// attached in the service's ordering. A cell whose lookup failed permanently
// keeps an empty candidate list and never fails the page.
func (l *Lookup) GenerateCandidates(ctx context.Context, page *models.TablePage, target *models.Target) []*models.Row {
	kg := page.Kwargs.KG
	limit := page.Kwargs.Limit
	if limit <= 0 {
		limit = 50
	}

	neCols := make(map[int]bool, len(target.NE))
	for _, col := range target.NE {
		neCols[col] = true
	}
	litCols := make(map[int]string, len(target.Lit))
	for _, col := range target.Lit {
		dt := target.LitDatatype[strconv.Itoa(col)]
		if dt == "" {
			dt = models.DatatypeString
		}
		litCols[col] = dt
	}

	// One request per distinct cell text, first-seen provided ids as hints.
	type lookupResult struct {
		candidates []lamapi.LookupCandidate
		err        error
	}
	results := make(map[string]*lookupResult)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, row := range page.Rows {
		for col, text := range row.Data {
			if !neCols[col] || text == "" {
				continue
			}
			mu.Lock()
			if _, seen := results[text]; seen {
				mu.Unlock()
				continue
			}
			res := &lookupResult{}
			results[text] = res
			mu.Unlock()

			wg.Add(1)
			go func(text string, providedIDs []string) {
				defer wg.Done()
				res.candidates, res.err = l.api.Lookup(ctx, text, providedIDs, kg, limit)
			}(text, providedIDsFor(row, col))
		}
	}
	wg.Wait()

	rows := make([]*models.Row, 0, len(page.Rows))
	for _, rowData := range page.Rows {
		row := models.NewRow(rowData.IDRow, len(rowData.Data))
		row.Text = strings.Join(rowData.Data, " ")

		for col, text := range rowData.Data {
			folded := Fold(text)
			switch {
			case neCols[col]:
				res := results[text]
				if res != nil && res.err != nil {
					l.recordCellFailure(ctx, page, rowData.IDRow, text, res.err)
				}
				var candidates []*models.Candidate
				if res != nil && res.err == nil {
					candidates = buildCandidates(res.candidates, folded, limit)
				}
				isSubject := target.Subject != nil && *target.Subject == col
				row.AddNECell(text, folded, col, isSubject, providedIDFor(rowData, col), candidates)
			case litCols[col] != "":
				row.AddLitCell(text, folded, col, litCols[col])
			default:
				row.AddNoTagCell(text, folded, col)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// buildCandidates converts service entries into per-cell candidates. Each
// cell gets its own copies: features and scores diverge per cell even when
// the lookup was shared. Match is a case-insensitive exact label comparison.
func buildCandidates(entries []lamapi.LookupCandidate, foldedText string, limit int) []*models.Candidate {
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*models.Candidate, 0, len(entries))
	for _, e := range entries {
		types := make([]models.CandidateType, len(e.Types))
		copy(types, e.Types)
		c := &models.Candidate{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Types:       types,
			Match:       Fold(CleanCell(e.Name)) == foldedText,
		}
		// Raw retrieval signals; min-max normalized within the cell during
		// feature extraction.
		c.SetFeature(models.FeatPopularity, e.Popularity)
		c.SetFeature(models.FeatESScore, e.Score)
		out = append(out, c)
	}
	return out
}

func (l *Lookup) recordCellFailure(ctx context.Context, page *models.TablePage, idRow int, cell string, err error) {
	l.logger.Warn("lookup failed for cell",
		zap.String("datasetName", page.DatasetName),
		zap.String("tableName", page.TableName),
		zap.Int("idRow", idRow),
		zap.String("cell", cell),
		zap.Error(err))
	if l.logs == nil {
		return
	}
	row := idRow
	l.logs.Record(ctx, &models.LogDoc{
		DatasetName: page.DatasetName,
		TableName:   page.TableName,
		IDRow:       &row,
		Cell:        cell,
		Error:       err.Error(),
		StackTrace:  string(debug.Stack()),
	})
}

func providedIDsFor(row models.RowData, col int) []string {
	if id := providedIDFor(row, col); id != "" {
		return []string{id}
	}
	return nil
}

func providedIDFor(row models.RowData, col int) string {
	if col < len(row.IDs) {
		return row.IDs[col]
	}
	return ""
}

