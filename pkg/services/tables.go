package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// FeatureValue is one named diagnostic feature surfaced on a CEA entity.
type FeatureValue struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// EntityAnnotation is one candidate as surfaced on the query path. Score is
// the final score rho'; rho is exposed only as the omega diagnostic feature.
type EntityAnnotation struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Types       []models.CandidateType `json:"type"`
	Description string                 `json:"description"`
	Match       bool                   `json:"match"`
	Score       float64                `json:"score"`
	Features    []FeatureValue         `json:"features"`
}

// CEAEntry, CTAEntry and CPAEntry mirror the public annotation shapes.
type CEAEntry struct {
	IDColumn int                `json:"idColumn"`
	IDRow    int                `json:"idRow"`
	Entities []EntityAnnotation `json:"entity"`
}

type CTAEntry struct {
	IDColumn int      `json:"idColumn"`
	Types    []string `json:"types"`
}

type CPAEntry struct {
	IDSourceColumn string   `json:"idSourceColumn"`
	IDTargetColumn string   `json:"idTargetColumn"`
	Predicates     []string `json:"predicate"`
}

// SemanticAnnotations groups the three annotation families of a table.
type SemanticAnnotations struct {
	CEA []CEAEntry `json:"cea"`
	CTA []CTAEntry `json:"cta"`
	CPA []CPAEntry `json:"cpa"`
}

// AnnotatedTable is the full queryable view of one table.
type AnnotatedTable struct {
	DatasetName         string                                  `json:"datasetName"`
	TableName           string                                  `json:"tableName"`
	Header              []string                                `json:"header"`
	Rows                []models.RowData                        `json:"rows"`
	NRows               int                                     `json:"nrows"`
	SemanticAnnotations SemanticAnnotations                     `json:"semanticAnnotations"`
	Metadata            map[string][]models.ColumnMetadataEntry `json:"metadata"`
	Status              string                                  `json:"status"`
}

// TableService serves annotated tables and handles table/dataset removal.
type TableService struct {
	datasets    repositories.DatasetRepository
	tables      repositories.TableRepository
	pages       repositories.PageRepository
	annotations repositories.AnnotationRepository
	logger      *zap.Logger
}

// NewTableService creates the table query service.
func NewTableService(
	datasets repositories.DatasetRepository,
	tables repositories.TableRepository,
	pages repositories.PageRepository,
	annotations repositories.AnnotationRepository,
	logger *zap.Logger,
) *TableService {
	return &TableService{
		datasets:    datasets,
		tables:      tables,
		pages:       pages,
		annotations: annotations,
		logger:      logger.Named("tables"),
	}
}

// GetAnnotated assembles a table and its annotations; a nil page merges every
// page. The reported status is DONE only when every row has a CEA document.
func (s *TableService) GetAnnotated(ctx context.Context, datasetName, tableName string, page *int) (*AnnotatedTable, error) {
	pages, err := s.pages.ListByTable(ctx, datasetName, tableName, page)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("table %s/%s: %w", datasetName, tableName, apperrors.ErrNotFound)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })

	out := &AnnotatedTable{
		DatasetName: datasetName,
		TableName:   tableName,
		Header:      pages[0].Header,
		Metadata:    pages[0].Metadata,
		SemanticAnnotations: SemanticAnnotations{
			CEA: []CEAEntry{},
			CTA: []CTAEntry{},
			CPA: []CPAEntry{},
		},
	}
	for _, p := range pages {
		out.Rows = append(out.Rows, p.Rows...)
	}
	out.NRows = len(out.Rows)

	ceaDocs, err := s.annotations.FindCEA(ctx, datasetName, tableName, page)
	if err != nil {
		return nil, err
	}
	for _, doc := range ceaDocs {
		for idCol, candidates := range doc.WinningCandidates {
			entities := make([]EntityAnnotation, 0, len(candidates))
			for _, c := range candidates {
				entities = append(entities, annotationFor(c))
			}
			out.SemanticAnnotations.CEA = append(out.SemanticAnnotations.CEA, CEAEntry{
				IDColumn: idCol,
				IDRow:    doc.Row,
				Entities: entities,
			})
		}
	}

	out.Status = models.StatusDoing
	if len(ceaDocs) == out.NRows {
		out.Status = models.StatusDone
	}

	ctaDoc, err := s.annotations.FindCTA(ctx, datasetName, tableName, page)
	if err != nil {
		return nil, err
	}
	if ctaDoc != nil {
		cols := make([]string, 0, len(ctaDoc.CTA))
		for col := range ctaDoc.CTA {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			idCol, err := strconv.Atoi(col)
			if err != nil {
				continue
			}
			out.SemanticAnnotations.CTA = append(out.SemanticAnnotations.CTA, CTAEntry{
				IDColumn: idCol,
				Types:    []string{ctaDoc.CTA[col]},
			})
		}
	}

	cpaDoc, err := s.annotations.FindCPA(ctx, datasetName, tableName, page)
	if err != nil {
		return nil, err
	}
	if cpaDoc != nil {
		for src, targets := range cpaDoc.CPA {
			dsts := make([]string, 0, len(targets))
			for dst := range targets {
				dsts = append(dsts, dst)
			}
			sort.Strings(dsts)
			for _, dst := range dsts {
				out.SemanticAnnotations.CPA = append(out.SemanticAnnotations.CPA, CPAEntry{
					IDSourceColumn: src,
					IDTargetColumn: dst,
					Predicates:     []string{targets[dst]},
				})
			}
		}
	}

	return out, nil
}

// annotationFor renders a candidate for the query path: score is rho', the
// delta margin and the original rho (omega) ride along as features.
func annotationFor(c *models.Candidate) EntityAnnotation {
	features := []FeatureValue{
		{ID: "delta", Value: c.Delta},
		{ID: "omega", Value: c.Rho},
	}
	for _, name := range models.FeatureOrder {
		features = append(features, FeatureValue{ID: name, Value: c.Feature(name)})
	}
	return EntityAnnotation{
		ID:          c.ID,
		Name:        c.Name,
		Types:       c.Types,
		Description: c.Description,
		Match:       c.Match,
		Score:       c.RhoPrime,
		Features:    features,
	}
}

// DeleteTable removes a table with its pages and artifacts.
func (s *TableService) DeleteTable(ctx context.Context, datasetName, tableName string) error {
	if err := s.pages.DeleteByTable(ctx, datasetName, tableName); err != nil {
		return err
	}
	if err := s.tables.Delete(ctx, datasetName, tableName); err != nil {
		return err
	}
	return s.annotations.DeleteByTable(ctx, datasetName, tableName)
}

// DeleteDataset removes a dataset with all of its tables and artifacts.
func (s *TableService) DeleteDataset(ctx context.Context, datasetName string) error {
	if err := s.datasets.Delete(ctx, datasetName); err != nil {
		return err
	}
	if err := s.pages.DeleteByDataset(ctx, datasetName); err != nil {
		return err
	}
	if err := s.tables.DeleteByDataset(ctx, datasetName); err != nil {
		return err
	}
	return s.annotations.DeleteByDataset(ctx, datasetName)
}
