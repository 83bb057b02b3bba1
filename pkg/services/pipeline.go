package services

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// Pipeline runs the annotation stages over one claimed page:
//
//	DataPrep -> Lookup -> FeaturesInitial -> PredictInitial (rho)
//	        -> FeaturesRevision -> PredictFinal (rho') -> Decision
//
// Stages downstream of lookup tolerate empty candidate lists and missing
// features. Internal invariant violations mark the page ERROR with a log
// entry; the worker carries on with the next page.
type Pipeline struct {
	dataPrep  *DataPreparation
	lookup    *Lookup
	features  *FeatureExtraction
	revision  *Revision
	initial   *Prediction
	final     *Prediction
	decision  *Decision
	pages     repositories.PageRepository
	logs      repositories.LogRepository
	logger    *zap.Logger
}

// NewPipeline wires the stages around the two loaded models.
func NewPipeline(
	dataPrep *DataPreparation,
	lookup *Lookup,
	features *FeatureExtraction,
	revision *Revision,
	initial *Prediction,
	final *Prediction,
	decision *Decision,
	pages repositories.PageRepository,
	logs repositories.LogRepository,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		dataPrep: dataPrep,
		lookup:   lookup,
		features: features,
		revision: revision,
		initial:  initial,
		final:    final,
		decision: decision,
		pages:    pages,
		logs:     logs,
		logger:   logger.Named("pipeline"),
	}
}

// ProcessPage runs a claimed page to completion. It returns the error that
// failed the page, after the ERROR status and log entry are already written.
func (p *Pipeline) ProcessPage(ctx context.Context, page *models.TablePage) error {
	start := time.Now()
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	p.logger.Info("processing page",
		zap.String("datasetName", page.DatasetName),
		zap.String("tableName", page.TableName),
		zap.Int("page", page.Page))

	if err := p.annotate(ctx, page, start, &memBefore); err != nil {
		p.failPage(ctx, page, err)
		return err
	}
	return nil
}

func (p *Pipeline) annotate(ctx context.Context, page *models.TablePage, start time.Time, memBefore *runtime.MemStats) error {
	column, target, err := p.dataPrep.ComputeDatatypes(ctx, page)
	if err != nil {
		return err
	}
	p.dataPrep.NormalizeRows(page)

	key := models.PageKey{
		DatasetName: page.DatasetName,
		TableName:   page.TableName,
		KGReference: page.Kwargs.KG,
		Page:        page.Page,
	}

	rows := p.lookup.GenerateCandidates(ctx, page, target)
	p.features.ComputeFeatures(ctx, rows, page.Kwargs.Limit)

	if err := p.initial.Compute(rows, PassRho); err != nil {
		return err
	}
	prelinking := SnapshotCEA(key, rows)

	// Revision features come from a stable snapshot of the rho ranking;
	// nothing mutates the candidates while the profiles are aggregated.
	profiles := p.revision.BuildProfiles(rows, func(c *models.Candidate) float64 { return c.Rho })
	p.revision.ComputeFeatures(rows, profiles)

	if err := p.final.Compute(rows, PassRhoPrime); err != nil {
		return err
	}

	if _, err := p.decision.Materialize(ctx, key, rows, prelinking); err != nil {
		return err
	}

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	completion := &repositories.PageCompletion{
		Column:     column,
		Target:     target,
		Metadata:   columnMetadata(column),
		Time:       time.Since(start).Seconds(),
		MemorySize: memAfter.TotalAlloc - memBefore.TotalAlloc,
		MemoryPeak: memAfter.HeapInuse,
	}
	if err := p.pages.CompletePage(ctx, page.ID, completion); err != nil {
		return err
	}

	p.logger.Info("page done",
		zap.String("datasetName", page.DatasetName),
		zap.String("tableName", page.TableName),
		zap.Int("page", page.Page),
		zap.Float64("seconds", completion.Time))
	return nil
}

func (p *Pipeline) failPage(ctx context.Context, page *models.TablePage, cause error) {
	p.logger.Error("page failed",
		zap.String("datasetName", page.DatasetName),
		zap.String("tableName", page.TableName),
		zap.Int("page", page.Page),
		zap.Error(cause))

	p.logs.Record(ctx, &models.LogDoc{
		DatasetName: page.DatasetName,
		TableName:   page.TableName,
		Error:       cause.Error(),
		StackTrace:  string(debug.Stack()),
	})
	if err := p.pages.FailPage(ctx, page.ID); err != nil {
		p.logger.Error("failed to mark page as error", zap.Error(err))
	}
}

// columnMetadata renders the tag map in the caller-facing shape.
func columnMetadata(column map[string]string) map[string][]models.ColumnMetadataEntry {
	entries := make([]models.ColumnMetadataEntry, 0, len(column))
	for col, tag := range column {
		idCol, err := strconv.Atoi(col)
		if err != nil {
			continue
		}
		entries = append(entries, models.ColumnMetadataEntry{IDColumn: idCol, Tag: tag})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IDColumn < entries[j].IDColumn })
	return map[string][]models.ColumnMetadataEntry{"column": entries}
}
