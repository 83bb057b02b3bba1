package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/alligator-inc/alligator-engine/pkg/apperrors"
	"github.com/alligator-inc/alligator-engine/pkg/models"
	"github.com/alligator-inc/alligator-engine/pkg/repositories"
)

// PageProcessor runs one claimed page end-to-end. Implemented by Pipeline.
type PageProcessor interface {
	ProcessPage(ctx context.Context, page *models.TablePage) error
}

// Worker claims one page at a time and runs the pipeline over it. When the
// claim comes back empty it raises the STOP signal and backs off; the ingress
// clears STOP whenever new work lands.
type Worker struct {
	pages        repositories.PageRepository
	processor    PageProcessor
	signal       JobSignal
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewWorker creates a worker loop.
func NewWorker(pages repositories.PageRepository, processor PageProcessor, signal JobSignal, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		pages:        pages,
		processor:    processor,
		signal:       signal,
		pollInterval: pollInterval,
		logger:       logger.Named("worker"),
	}
}

// Run loops until the context is cancelled. Page failures are already
// persisted by the pipeline; the loop itself only stops on shutdown.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		page, err := w.pages.ClaimNext(ctx)
		switch {
		case errors.Is(err, apperrors.ErrNoWork):
			if serr := w.signal.SetStop(ctx); serr != nil {
				w.logger.Warn("failed to raise stop signal", zap.Error(serr))
			}
			if !w.sleep(ctx) {
				return
			}
			continue
		case err != nil:
			w.logger.Error("failed to claim page", zap.Error(err))
			if !w.sleep(ctx) {
				return
			}
			continue
		}

		// Pages run to completion; there is no cooperative cancellation of
		// an in-flight page.
		_ = w.processor.ProcessPage(context.WithoutCancel(ctx), page)
	}
}

// sleep waits one poll interval; false means the context was cancelled.
func (w *Worker) sleep(ctx context.Context) bool {
	select {
	case <-time.After(w.pollInterval):
		return true
	case <-ctx.Done():
		return false
	}
}
