package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/gridextract/internal/session"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the default number of sessions processed at once.
const DefaultConcurrency = 4

// BatchProcessor runs many jobs. Jobs are grouped by session: a group runs
// its jobs in submission order on one goroutine, and up to concurrency
// groups run at the same time.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each job.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of sessions processed at once.
	concurrency int

	// onRun, if set, is called after each job finishes.
	onRun func(run *Run, index int)

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of sessions processed at once.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithOnRun registers a callback invoked after each job with the job's
// index in the submitted slice. It is called from the session's goroutine
// and must be safe for concurrent use.
func WithOnRun(fn func(run *Run, index int)) BatchOption {
	return func(b *BatchProcessor) {
		b.onRun = fn
	}
}

// NewBatchProcessor creates a new BatchProcessor. pipelineFactory is called
// once per job.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// group is the ordered jobs of one session.
type group struct {
	sess    *session.Session
	indexes []int
}

// groupBySession keeps first-seen session order and job order within a session.
func groupBySession(jobs []Job) []*group {
	groups := make([]*group, 0)
	bySession := make(map[*session.Session]*group)
	for i, job := range jobs {
		g, ok := bySession[job.Session]
		if !ok {
			g = &group{sess: job.Session}
			bySession[job.Session] = g
			groups = append(groups, g)
		}
		g.indexes = append(g.indexes, i)
	}
	return groups
}

// ProcessBatch runs jobs and returns one Run per job in submission order.
//
// Extraction failures are recorded on their Run and do not stop other
// jobs. The returned error is the first pipeline error or the context's
// error; runs that never started are nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, jobs []Job) ([]*Run, error) {
	groups := groupBySession(jobs)
	bp.logger.Info("starting batch processing",
		"total_jobs", len(jobs),
		"sessions", len(groups),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	// Each index is written by exactly one goroutine.
	results := make([]*Run, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for _, grp := range groups {
		g.Go(func() error {
			for _, i := range grp.indexes {
				if err := ctx.Err(); err != nil {
					return err
				}

				run := NewRun(jobs[i])
				err := bp.pipelineFactory().Execute(ctx, run)
				results[i] = run

				if bp.onRun != nil {
					bp.onRun(run, i)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_jobs", len(jobs),
		"elapsed", time.Since(startTime),
	)

	return results, err
}
