// Package pipeline runs the cleaning stages as a strict sequential
// chain. Each stage consumes the previous stage's table and returns a new
// one; a stage error aborts the run and is reported with the stage name.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hfpanel/internal/dataset"
)

// Stage is a single transformation step in the cleaning pipeline.
type Stage interface {
	// Name returns the stage identifier used in logs and error reports
	Name() string

	// Run transforms the input table into a new output table
	Run(ctx context.Context, in *dataset.Table) (*dataset.Table, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, in *dataset.Table) (*dataset.Table, error)
}

// Name returns the stage identifier
func (s StageFunc) Name() string { return s.StageName }

// Run invokes the wrapped function
func (s StageFunc) Run(ctx context.Context, in *dataset.Table) (*dataset.Table, error) {
	return s.Fn(ctx, in)
}

// Runner executes stages in order, logging row counts and durations.
type Runner struct {
	logger *slog.Logger
	runID  string
}

// NewRunner creates a runner tagged with a run id carried into every log
// line.
func NewRunner(logger *slog.Logger, runID string) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With(slog.String("run_id", runID)), runID: runID}
}

// Execute runs the stages sequentially over the input table. The first
// stage error aborts the chain; the returned error names the stage.
func (r *Runner) Execute(ctx context.Context, in *dataset.Table, stages ...Stage) (*dataset.Table, error) {
	current := in

	for _, stage := range stages {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pipeline cancelled before stage %s: %w", stage.Name(), ctx.Err())
		default:
		}

		start := time.Now()
		r.logger.InfoContext(ctx, "stage starting",
			slog.String("stage", stage.Name()),
			slog.Int("rows_in", current.NumRows()),
		)

		out, err := stage.Run(ctx, current)
		if err != nil {
			r.logger.ErrorContext(ctx, "stage failed",
				slog.String("stage", stage.Name()),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		r.logger.InfoContext(ctx, "stage completed",
			slog.String("stage", stage.Name()),
			slog.Int("rows_out", out.NumRows()),
			slog.Duration("elapsed", time.Since(start)),
		)
		current = out
	}

	return current, nil
}
