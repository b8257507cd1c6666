package regression

import (
	"context"
	"log/slog"

	"hfpanel/internal/dataset"
)

// RunBatch validates and estimates each specification independently
// against an immutable estimation table. A failed spec, whether at
// validation or estimation, is recorded in its outcome and never aborts
// the remaining specifications.
func RunBatch(ctx context.Context, est Estimator, t *dataset.Table, specs []Spec, logger *slog.Logger) []Outcome {
	if logger == nil {
		logger = slog.Default()
	}

	outcomes := make([]Outcome, 0, len(specs))
	for _, spec := range specs {
		outcome := Outcome{Spec: spec}

		if err := Validate(spec, t); err != nil {
			logger.WarnContext(ctx, "specification rejected",
				slog.String("spec", spec.Name),
				slog.String("error", err.Error()),
			)
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}

		result, err := est.Estimate(ctx, spec, t)
		if err != nil {
			logger.WarnContext(ctx, "estimation failed",
				slog.String("spec", spec.Name),
				slog.String("error", err.Error()),
			)
			outcome.Err = err
		} else {
			logger.InfoContext(ctx, "estimation completed",
				slog.String("spec", spec.Name),
				slog.Int("n_obs", result.N),
				slog.Int("clusters", result.Clusters),
			)
			outcome.Result = result
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}
