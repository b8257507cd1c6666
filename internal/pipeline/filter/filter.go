// Package filter applies the ordered sample-restriction predicates that
// turn the derived household panel into the estimation sample.
//
// Predicate order is part of the contract: lags were materialized on the
// pre-filter panel, so dropping rows here never changes an
// already-computed lag value, and winsorization cut points are computed
// over the sample as it stands when winsorization runs, never recomputed.
// This is the only stage allowed to convert missing values into removed
// rows.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
	"hfpanel/internal/pipeline"
	"hfpanel/internal/pipeline/derive"
)

// StageName identifies the sample filter in logs and error reports.
const StageName = "sample_filter"

// Filter applies the configured restriction sequence.
type Filter struct {
	cfg    config.FilterConfig
	logger *slog.Logger
}

// New creates a sample filter for one restriction configuration.
// Robustness variants are alternate configurations of the same stage.
func New(cfg config.FilterConfig, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{cfg: cfg, logger: logger}
}

// Stage adapts the filter to the pipeline stage contract.
func (f *Filter) Stage() pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: f.Run}
}

// Run applies the predicates in their documented order. Every referenced
// field is checked up front; an unknown field is a configuration error
// raised before a single row is dropped.
func (f *Filter) Run(ctx context.Context, in *dataset.Table) (*dataset.Table, error) {
	referenced := []string{derive.ColBirthAge, "house_value", "birth_yc"}
	referenced = append(referenced, f.cfg.RequiredFields...)
	referenced = append(referenced, f.cfg.WinsorFields...)
	if f.cfg.WinsorByYear {
		referenced = append(referenced, "year")
	}
	if f.cfg.MinRawPrice > 0 {
		referenced = append(referenced, derive.ColPriceSqm)
	}
	if err := in.Require(referenced...); err != nil {
		return nil, err
	}

	out := in
	var err error

	steps := []struct {
		name  string
		apply func(*dataset.Table) (*dataset.Table, error)
	}{
		{"drop_missing_birth_age", f.dropMissing(derive.ColBirthAge)},
		{"keep_birth_age_bounds", f.keepBirthAgeBounds},
		{"drop_missing_required", f.dropMissingRequired},
		{"drop_negative_house_value", f.dropNegativeHouseValue},
		{"keep_birth_year_floor", f.keepBirthYearFloor},
		{"drop_low_raw_price", f.dropLowRawPrice},
		{"winsorize", f.winsorize},
	}

	for _, step := range steps {
		before := out.NumRows()
		out, err = step.apply(out)
		if err != nil {
			return nil, fmt.Errorf("predicate %s: %w", step.name, err)
		}
		f.logger.InfoContext(ctx, "predicate applied",
			slog.String("predicate", step.name),
			slog.Int("rows_before", before),
			slog.Int("rows_after", out.NumRows()),
		)
	}

	return out, nil
}

// dropMissing removes rows where the named column is missing.
func (f *Filter) dropMissing(name string) func(*dataset.Table) (*dataset.Table, error) {
	return func(t *dataset.Table) (*dataset.Table, error) {
		values, err := t.Floats(name)
		if err != nil {
			return nil, err
		}
		keep := make([]bool, len(values))
		for i, v := range values {
			keep[i] = !dataset.IsMissing(v)
		}
		return t.FilterRows(keep)
	}
}

// keepBirthAgeBounds keeps rows with birth age inside the configured
// inclusive window.
func (f *Filter) keepBirthAgeBounds(t *dataset.Table) (*dataset.Table, error) {
	values, err := t.Floats(derive.ColBirthAge)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(values))
	for i, v := range values {
		keep[i] = !dataset.IsMissing(v) && v >= f.cfg.MinBirthAge && v <= f.cfg.MaxBirthAge
	}
	return t.FilterRows(keep)
}

// dropMissingRequired removes rows missing any field of the required set.
func (f *Filter) dropMissingRequired(t *dataset.Table) (*dataset.Table, error) {
	keep := make([]bool, t.NumRows())
	for i := range keep {
		keep[i] = true
	}
	for _, name := range f.cfg.RequiredFields {
		c, ok := t.Column(name)
		if !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("required field %q not found", name), nil)
		}
		for i := range keep {
			if c.Kind == dataset.KindFloat {
				if dataset.IsMissing(c.Floats[i]) {
					keep[i] = false
				}
			} else if c.Strings[i] == "" {
				keep[i] = false
			}
		}
	}
	return t.FilterRows(keep)
}

// dropNegativeHouseValue removes rows with a negative property value.
func (f *Filter) dropNegativeHouseValue(t *dataset.Table) (*dataset.Table, error) {
	values, err := t.Floats("house_value")
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(values))
	for i, v := range values {
		keep[i] = dataset.IsMissing(v) || v >= 0
	}
	return t.FilterRows(keep)
}

// keepBirthYearFloor keeps rows whose child's birth year is at or above
// the configured floor.
func (f *Filter) keepBirthYearFloor(t *dataset.Table) (*dataset.Table, error) {
	values, err := t.Floats("birth_yc")
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(values))
	for i, v := range values {
		keep[i] = !dataset.IsMissing(v) && v >= f.cfg.BirthYearFloor
	}
	return t.FilterRows(keep)
}

// dropLowRawPrice removes very low raw price outliers. Disabled when the
// configured floor is zero (the baseline).
func (f *Filter) dropLowRawPrice(t *dataset.Table) (*dataset.Table, error) {
	if f.cfg.MinRawPrice <= 0 {
		return t, nil
	}
	values, err := t.Floats(derive.ColPriceSqm)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(values))
	for i, v := range values {
		keep[i] = dataset.IsMissing(v) || v >= f.cfg.MinRawPrice
	}
	return t.FilterRows(keep)
}

// winsorize caps the configured fields at the configured percentile cut
// points, optionally grouped by year.
func (f *Filter) winsorize(t *dataset.Table) (*dataset.Table, error) {
	out := t
	for _, name := range f.cfg.WinsorFields {
		values, err := out.Floats(name)
		if err != nil {
			return nil, err
		}

		var capped []float64
		if f.cfg.WinsorByYear {
			years, err := out.Floats("year")
			if err != nil {
				return nil, err
			}
			capped = winsorizeGrouped(values, years, f.cfg.WinsorLower, f.cfg.WinsorUpper)
		} else {
			capped = Winsorize(values, f.cfg.WinsorLower, f.cfg.WinsorUpper)
		}

		out = out.WithoutColumns(name)
		if out, err = out.WithColumn(dataset.NewFloatColumn(name, capped)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Winsorize caps values below the lower-percentile value and above the
// upper-percentile value. Cut points are order statistics of the
// non-missing sample (empirical quantiles): capping at an actual sample
// value leaves the order statistics unchanged, so re-applying the same
// cut points is a no-op. Interpolated quantiles do not have that
// property. Missing cells pass through.
func Winsorize(values []float64, lower, upper float64) []float64 {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !dataset.IsMissing(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return append([]float64(nil), values...)
	}
	sort.Float64s(valid)

	lo := stat.Quantile(lower, stat.Empirical, valid, nil)
	hi := stat.Quantile(upper, stat.Empirical, valid, nil)

	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case dataset.IsMissing(v):
			out[i] = v
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		default:
			out[i] = v
		}
	}
	return out
}

// winsorizeGrouped winsorizes within year groups; cut points are computed
// per group. Rows with a missing year pass through unchanged.
func winsorizeGrouped(values, years []float64, lower, upper float64) []float64 {
	out := append([]float64(nil), values...)

	groups := make(map[float64][]int)
	for i, y := range years {
		if dataset.IsMissing(y) {
			continue
		}
		groups[y] = append(groups[y], i)
	}

	for _, idx := range groups {
		group := make([]float64, len(idx))
		for j, i := range idx {
			group[j] = values[i]
		}
		capped := Winsorize(group, lower, upper)
		for j, i := range idx {
			out[i] = capped[j]
		}
	}
	return out
}
