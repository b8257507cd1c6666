// Package stats computes the descriptive summaries exported for human
// review: per-variable moments over the estimation sample and the
// per-field missing-rate report used to audit silent missing propagation.
package stats

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
)

// Summary holds the descriptive statistics of one variable, computed
// over its non-missing cells.
type Summary struct {
	Variable string
	N        int
	Mean     float64
	StdDev   float64
	Median   float64
	Min      float64
	Max      float64
}

// Describe summarizes the listed variables. A variable absent from the
// table is a configuration error; a variable with zero non-missing cells
// reports N=0 with missing moments.
func Describe(t *dataset.Table, variables []string) ([]Summary, error) {
	if err := t.Require(variables...); err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(variables))
	for _, name := range variables {
		values, err := t.Floats(name)
		if err != nil {
			return nil, apperrors.NewConfigError(
				fmt.Sprintf("descriptive statistics need a numeric column, %q is not", name), err)
		}

		valid := make([]float64, 0, len(values))
		for _, v := range values {
			if !dataset.IsMissing(v) {
				valid = append(valid, v)
			}
		}

		s := Summary{Variable: name, N: len(valid)}
		if len(valid) == 0 {
			s.Mean = dataset.Missing()
			s.StdDev = dataset.Missing()
			s.Median = dataset.Missing()
			s.Min = dataset.Missing()
			s.Max = dataset.Missing()
			out = append(out, s)
			continue
		}

		sort.Float64s(valid)
		s.Mean = stat.Mean(valid, nil)
		s.StdDev = stat.StdDev(valid, nil)
		s.Median = median(valid)
		s.Min = valid[0]
		s.Max = valid[len(valid)-1]
		out = append(out, s)
	}

	return out, nil
}

// median returns the conventional median of a sorted sample: the middle
// value for odd n, the mean of the two middle values for even n.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MissingRate pairs a field with its share of missing cells.
type MissingRate struct {
	Field string
	Rate  float64
}

// MissingReport computes the missing share for each listed field, for
// the degraded-row accounting the pipeline exposes alongside its
// artifacts.
func MissingReport(t *dataset.Table, fields []string) ([]MissingRate, error) {
	if err := t.Require(fields...); err != nil {
		return nil, err
	}

	out := make([]MissingRate, 0, len(fields))
	for _, name := range fields {
		rate, err := t.MissingRate(name)
		if err != nil {
			return nil, err
		}
		out = append(out, MissingRate{Field: name, Rate: rate})
	}
	return out, nil
}
