package derive

import (
	"math"

	"hfpanel/internal/dataset"
)

// Elementwise transforms. All of them propagate missing inputs to missing
// outputs; none of them can fault on legitimate data. These are the only
// places where domain violations (log of a non-positive value, division
// by zero) are converted to missing cells.

// Log1p returns ln(1+x) per element. Zero maps to zero; x <= -1 is
// outside the domain and becomes missing.
func Log1p(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if dataset.IsMissing(v) || v <= -1 {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = math.Log1p(v)
	}
	return out
}

// Log returns ln(x) per element for series that are strictly positive by
// construction. Non-positive values become missing, not an error.
func Log(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if dataset.IsMissing(v) || v <= 0 {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = math.Log(v)
	}
	return out
}

// Ratio divides num by den per element. A zero or missing denominator
// yields missing.
func Ratio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		if dataset.IsMissing(num[i]) || dataset.IsMissing(den[i]) || den[i] == 0 {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}

// Scale multiplies every element by factor, preserving missing.
func Scale(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if dataset.IsMissing(v) {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = v * factor
	}
	return out
}

// Add returns a+b per element, missing when either side is missing.
func Add(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if dataset.IsMissing(a[i]) || dataset.IsMissing(b[i]) {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = a[i] + b[i]
	}
	return out
}

// Diff returns a-b per element, missing when either side is missing.
func Diff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if dataset.IsMissing(a[i]) || dataset.IsMissing(b[i]) {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = a[i] - b[i]
	}
	return out
}

// Product multiplies two already-scaled series per element, missing when
// either side is missing. Scaling constants must have been applied before
// this point, never after.
func Product(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if dataset.IsMissing(a[i]) || dataset.IsMissing(b[i]) {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = a[i] * b[i]
	}
	return out
}

// groupKey composes a group identifier from a string key and a float key.
// ok is false when either part is missing; such rows belong to no group.
type groupKey struct {
	s string
	f float64
}

// GroupMean computes, for each row, the mean of values over all rows
// sharing (strKeys[i], floatKeys[i]), using only non-missing values. Rows
// whose group has zero non-missing inputs, or whose key is incomplete,
// get missing. The aggregate is never backfilled across groups.
func GroupMean(values []float64, strKeys []string, floatKeys []float64) []float64 {
	sums := make(map[groupKey]float64)
	counts := make(map[groupKey]int)

	for i, v := range values {
		if strKeys[i] == "" || dataset.IsMissing(floatKeys[i]) || dataset.IsMissing(v) {
			continue
		}
		k := groupKey{s: strKeys[i], f: floatKeys[i]}
		sums[k] += v
		counts[k]++
	}

	out := make([]float64, len(values))
	for i := range values {
		out[i] = dataset.Missing()
		if strKeys[i] == "" || dataset.IsMissing(floatKeys[i]) {
			continue
		}
		k := groupKey{s: strKeys[i], f: floatKeys[i]}
		if n := counts[k]; n > 0 {
			out[i] = sums[k] / float64(n)
		}
	}
	return out
}
