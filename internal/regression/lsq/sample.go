package lsq

import (
	"strconv"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
	"hfpanel/internal/regression"
)

// interceptTerm names the constant added when no fixed effect absorbs it.
const interceptTerm = "_cons"

// grouping is one fixed-effect dimension over the estimation sample.
type grouping struct {
	name   string
	ids    []int
	levels int
}

// sample is the fully materialized estimation problem: listwise-complete
// rows, columnar design vectors and integer-coded groupings.
type sample struct {
	n          int
	y          []float64
	x          [][]float64 // endogenous first, then exogenous
	z          [][]float64 // excluded instruments
	regressors []string

	groupings      []grouping
	absorbedLevels map[string]int
	absorbedDF     int

	clusterIDs []int
	nClusters  int
}

// assemble extracts the spec's sample from the table: the subset
// restriction first, then listwise deletion over every referenced field.
// Estimation never sees a missing cell.
func (e *Estimator) assemble(spec regression.Spec, t *dataset.Table) (*sample, error) {
	keep, err := completeRows(spec, t)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	if n == 0 {
		return nil, apperrors.NewEstimationError(spec.Name, "no complete observations in sample", nil)
	}

	s := &sample{n: n, absorbedLevels: make(map[string]int)}

	if s.y, err = gatherFloats(t, spec.Outcome, keep, n); err != nil {
		return nil, err
	}

	s.regressors = spec.Regressors()
	for _, name := range s.regressors {
		col, err := gatherFloats(t, name, keep, n)
		if err != nil {
			return nil, err
		}
		s.x = append(s.x, col)
	}

	for _, name := range spec.Instruments {
		col, err := gatherFloats(t, name, keep, n)
		if err != nil {
			return nil, err
		}
		s.z = append(s.z, col)
	}

	for _, name := range spec.FixedEffects {
		ids, levels, err := gatherGroups(t, name, keep, n)
		if err != nil {
			return nil, err
		}
		s.groupings = append(s.groupings, grouping{name: name, ids: ids, levels: levels})
		s.absorbedLevels[name] = levels
	}
	if len(s.groupings) > 0 {
		for _, g := range s.groupings {
			s.absorbedDF += g.levels
		}
		s.absorbedDF -= len(s.groupings) - 1
	} else {
		// Nothing absorbs the mean, so the design carries a constant.
		ones := make([]float64, n)
		for i := range ones {
			ones[i] = 1
		}
		s.x = append(s.x, ones)
		s.regressors = append(s.regressors, interceptTerm)
	}

	s.clusterIDs, s.nClusters, err = gatherGroups(t, spec.Cluster, keep, n)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// completeRows builds the sample mask: subset restriction plus no
// missing value in any referenced field.
func completeRows(spec regression.Spec, t *dataset.Table) ([]bool, error) {
	keep := make([]bool, t.NumRows())
	for i := range keep {
		keep[i] = true
	}

	if spec.Subset != nil {
		values, err := t.Floats(spec.Subset.Field)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if dataset.IsMissing(v) || v != spec.Subset.Value {
				keep[i] = false
			}
		}
	}

	for _, name := range spec.Fields() {
		c, ok := t.Column(name)
		if !ok {
			return nil, apperrors.NewConfigError("column "+name+" not found", nil)
		}
		if c.Kind == dataset.KindFloat {
			for i := range keep {
				if dataset.IsMissing(c.Floats[i]) {
					keep[i] = false
				}
			}
		} else {
			for i := range keep {
				if c.Strings[i] == "" {
					keep[i] = false
				}
			}
		}
	}

	return keep, nil
}

// gatherFloats extracts the kept cells of a numeric column.
func gatherFloats(t *dataset.Table, name string, keep []bool, n int) ([]float64, error) {
	values, err := t.Floats(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, values[i])
		}
	}
	return out, nil
}

// gatherGroups integer-codes a grouping column over the kept rows.
func gatherGroups(t *dataset.Table, name string, keep []bool, n int) ([]int, int, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, 0, apperrors.NewConfigError("column "+name+" not found", nil)
	}

	ids := make([]int, 0, n)
	index := make(map[string]int)

	for i, k := range keep {
		if !k {
			continue
		}
		var key string
		if c.Kind == dataset.KindString {
			key = c.Strings[i]
		} else {
			key = strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
		}
		id, seen := index[key]
		if !seen {
			id = len(index)
			index[key] = id
		}
		ids = append(ids, id)
	}

	return ids, len(index), nil
}

// demeanAll removes group means from every vector, alternating over the
// groupings until the largest adjustment falls under tolerance. With one
// grouping a single sweep is exact.
func demeanAll(vecs [][]float64, groups []grouping) {
	if len(groups) == 0 || len(vecs) == 0 {
		return
	}

	for iter := 0; iter < demeanMaxIter; iter++ {
		maxDelta := 0.0

		for _, g := range groups {
			counts := make([]float64, g.levels)
			for _, id := range g.ids {
				counts[id]++
			}

			for _, v := range vecs {
				sums := make([]float64, g.levels)
				for i, id := range g.ids {
					sums[id] += v[i]
				}
				for i, id := range g.ids {
					m := sums[id] / counts[id]
					v[i] -= m
					if m < 0 {
						m = -m
					}
					if m > maxDelta {
						maxDelta = m
					}
				}
			}
		}

		if len(groups) == 1 || maxDelta < demeanTol {
			return
		}
	}
}
