// Package regression defines the declarative estimation specifications
// and the contract of the external estimation backend.
//
// A Spec names fields on the estimation table; this package validates
// those references and level counts but performs no estimation itself.
// Anything implementing Estimator (internal/regression/lsq in this repo)
// consumes validated specs.
package regression

import (
	"context"
	"fmt"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
)

// Subset optionally restricts a specification to rows where Field equals
// Value (e.g. owners-only samples).
type Subset struct {
	Field string
	Value float64
}

// Spec declares one estimation: outcome, regressors, fixed-effect
// groupings, instruments (empty for non-IV), the cluster variable for
// standard errors (required, all reported errors are cluster-robust) and
// an optional sample subset.
type Spec struct {
	Name         string
	Outcome      string
	Exogenous    []string
	Endogenous   []string
	Instruments  []string
	FixedEffects []string
	Cluster      string
	Subset       *Subset
}

// IsIV reports whether the spec requires two-stage estimation.
func (s Spec) IsIV() bool {
	return len(s.Endogenous) > 0
}

// Fields returns every table column the spec references.
func (s Spec) Fields() []string {
	fields := []string{s.Outcome}
	fields = append(fields, s.Exogenous...)
	fields = append(fields, s.Endogenous...)
	fields = append(fields, s.Instruments...)
	fields = append(fields, s.FixedEffects...)
	if s.Cluster != "" {
		fields = append(fields, s.Cluster)
	}
	if s.Subset != nil {
		fields = append(fields, s.Subset.Field)
	}
	return fields
}

// Validate checks the spec against the estimation table: every referenced
// field must exist, instrument counts must identify the endogenous
// regressors, and each fixed-effect or cluster variable needs at least
// two distinct levels; a single-level grouping cannot identify a fixed
// effect.
func Validate(s Spec, t *dataset.Table) error {
	if s.Name == "" {
		return apperrors.NewConfigError("specification has no name", nil)
	}
	if s.Outcome == "" {
		return apperrors.NewConfigError("specification has no outcome", nil).
			WithContext("spec", s.Name)
	}
	if s.Cluster == "" {
		return apperrors.NewConfigError("specification has no cluster variable", nil).
			WithContext("spec", s.Name)
	}
	if len(s.Endogenous) == 0 && len(s.Instruments) > 0 {
		return apperrors.NewConfigError("instruments given without endogenous regressors", nil).
			WithContext("spec", s.Name)
	}
	if len(s.Endogenous) > len(s.Instruments) && s.IsIV() {
		return apperrors.NewConfigError("fewer instruments than endogenous regressors", nil).
			WithContext("spec", s.Name)
	}
	if len(s.Regressors()) == 0 {
		return apperrors.NewConfigError("specification has no regressors", nil).
			WithContext("spec", s.Name)
	}

	if err := t.Require(s.Fields()...); err != nil {
		return err
	}

	grouping := append([]string(nil), s.FixedEffects...)
	if s.Cluster != "" {
		grouping = append(grouping, s.Cluster)
	}
	for _, name := range grouping {
		levels, err := distinctLevels(t, name)
		if err != nil {
			return err
		}
		if levels < 2 {
			return apperrors.NewConfigError(
				fmt.Sprintf("grouping variable %q has fewer than two levels", name), nil).
				WithContext("spec", s.Name).
				WithContext("levels", levels)
		}
	}

	return nil
}

// Regressors returns the full second-stage regressor list, endogenous
// first.
func (s Spec) Regressors() []string {
	out := append([]string(nil), s.Endogenous...)
	return append(out, s.Exogenous...)
}

// distinctLevels counts distinct non-missing values of a column.
func distinctLevels(t *dataset.Table, name string) (int, error) {
	c, ok := t.Column(name)
	if !ok {
		return 0, apperrors.NewConfigError(fmt.Sprintf("column %q not found", name), nil)
	}

	if c.Kind == dataset.KindString {
		seen := make(map[string]bool)
		for _, v := range c.Strings {
			if v != "" {
				seen[v] = true
			}
		}
		return len(seen), nil
	}

	seen := make(map[float64]bool)
	for _, v := range c.Floats {
		if !dataset.IsMissing(v) {
			seen[v] = true
		}
	}
	return len(seen), nil
}

// Coefficient is one estimated term.
type Coefficient struct {
	Term     string
	Estimate float64
	StdErr   float64
}

// Result carries the estimates and diagnostics of one specification.
type Result struct {
	SpecName       string
	Coefficients   []Coefficient
	N              int
	Clusters       int
	AbsorbedLevels map[string]int
	// FirstStageF is the partial F-statistic on the excluded
	// instruments; missing for non-IV specs.
	FirstStageF float64
}

// Estimator is the external estimation backend contract: it receives a
// validated spec and an immutable table and returns estimates or an
// estimation error (collinearity, insufficient within-group variation)
// tagged for the caller.
type Estimator interface {
	Estimate(ctx context.Context, spec Spec, t *dataset.Table) (*Result, error)
}

// Outcome pairs a spec with its result or failure.
type Outcome struct {
	Spec   Spec
	Result *Result
	Err    error
}
