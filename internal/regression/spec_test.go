package regression

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
)

// estimationTable builds a small valid estimation table
func estimationTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New(
		dataset.NewFloatColumn("fertility", []float64{0, 1, 0, 1}),
		dataset.NewFloatColumn("comm_price", []float64{1, 2, 3, 4}),
		dataset.NewFloatColumn("ln_income", []float64{2, 2.5, 3, 3.5}),
		dataset.NewFloatColumn("iv_fiscal_water", []float64{0.1, 0.2, 0.3, 0.4}),
		dataset.NewStringColumn("city_id", []string{"c1", "c1", "c2", "c2"}),
		dataset.NewStringColumn("community_id", []string{"A", "A", "B", "B"}),
		dataset.NewFloatColumn("year", []float64{2012, 2013, 2012, 2013}),
		dataset.NewFloatColumn("owner", []float64{1, 1, 0, 1}),
		dataset.NewFloatColumn("single_level", []float64{1, 1, 1, 1}),
	)
	require.NoError(t, err)
	return tbl
}

// validSpec returns a well-formed IV specification
func validSpec() Spec {
	return Spec{
		Name:         "iv_baseline",
		Outcome:      "fertility",
		Exogenous:    []string{"ln_income"},
		Endogenous:   []string{"comm_price"},
		Instruments:  []string{"iv_fiscal_water"},
		FixedEffects: []string{"community_id", "year"},
		Cluster:      "city_id",
		Subset:       &Subset{Field: "owner", Value: 1},
	}
}

// TestValidate tests acceptance of a well-formed spec
func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(validSpec(), estimationTable(t)))
}

// TestValidateRejections tests each configuration-error branch
func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"no name", func(s *Spec) { s.Name = "" }},
		{"no outcome", func(s *Spec) { s.Outcome = "" }},
		{"no cluster", func(s *Spec) { s.Cluster = "" }},
		{"unknown field", func(s *Spec) { s.Exogenous = []string{"no_such"} }},
		{"instruments without endogenous", func(s *Spec) { s.Endogenous = nil }},
		{"underidentified", func(s *Spec) { s.Instruments = nil }},
		{"single-level fixed effect", func(s *Spec) { s.FixedEffects = []string{"single_level"} }},
		{"single-level cluster", func(s *Spec) { s.Cluster = "single_level" }},
		{"unknown subset field", func(s *Spec) { s.Subset = &Subset{Field: "no_such", Value: 1} }},
	}

	tbl := estimationTable(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)
			err := Validate(s, tbl)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}
}

// TestSpecHelpers tests field collection and IV detection
func TestSpecHelpers(t *testing.T) {
	s := validSpec()
	assert.True(t, s.IsIV())
	assert.Equal(t, []string{"comm_price", "ln_income"}, s.Regressors())
	assert.Contains(t, s.Fields(), "owner")
	assert.Contains(t, s.Fields(), "city_id")

	s.Endogenous = nil
	s.Instruments = nil
	assert.False(t, s.IsIV())
}

// stubEstimator returns canned results or errors per spec name
type stubEstimator struct {
	fail map[string]error
}

func (s stubEstimator) Estimate(_ context.Context, spec Spec, _ *dataset.Table) (*Result, error) {
	if err, ok := s.fail[spec.Name]; ok {
		return nil, err
	}
	return &Result{SpecName: spec.Name, N: 4}, nil
}

// TestRunBatch tests that failures are tagged and do not abort the batch
func TestRunBatch(t *testing.T) {
	tbl := estimationTable(t)

	ok := validSpec()
	bad := validSpec()
	bad.Name = "iv_collinear"
	invalid := validSpec()
	invalid.Name = "broken"
	invalid.Outcome = "no_such"

	est := stubEstimator{fail: map[string]error{
		"iv_collinear": apperrors.NewEstimationError("iv_collinear", "perfect collinearity", nil),
	}}

	outcomes := RunBatch(context.Background(), est, tbl, []Spec{ok, bad, invalid}, nil)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 4, outcomes[0].Result.N)

	require.Error(t, outcomes[1].Err)
	assert.True(t, apperrors.IsType(outcomes[1].Err, apperrors.ErrTypeEstimation))
	var appErr *apperrors.AppError
	require.True(t, errors.As(outcomes[1].Err, &appErr))
	assert.Equal(t, "iv_collinear", appErr.Context["spec"])

	require.Error(t, outcomes[2].Err)
	assert.True(t, apperrors.IsType(outcomes[2].Err, apperrors.ErrTypeConfig))
}
