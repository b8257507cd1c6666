// Package derive implements the derived-variable engine: pure functions
// of already-normalized fields, aware of the household-by-year panel.
// Every derived field is appended as a new column; the engine never
// removes rows. Converting missing into dropped rows is the sample
// filter's exclusive job.
package derive

import (
	"context"
	"log/slog"

	"hfpanel/internal/dataset"
	"hfpanel/internal/pipeline"
	"hfpanel/internal/pipeline/panel"
)

// StageName identifies the engine in logs and error reports.
const StageName = "derive_variables"

// Column names produced by the engine.
const (
	ColFertility   = "fertility"
	ColBirthAge    = "birth_age"
	ColLnIncome    = "ln_income"
	ColLnHouse     = "ln_house_value"
	ColPriceSqm    = "price_sqm"
	ColCommPrice   = "comm_price"
	ColCommLag1    = "comm_price_lag1"
	ColCommLag2    = "comm_price_lag2"
	ColPriceDiff   = "price_diff"
	ColLnPriceDiff = "ln_price_diff"
)

// Engine appends the study's derived variables to the normalized table.
type Engine struct {
	logger *slog.Logger
}

// New creates a derived-variable engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Stage adapts the engine to the pipeline stage contract.
func (e *Engine) Stage() pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: e.Run}
}

// Run computes all derived columns. The input must already be normalized
// and community-repaired; the output table is sorted by (household, year)
// because the lagged price series is materialized on the declared panel.
func (e *Engine) Run(ctx context.Context, in *dataset.Table) (*dataset.Table, error) {
	if err := in.Require(
		"household_id", "community_id", "year", "age", "birth_yc",
		"income", "house_value", "house_area",
	); err != nil {
		return nil, err
	}

	// Lags read the (household, year) panel, so declare it first; the
	// sorted panel table is the base every column is computed against.
	p, err := panel.Declare(in, "household_id", "year")
	if err != nil {
		return nil, err
	}
	out := p.Table()

	year, _ := out.Floats("year")
	age, _ := out.Floats("age")
	birthYC, _ := out.Floats("birth_yc")
	income, _ := out.Floats("income")
	houseValue, _ := out.Floats("house_value")
	houseArea, _ := out.Floats("house_area")
	commID, _ := out.Strings("community_id")

	if out, err = out.WithColumn(dataset.NewFloatColumn(ColFertility, fertility(birthYC, year))); err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColBirthAge, birthAge(age, year, birthYC))); err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColLnIncome, Log1p(income))); err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColLnHouse, Log1p(houseValue))); err != nil {
		return nil, err
	}

	priceSqm := Ratio(houseValue, houseArea)
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColPriceSqm, priceSqm)); err != nil {
		return nil, err
	}

	commPrice := GroupMean(priceSqm, commID, year)
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColCommPrice, commPrice)); err != nil {
		return nil, err
	}

	// Lag differences are computed on the pre-filter panel; the sample
	// filter must never retroactively change these materialized values.
	p, err = panel.Declare(out, "household_id", "year")
	if err != nil {
		return nil, err
	}
	out = p.Table()

	lag1, err := p.Lag(ColCommPrice, 1)
	if err != nil {
		return nil, err
	}
	lag2, err := p.Lag(ColCommPrice, 2)
	if err != nil {
		return nil, err
	}

	if out, err = out.WithColumn(dataset.NewFloatColumn(ColCommLag1, lag1)); err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColCommLag2, lag2)); err != nil {
		return nil, err
	}

	diff := Diff(lag1, lag2)
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColPriceDiff, diff)); err != nil {
		return nil, err
	}
	// Growth-rate logic assumes positive differences; Log guards the rest.
	if out, err = out.WithColumn(dataset.NewFloatColumn(ColLnPriceDiff, Log(diff))); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "derived variables computed",
		slog.Int("rows", out.NumRows()),
		slog.Int("columns", len(out.ColumnNames())),
	)
	return out, nil
}

// fertility is 1 when the child's birth year equals the record year, 0
// otherwise, missing when either year is missing.
func fertility(birthYC, year []float64) []float64 {
	out := make([]float64, len(year))
	for i := range year {
		if dataset.IsMissing(birthYC[i]) || dataset.IsMissing(year[i]) {
			out[i] = dataset.Missing()
			continue
		}
		if birthYC[i] == year[i] {
			out[i] = 1
		}
	}
	return out
}

// birthAge is the respondent's age at the child's birth: current age
// minus (current year - birth year).
func birthAge(age, year, birthYC []float64) []float64 {
	out := make([]float64, len(age))
	for i := range age {
		if dataset.IsMissing(age[i]) || dataset.IsMissing(year[i]) || dataset.IsMissing(birthYC[i]) {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = age[i] - (year[i] - birthYC[i])
	}
	return out
}
