// Package instruments builds the city-level instruments and control
// covariates from administrative data and merges them onto the household
// panel.
//
// Every constructed quantity is computed once per (city, year) record and
// joined many-to-one; nothing is recomputed per household. Scaling
// constants from internal/config are applied exactly once, always before
// an interaction term is formed.
package instruments

import (
	"context"
	"fmt"
	"log/slog"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
	"hfpanel/internal/pipeline"
	"hfpanel/internal/pipeline/derive"
)

// StageName identifies the constructor in logs and error reports.
const StageName = "instrument_construct"

// Columns required on the city-year administrative table.
var cityInputs = []string{
	"city_id", "year", "water_total", "population", "budget_exp",
	"land_area", "primary_schools", "middle_schools", "gdp", "loans",
}

// Constructed covariate columns merged onto the household panel.
const (
	ColFiscalPC    = "fiscal_pc"     // budget x100 / population / 100000
	ColFiscalPCAlt = "fiscal_pc_alt" // budget / population / 10000
	ColWaterLand   = "water_land"    // (water/7635) / (land x25)
	ColSchoolsPC   = "schools_pc"
	ColGDPPC       = "gdp_pc"
	ColLoansPC     = "loans_pc"
	ColLnGDP       = "ln_gdp"
	ColLnPop       = "ln_population"
	ColIVFiscal    = "iv_fiscal_water"
	ColIVFiscalAlt = "iv_fiscal_water_alt"
)

// constructedCols lists every merged column in output order.
var constructedCols = []string{
	ColFiscalPC, ColFiscalPCAlt, ColWaterLand, ColSchoolsPC,
	ColGDPPC, ColLoansPC, ColLnGDP, ColLnPop, ColIVFiscal, ColIVFiscalAlt,
}

// Constructor derives city-year covariates and merges them by (city,
// year).
type Constructor struct {
	city   *dataset.Table
	logger *slog.Logger
}

// New creates a constructor over the city-year administrative table.
func New(city *dataset.Table, logger *slog.Logger) *Constructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Constructor{city: city, logger: logger}
}

// Stage adapts the constructor to the pipeline stage contract.
func (c *Constructor) Stage() pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: c.Run}
}

// Run computes the covariates on the city table, validates join-key
// uniqueness, and left-merges onto the household table. Household rows
// with no matching city-year record receive missing for every
// constructed covariate; the merge itself never drops or duplicates a
// row.
func (c *Constructor) Run(ctx context.Context, in *dataset.Table) (*dataset.Table, error) {
	if err := in.Require("city_id", "year"); err != nil {
		return nil, err
	}
	if err := c.city.Require(cityInputs...); err != nil {
		return nil, err
	}

	covariates, err := c.build()
	if err != nil {
		return nil, err
	}

	index, err := c.cityIndex()
	if err != nil {
		return nil, err
	}

	hhCity, err := in.Strings("city_id")
	if err != nil {
		return nil, err
	}
	hhYear, err := in.Floats("year")
	if err != nil {
		return nil, err
	}

	out := in
	matched := 0
	for _, col := range constructedCols {
		src := covariates[col]
		merged := make([]float64, in.NumRows())
		for i := range merged {
			merged[i] = dataset.Missing()
			if hhCity[i] == "" || dataset.IsMissing(hhYear[i]) {
				continue
			}
			if j, ok := index[joinKey{city: hhCity[i], year: hhYear[i]}]; ok {
				merged[i] = src[j]
				if col == constructedCols[0] {
					matched++
				}
			}
		}
		if out, err = out.WithColumn(dataset.NewFloatColumn(col, merged)); err != nil {
			return nil, err
		}
	}

	c.logger.InfoContext(ctx, "city covariates merged",
		slog.Int("city_records", c.city.NumRows()),
		slog.Int("household_rows", in.NumRows()),
		slog.Int("matched_rows", matched),
	)
	return out, nil
}

// joinKey identifies one city-year record.
type joinKey struct {
	city string
	year float64
}

// cityIndex maps (city, year) to its row, failing on duplicate keys: a
// duplicated surrogate key would fan out household rows on merge.
func (c *Constructor) cityIndex() (map[joinKey]int, error) {
	cities, err := c.city.Strings("city_id")
	if err != nil {
		return nil, err
	}
	years, err := c.city.Floats("year")
	if err != nil {
		return nil, err
	}

	index := make(map[joinKey]int, len(cities))
	for i := range cities {
		if cities[i] == "" || dataset.IsMissing(years[i]) {
			continue
		}
		k := joinKey{city: cities[i], year: years[i]}
		if _, dup := index[k]; dup {
			return nil, apperrors.NewConfigError("duplicate city-year key in administrative table", nil).
				WithContext("key", fmt.Sprintf("(%s, %g)", k.city, k.year))
		}
		index[k] = i
	}
	return index, nil
}

// build computes every constructed covariate, one value per city-year
// row. All arithmetic is missing-propagating; a zero denominator yields
// missing, never a fault.
func (c *Constructor) build() (map[string][]float64, error) {
	water, _ := c.city.Floats("water_total")
	population, _ := c.city.Floats("population")
	budget, _ := c.city.Floats("budget_exp")
	land, _ := c.city.Floats("land_area")
	primary, _ := c.city.Floats("primary_schools")
	middle, _ := c.city.Floats("middle_schools")
	gdp, _ := c.city.Floats("gdp")
	loans, _ := c.city.Floats("loans")

	// First fiscal convention: expenditure x100, per capita, /100000.
	fiscalPC := derive.Scale(
		derive.Ratio(derive.Scale(budget, config.FiscalPerCapitaNumeratorScale), population),
		1/config.FiscalPerCapitaDivisor,
	)
	// Second convention: plain per-capita /10000.
	fiscalPCAlt := derive.Scale(
		derive.Ratio(budget, population),
		1/config.FiscalPerCapitaAltDivisor,
	)

	// Water intensity: normalize water first, then divide by scaled land.
	waterNorm := derive.Scale(water, 1/config.WaterNormalizationDivisor)
	landScaled := derive.Scale(land, config.ResidentialLandMultiplier)
	waterLand := derive.Ratio(waterNorm, landScaled)

	schoolsPC := derive.Scale(
		derive.Ratio(derive.Add(primary, middle), population),
		config.SchoolsPerCapitaScale,
	)
	gdpPC := derive.Scale(derive.Ratio(gdp, population), 1/config.GDPPerCapitaDivisor)
	loansPC := derive.Scale(derive.Ratio(loans, population), 1/config.LoansPerCapitaDivisor)

	return map[string][]float64{
		ColFiscalPC:    fiscalPC,
		ColFiscalPCAlt: fiscalPCAlt,
		ColWaterLand:   waterLand,
		ColSchoolsPC:   schoolsPC,
		ColGDPPC:       gdpPC,
		ColLoansPC:     loansPC,
		ColLnGDP:       derive.Log(gdp),
		ColLnPop:       derive.Log(population),
		// Interactions are formed from already-scaled factors only.
		ColIVFiscal:    derive.Product(fiscalPC, waterLand),
		ColIVFiscalAlt: derive.Product(fiscalPCAlt, waterLand),
	}, nil
}
