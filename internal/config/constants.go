package config

// Scaling constants shared by every specification family. Each constant is
// a unit-harmonization factor applied exactly once, inside
// internal/pipeline/instruments or internal/pipeline/derive, before any
// interaction term is formed. Keeping them here prevents silent divergence
// between specifications that must share the same scaling.
const (
	// WaterNormalizationDivisor converts total water resources (10^4 m3)
	// to the normalized intensity units used by the instrument.
	WaterNormalizationDivisor = 7635.0

	// ResidentialLandMultiplier converts urban residential land area from
	// survey units (km2) to the hectare-based denominator of the
	// water-to-land intensity ratio.
	ResidentialLandMultiplier = 25.0

	// FiscalPerCapitaNumeratorScale and FiscalPerCapitaDivisor implement
	// the first fiscal-capacity convention: expenditure x100 (10^4 CNY to
	// 10^2 CNY) then /100000 population units.
	FiscalPerCapitaNumeratorScale = 100.0
	FiscalPerCapitaDivisor        = 100000.0

	// FiscalPerCapitaAltDivisor implements the second convention: plain
	// /10000, leaving expenditure per 10^4 registered residents.
	FiscalPerCapitaAltDivisor = 10000.0

	// SchoolsPerCapitaScale expresses school counts per 10^4 residents.
	SchoolsPerCapitaScale = 10000.0

	// GDPPerCapitaDivisor expresses GDP per registered resident in 10^4
	// CNY.
	GDPPerCapitaDivisor = 10000.0

	// LoansPerCapitaDivisor expresses year-end loan balances per
	// registered resident in 10^4 CNY.
	LoansPerCapitaDivisor = 10000.0
)

// Sample restriction defaults. The filter stage reads these through
// FilterConfig so robustness variants can override them per run.
const (
	// MinBirthAge and MaxBirthAge bound the age-at-birth window
	// (inclusive) of the estimation sample.
	MinBirthAge = 18.0
	MaxBirthAge = 40.0

	// BirthYearFloor keeps only births from this year onward.
	BirthYearFloor = 2010.0

	// DefaultWinsorLower and DefaultWinsorUpper are the baseline
	// winsorization cut points (1st/99th percentile).
	DefaultWinsorLower = 0.01
	DefaultWinsorUpper = 0.99

	// RobustWinsorUpper is the upper cut used by the grouped-by-year
	// robustness variant (0/98).
	RobustWinsorUpper = 0.98
)

// Default artifact names written under the output directory.
const (
	AnalysisTableFile    = "analysis.csv"
	MissingRateFile      = "missing_rates.csv"
	DescriptivesFile     = "descriptives.xlsx"
	RegressionResultFile = "results.csv"
)
