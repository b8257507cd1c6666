// Command estimate runs the regression battery over an analysis table
// produced by the clean command. Each specification is validated and
// estimated independently; failures are recorded in the results file and
// never abort the batch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	"hfpanel/internal/exporter"
	"hfpanel/internal/infrastructure"
	"hfpanel/internal/regression"
	"hfpanel/internal/regression/lsq"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file (optional, env vars apply first)")
	analysisFile := flag.String("analysis", "", "analysis table CSV (defaults to <output_dir>/analysis.csv)")
	outDir := flag.String("out", "", "output directory (overrides config)")
	flag.Parse()

	if err := run(*configFile, *analysisFile, *outDir); err != nil {
		slog.Error("estimate run failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile, analysisFile, outDir string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Paths.OutputDir = outDir
	}
	if analysisFile == "" {
		analysisFile = filepath.Join(cfg.Paths.OutputDir, config.AnalysisTableFile)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	ctx := context.Background()
	runID := uuid.New().String()
	logger = logger.With(slog.String("run_id", runID))

	analysis, err := dataset.ReadCSV(analysisFile)
	if err != nil {
		return fmt.Errorf("load analysis table: %w", err)
	}
	logger.InfoContext(ctx, "analysis table loaded",
		slog.String("path", analysisFile),
		slog.Int("rows", analysis.NumRows()),
	)

	specs := defaultSpecs()
	outcomes := regression.RunBatch(ctx, lsq.New(logger), analysis, specs, logger)

	writer, err := exporter.New(cfg.Paths.OutputDir, logger)
	if err != nil {
		return err
	}
	if err := writer.WriteResults(outcomes); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	logger.InfoContext(ctx, "estimate run completed",
		slog.Int("specs", len(specs)),
		slog.Int("failed", failed),
		slog.String("output_dir", cfg.Paths.OutputDir),
	)
	return nil
}

// defaultSpecs is the regression battery: the uninstrumented baseline,
// the instrumented price effect under both fiscal scalings, the
// owners-only subsample and the lagged-price variant. All specifications
// absorb community and year effects and cluster on city.
func defaultSpecs() []regression.Spec {
	controls := []string{
		"ln_income", "ln_house_value", "male", "healthy",
		"agri_hukou", "edu_years", "birth_age",
	}
	fixedEffects := []string{"community_id", "year"}

	base := regression.Spec{
		Name:         "ols_baseline",
		Outcome:      "fertility",
		Exogenous:    append([]string{"comm_price"}, controls...),
		FixedEffects: fixedEffects,
		Cluster:      "city_id",
	}

	iv := regression.Spec{
		Name:         "iv_fiscal_water",
		Outcome:      "fertility",
		Exogenous:    controls,
		Endogenous:   []string{"comm_price"},
		Instruments:  []string{"iv_fiscal_water"},
		FixedEffects: fixedEffects,
		Cluster:      "city_id",
	}

	ivAlt := iv
	ivAlt.Name = "iv_fiscal_alt"
	ivAlt.Instruments = []string{"iv_fiscal_water_alt"}

	ivOwners := iv
	ivOwners.Name = "iv_owners_only"
	ivOwners.Subset = &regression.Subset{Field: "owner", Value: 1}

	ivLagged := iv
	ivLagged.Name = "iv_lagged_price"
	ivLagged.Endogenous = []string{"comm_price_lag1"}

	return []regression.Spec{base, iv, ivAlt, ivOwners, ivLagged}
}
