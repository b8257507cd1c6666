// Command clean runs the data-preparation pipeline: it loads the raw
// household panel and city administrative workbooks, normalizes the
// survey schema against the variable dictionary, repairs community
// identifiers, derives the analysis variables, applies the sample
// restrictions and merges the instrument and covariate block, then
// writes the analysis table, missing-rate report and descriptive
// statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	"hfpanel/internal/exporter"
	"hfpanel/internal/infrastructure"
	"hfpanel/internal/pipeline"
	"hfpanel/internal/pipeline/derive"
	"hfpanel/internal/pipeline/filter"
	"hfpanel/internal/pipeline/instruments"
	"hfpanel/internal/pipeline/normalize"
	"hfpanel/internal/pipeline/panel"
	"hfpanel/internal/stats"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file (optional, env vars apply first)")
	householdFile := flag.String("household", "", "household panel workbook (overrides config)")
	cityFile := flag.String("city", "", "city administrative workbook (overrides config)")
	outDir := flag.String("out", "", "output directory (overrides config)")
	flag.Parse()

	if err := run(*configFile, *householdFile, *cityFile, *outDir); err != nil {
		slog.Error("clean run failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile, householdFile, cityFile, outDir string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if householdFile != "" {
		cfg.Paths.HouseholdFile = householdFile
	}
	if cityFile != "" {
		cfg.Paths.CityFile = cityFile
	}
	if outDir != "" {
		cfg.Paths.OutputDir = outDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	dict, err := config.LoadDictionary(cfg.Paths.DictionaryFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	runID := uuid.New().String()

	logger.InfoContext(ctx, "clean run starting",
		slog.String("run_id", runID),
		slog.String("household_file", cfg.Paths.HouseholdFile),
		slog.String("city_file", cfg.Paths.CityFile),
	)

	// The two source workbooks are independent; load them concurrently.
	var household, city *dataset.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		household, err = dataset.ReadXLSX(cfg.Paths.HouseholdFile)
		if err != nil {
			return fmt.Errorf("load household workbook: %w", err)
		}
		logger.InfoContext(gctx, "household workbook loaded",
			slog.Int("rows", household.NumRows()))
		return nil
	})
	g.Go(func() error {
		var err error
		city, err = dataset.ReadXLSX(cfg.Paths.CityFile)
		if err != nil {
			return fmt.Errorf("load city workbook: %w", err)
		}
		logger.InfoContext(gctx, "city workbook loaded",
			slog.Int("rows", city.NumRows()))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	runner := pipeline.NewRunner(logger, runID)
	analysis, err := runner.Execute(ctx, household,
		normalize.New(dict, logger).Stage(),
		communityRepairStage(),
		derive.New(logger).Stage(),
		filter.New(cfg.Filter, logger).Stage(),
		instruments.New(city, logger).Stage(),
	)
	if err != nil {
		return err
	}

	writer, err := exporter.New(cfg.Paths.OutputDir, logger)
	if err != nil {
		return err
	}
	if err := writeArtifacts(writer, analysis, cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "clean run completed",
		slog.String("run_id", runID),
		slog.Int("rows", analysis.NumRows()),
		slog.String("output_dir", cfg.Paths.OutputDir),
	)
	return nil
}

// communityRepairStage wraps the panel-key declaration and community-id
// repair as a pipeline stage.
func communityRepairStage() pipeline.Stage {
	return pipeline.StageFunc{
		StageName: "panel_repair",
		Fn: func(_ context.Context, in *dataset.Table) (*dataset.Table, error) {
			p, err := panel.Declare(in, "household_id", "year")
			if err != nil {
				return nil, err
			}
			return p.RepairCommunity("community_id")
		},
	}
}

// writeArtifacts writes the analysis table with its missing-rate report
// and descriptive statistics.
func writeArtifacts(writer *exporter.Writer, analysis *dataset.Table, cfg *config.Config) error {
	if err := writer.WriteAnalysisTable(analysis); err != nil {
		return err
	}

	reported := presentFields(analysis, cfg.Stats.Variables)

	rates, err := stats.MissingReport(analysis, reported)
	if err != nil {
		return err
	}
	if err := writer.WriteMissingRates(rates); err != nil {
		return err
	}

	summaries, err := stats.Describe(analysis, reported)
	if err != nil {
		return err
	}
	return writer.WriteDescriptives(summaries)
}

// presentFields keeps the configured report variables that exist on the
// final table, so robustness variants with fewer derived columns still
// produce reports.
func presentFields(t *dataset.Table, fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if t.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
