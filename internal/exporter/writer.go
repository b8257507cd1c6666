// Package exporter writes the run artifacts: the analysis table and
// missing-rate report as CSV, descriptive statistics as a formatted
// workbook, and estimation results as a long-format CSV.
package exporter

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
	"hfpanel/internal/regression"
	"hfpanel/internal/stats"
)

// Writer writes artifacts into a single output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// New creates a Writer rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewStorageError("create output directory", err).
			WithContext("dir", dir)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// WriteAnalysisTable writes the analysis-ready table to analysis.csv.
func (w *Writer) WriteAnalysisTable(t *dataset.Table) error {
	path := filepath.Join(w.dir, config.AnalysisTableFile)
	if err := dataset.WriteCSV(t, path); err != nil {
		return err
	}
	w.logger.Info("analysis table written",
		slog.String("path", path),
		slog.Int("rows", t.NumRows()),
	)
	return nil
}

// WriteMissingRates writes per-field missing shares to missing_rates.csv.
func (w *Writer) WriteMissingRates(rates []stats.MissingRate) error {
	records := make([][]string, 0, len(rates))
	for _, r := range rates {
		records = append(records, []string{r.Field, formatCell(r.Rate)})
	}
	return w.writeCSV(config.MissingRateFile, []string{"field", "missing_rate"}, records)
}

// WriteDescriptives writes summary statistics to descriptives.xlsx, one
// variable per row.
func (w *Writer) WriteDescriptives(summaries []stats.Summary) error {
	path := filepath.Join(w.dir, config.DescriptivesFile)

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Descriptives"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return apperrors.NewStorageError("rename descriptives sheet", err)
	}

	headers := []string{"variable", "n", "mean", "std_dev", "median", "min", "max"}
	for j, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(j+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return apperrors.NewStorageError("write descriptives header", err)
		}
	}

	for i, s := range summaries {
		row := i + 2
		values := []any{s.Variable, s.N, s.Mean, s.StdDev, s.Median, s.Min, s.Max}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if fv, ok := v.(float64); ok && dataset.IsMissing(fv) {
				continue
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return apperrors.NewStorageError("write descriptives cell", err).
					WithContext("cell", cell)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return apperrors.NewStorageError("save descriptives workbook", err).
			WithContext("path", path)
	}

	w.logger.Info("descriptives written",
		slog.String("path", path),
		slog.Int("variables", len(summaries)),
	)
	return nil
}

// WriteResults writes estimation outcomes to results.csv in long format:
// one row per coefficient, one row per failed specification with the
// error in the last column.
func (w *Writer) WriteResults(outcomes []regression.Outcome) error {
	headers := []string{
		"spec", "term", "estimate", "std_err",
		"n_obs", "clusters", "absorbed_levels", "first_stage_f", "error",
	}

	var records [][]string
	for _, o := range outcomes {
		if o.Err != nil {
			records = append(records, []string{
				o.Spec.Name, "", "", "", "", "", "", "", o.Err.Error(),
			})
			continue
		}
		r := o.Result
		absorbed := formatAbsorbed(o.Spec.FixedEffects, r.AbsorbedLevels)
		for _, c := range r.Coefficients {
			records = append(records, []string{
				r.SpecName,
				c.Term,
				formatCell(c.Estimate),
				formatCell(c.StdErr),
				strconv.Itoa(r.N),
				strconv.Itoa(r.Clusters),
				absorbed,
				formatCell(r.FirstStageF),
				"",
			})
		}
	}

	return w.writeCSV(config.RegressionResultFile, headers, records)
}

func (w *Writer) writeCSV(name string, headers []string, records [][]string) error {
	path := filepath.Join(w.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return apperrors.NewStorageError("create "+name, err).
			WithContext("path", path)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(headers); err != nil {
		return apperrors.NewStorageError("write "+name+" header", err)
	}
	for _, record := range records {
		if err := cw.Write(record); err != nil {
			return apperrors.NewStorageError("write "+name+" record", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperrors.NewStorageError("flush "+name, err)
	}

	w.logger.Info("artifact written",
		slog.String("path", path),
		slog.Int("records", len(records)),
	)
	return nil
}

// formatAbsorbed renders fixed-effect level counts in declaration order,
// e.g. "community_id=350;year=5".
func formatAbsorbed(fixedEffects []string, levels map[string]int) string {
	parts := make([]string, 0, len(fixedEffects))
	for _, fe := range fixedEffects {
		if n, ok := levels[fe]; ok {
			parts = append(parts, fe+"="+strconv.Itoa(n))
		}
	}
	return strings.Join(parts, ";")
}

// formatCell renders a float for CSV output; missing becomes empty.
func formatCell(v float64) string {
	if dataset.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
