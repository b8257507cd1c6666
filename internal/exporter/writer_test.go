package exporter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
	"hfpanel/internal/regression"
	"hfpanel/internal/stats"
)

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// TestWriteAnalysisTable tests the analysis CSV artifact round-trips
// through the dataset reader
func TestWriteAnalysisTable(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil)
	require.NoError(t, err)

	tbl, err := dataset.New(
		dataset.NewFloatColumn("fertility", []float64{0, 1, dataset.Missing()}),
		dataset.NewStringColumn("city_id", []string{"c1", "c2", "c1"}),
	)
	require.NoError(t, err)

	require.NoError(t, w.WriteAnalysisTable(tbl))

	back, err := dataset.ReadCSV(filepath.Join(dir, config.AnalysisTableFile))
	require.NoError(t, err)
	assert.Equal(t, 3, back.NumRows())

	values, err := back.Floats("fertility")
	require.NoError(t, err)
	assert.True(t, dataset.IsMissing(values[2]))
}

// TestWriteMissingRates tests the missing-rate CSV layout
func TestWriteMissingRates(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil)
	require.NoError(t, err)

	require.NoError(t, w.WriteMissingRates([]stats.MissingRate{
		{Field: "ln_income", Rate: 0.25},
		{Field: "comm_price", Rate: 0},
	}))

	rows := readCSVFile(t, filepath.Join(dir, config.MissingRateFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"field", "missing_rate"}, rows[0])
	assert.Equal(t, []string{"ln_income", "0.25"}, rows[1])
	assert.Equal(t, []string{"comm_price", "0"}, rows[2])
}

// TestWriteDescriptives tests the workbook artifact: header row,
// per-variable rows, missing moments left as empty cells
func TestWriteDescriptives(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil)
	require.NoError(t, err)

	require.NoError(t, w.WriteDescriptives([]stats.Summary{
		{Variable: "fertility", N: 10, Mean: 0.3, StdDev: 0.48, Median: 0, Min: 0, Max: 1},
		{Variable: "empty_var", N: 0, Mean: dataset.Missing(), StdDev: dataset.Missing(),
			Median: dataset.Missing(), Min: dataset.Missing(), Max: dataset.Missing()},
	}))

	f, err := excelize.OpenFile(filepath.Join(dir, config.DescriptivesFile))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Descriptives")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)

	assert.Equal(t, "variable", rows[0][0])
	assert.Equal(t, "fertility", rows[1][0])
	assert.Equal(t, "10", rows[1][1])
	assert.Equal(t, "0.3", rows[1][2])

	assert.Equal(t, "empty_var", rows[2][0])
	assert.Equal(t, "0", rows[2][1])
	// Missing moments stay blank.
	if len(rows[2]) > 2 {
		assert.Equal(t, "", rows[2][2])
	}
}

// TestWriteResults tests the long-format results CSV: one row per
// coefficient and one row per failed specification
func TestWriteResults(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil)
	require.NoError(t, err)

	outcomes := []regression.Outcome{
		{
			Spec: regression.Spec{
				Name:         "iv_baseline",
				FixedEffects: []string{"community_id", "year"},
			},
			Result: &regression.Result{
				SpecName: "iv_baseline",
				Coefficients: []regression.Coefficient{
					{Term: "comm_price", Estimate: -0.042, StdErr: 0.011},
					{Term: "ln_income", Estimate: 0.015, StdErr: 0.008},
				},
				N:              1200,
				Clusters:       35,
				AbsorbedLevels: map[string]int{"community_id": 350, "year": 5},
				FirstStageF:    48.2,
			},
		},
		{
			Spec: regression.Spec{Name: "iv_collinear"},
			Err:  apperrors.NewEstimationError("iv_collinear", "perfect collinearity in design matrix", nil),
		},
	}

	require.NoError(t, w.WriteResults(outcomes))

	rows := readCSVFile(t, filepath.Join(dir, config.RegressionResultFile))
	require.Len(t, rows, 4)

	assert.Equal(t, []string{
		"spec", "term", "estimate", "std_err",
		"n_obs", "clusters", "absorbed_levels", "first_stage_f", "error",
	}, rows[0])

	assert.Equal(t, "iv_baseline", rows[1][0])
	assert.Equal(t, "comm_price", rows[1][1])
	assert.Equal(t, "-0.042", rows[1][2])
	assert.Equal(t, "1200", rows[1][4])
	assert.Equal(t, "35", rows[1][5])
	assert.Equal(t, "community_id=350;year=5", rows[1][6])
	assert.Equal(t, "48.2", rows[1][7])
	assert.Equal(t, "", rows[1][8])

	assert.Equal(t, "ln_income", rows[2][1])

	assert.Equal(t, "iv_collinear", rows[3][0])
	assert.Equal(t, "", rows[3][1])
	assert.NotEmpty(t, rows[3][8])
}

// TestNewCreatesDirectory tests that the output directory is created
func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	_, err := New(dir, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
