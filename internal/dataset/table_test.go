package dataset

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hfpanel/internal/errors"
)

// testTable builds a small mixed-type table
func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(
		NewStringColumn("household_id", []string{"h2", "h1", "h1", "h3"}),
		NewFloatColumn("year", []float64{2012, 2014, 2012, Missing()}),
		NewFloatColumn("income", []float64{100, 250, 80, 40}),
	)
	require.NoError(t, err)
	return tbl
}

// TestNewRejectsUnevenColumns tests length validation
func TestNewRejectsUnevenColumns(t *testing.T) {
	_, err := New(
		NewFloatColumn("a", []float64{1, 2}),
		NewFloatColumn("b", []float64{1}),
	)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

// TestNewRejectsDuplicateNames tests column name uniqueness
func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New(
		NewFloatColumn("a", []float64{1}),
		NewFloatColumn("a", []float64{2}),
	)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

// TestRequire tests the fail-fast missing-column report
func TestRequire(t *testing.T) {
	tbl := testTable(t)

	assert.NoError(t, tbl.Require("household_id", "year"))

	err := tbl.Require("year", "birth_age", "healthy")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.ElementsMatch(t, []string{"birth_age", "healthy"}, appErr.Context["columns"])
}

// TestWithColumnSnapshot tests that WithColumn does not alias the input
func TestWithColumnSnapshot(t *testing.T) {
	tbl := testTable(t)

	out, err := tbl.WithColumn(NewFloatColumn("ln_income", []float64{1, 2, 3, 4}))
	require.NoError(t, err)

	// Mutating the output must leave the input untouched.
	col, _ := out.Column("income")
	col.Floats[0] = -1
	orig, _ := tbl.Floats("income")
	assert.Equal(t, 100.0, orig[0])

	assert.False(t, tbl.Has("ln_income"))
	assert.True(t, out.Has("ln_income"))

	_, err = out.WithColumn(NewFloatColumn("ln_income", []float64{0, 0, 0, 0}))
	assert.Error(t, err, "derived columns must not overwrite existing ones")
}

// TestFilterRows tests mask filtering
func TestFilterRows(t *testing.T) {
	tbl := testTable(t)

	out, err := tbl.FilterRows([]bool{true, false, true, false})
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())

	ids, _ := out.Strings("household_id")
	assert.Equal(t, []string{"h2", "h1"}, ids)

	_, err = tbl.FilterRows([]bool{true})
	assert.Error(t, err)
}

// TestSortBy tests multi-key ordering with missing time values last
func TestSortBy(t *testing.T) {
	tbl := testTable(t)

	out, err := tbl.SortBy("household_id", "year")
	require.NoError(t, err)

	ids, _ := out.Strings("household_id")
	years, _ := out.Floats("year")

	assert.Equal(t, []string{"h1", "h1", "h2", "h3"}, ids)
	assert.Equal(t, 2012.0, years[0])
	assert.Equal(t, 2014.0, years[1])
	assert.True(t, IsMissing(years[3]))
}

// TestMissingRate tests per-column missing accounting
func TestMissingRate(t *testing.T) {
	tbl := testTable(t)

	rate, err := tbl.MissingRate("year")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, rate, 1e-12)

	rate, err = tbl.MissingRate("household_id")
	require.NoError(t, err)
	assert.Zero(t, rate)

	_, err = tbl.MissingRate("absent")
	assert.Error(t, err)
}

// TestCSVRoundTrip tests persistence of values, missing cells and types
func TestCSVRoundTrip(t *testing.T) {
	tbl := testTable(t)
	path := filepath.Join(t.TempDir(), "table.csv")

	require.NoError(t, WriteCSV(tbl, path))

	back, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, tbl.NumRows(), back.NumRows())

	ids, err := back.Strings("household_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "h1", "h1", "h3"}, ids)

	years, err := back.Floats("year")
	require.NoError(t, err)
	assert.Equal(t, 2012.0, years[0])
	assert.True(t, IsMissing(years[3]))
}

// TestInferColumn tests type inference on mixed content
func TestInferColumn(t *testing.T) {
	c := inferColumn("x", []string{"1.5", "", "2"})
	assert.Equal(t, KindFloat, c.Kind)
	assert.True(t, math.IsNaN(c.Floats[1]))

	c = inferColumn("x", []string{"1.5", "abc"})
	assert.Equal(t, KindString, c.Kind)
}
