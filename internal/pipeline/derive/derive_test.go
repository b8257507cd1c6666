package derive

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
)

// TestLog1p tests the domain behavior of the zero-admitting transform
func TestLog1p(t *testing.T) {
	in := []float64{0, 1, -1 + 1e-9, -1, -2, dataset.Missing()}
	out := Log1p(in)

	assert.Equal(t, 0.0, out[0], "log1p(0) is 0, not missing")
	assert.InDelta(t, math.Log(2), out[1], 1e-12)
	assert.False(t, dataset.IsMissing(out[2]))
	assert.Less(t, out[2], -15.0, "near the boundary the value is large negative but finite")
	assert.False(t, math.IsInf(out[2], -1))
	assert.True(t, dataset.IsMissing(out[3]))
	assert.True(t, dataset.IsMissing(out[4]))
	assert.True(t, dataset.IsMissing(out[5]))
}

// TestLog tests plain log guarding non-positive inputs
func TestLog(t *testing.T) {
	out := Log([]float64{math.E, 1, 0, -3, dataset.Missing()})

	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.Equal(t, 0.0, out[1])
	assert.True(t, dataset.IsMissing(out[2]))
	assert.True(t, dataset.IsMissing(out[3]))
	assert.True(t, dataset.IsMissing(out[4]))
}

// TestRatio tests divide-by-zero resolving to missing
func TestRatio(t *testing.T) {
	out := Ratio([]float64{10, 10, 10}, []float64{4, 0, dataset.Missing()})

	assert.Equal(t, 2.5, out[0])
	assert.True(t, dataset.IsMissing(out[1]))
	assert.True(t, dataset.IsMissing(out[2]))
}

// TestDiffAndProduct tests missing propagation
func TestDiffAndProduct(t *testing.T) {
	a := []float64{5, dataset.Missing(), 3}
	b := []float64{2, 1, dataset.Missing()}

	diff := Diff(a, b)
	assert.Equal(t, 3.0, diff[0])
	assert.True(t, dataset.IsMissing(diff[1]))
	assert.True(t, dataset.IsMissing(diff[2]))

	prod := Product(a, b)
	assert.Equal(t, 10.0, prod[0])
	assert.True(t, dataset.IsMissing(prod[1]))
	assert.True(t, dataset.IsMissing(prod[2]))
}

// TestGroupMean tests community-year averaging over non-missing inputs
func TestGroupMean(t *testing.T) {
	values := []float64{10, 20, dataset.Missing(), 40, 7}
	comm := []string{"A", "A", "A", "", "B"}
	year := []float64{2012, 2012, 2012, 2012, 2013}

	out := GroupMean(values, comm, year)

	// Group (A, 2012) averages only the two non-missing inputs.
	assert.Equal(t, 15.0, out[0])
	assert.Equal(t, 15.0, out[1])
	assert.Equal(t, 15.0, out[2])
	// Incomplete key belongs to no group.
	assert.True(t, dataset.IsMissing(out[3]))
	// A household alone in its group gets its own value back.
	assert.Equal(t, 7.0, out[4])
}

// engineInput builds three synthetic households observed 2012-2014 with
// community ids {A, A, B} for h3 as in the end-to-end scenario.
func engineInput(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New(
		dataset.NewStringColumn("household_id", []string{
			"h1", "h1", "h1", "h2", "h2", "h2", "h3", "h3", "h3",
		}),
		dataset.NewStringColumn("community_id", []string{
			"A", "A", "A", "A", "A", "A", "A", "A", "B",
		}),
		dataset.NewStringColumn("city_id", []string{
			"c1", "c1", "c1", "c1", "c1", "c1", "c1", "c1", "c1",
		}),
		dataset.NewFloatColumn("year", []float64{
			2012, 2013, 2014, 2012, 2013, 2014, 2012, 2013, 2014,
		}),
		dataset.NewFloatColumn("age", []float64{28, 29, 30, 25, 26, 27, 31, 32, 33}),
		dataset.NewFloatColumn("birth_yc", []float64{
			2013, 2013, 2013, 2014, 2014, 2014, 2009, 2009, 2009,
		}),
		dataset.NewFloatColumn("income", []float64{10, 11, 12, 9, 9, 10, 20, 21, 22}),
		dataset.NewFloatColumn("house_value", []float64{100, 110, 120, 80, 90, 95, 200, 210, 240}),
		dataset.NewFloatColumn("house_area", []float64{50, 50, 50, 40, 40, 40, 80, 80, 80}),
	)
	require.NoError(t, err)
	return tbl
}

// TestEngineRun tests the full derivation stage end to end
func TestEngineRun(t *testing.T) {
	out, err := New(nil).Run(context.Background(), engineInput(t))
	require.NoError(t, err)

	// No rows were removed.
	assert.Equal(t, 9, out.NumRows())

	fert, err := out.Floats(ColFertility)
	require.NoError(t, err)
	years, _ := out.Floats("year")
	ids, _ := out.Strings("household_id")

	for i := range fert {
		switch {
		case ids[i] == "h1" && years[i] == 2013, ids[i] == "h2" && years[i] == 2014:
			assert.Equal(t, 1.0, fert[i], "row %d", i)
		default:
			assert.Equal(t, 0.0, fert[i], "row %d", i)
		}
	}

	// birth_age = age - (year - birth_yc); h1 2012: 28 - (2012-2013) = 29.
	ba, _ := out.Floats(ColBirthAge)
	assert.Equal(t, 29.0, ba[0])

	// Community-year mean price averages only rows sharing (community,
	// year). In 2014 h3 is alone in B, so comm_price equals its own
	// price per square meter.
	comm, _ := out.Floats(ColCommPrice)
	price, _ := out.Floats(ColPriceSqm)
	for i := range comm {
		if ids[i] == "h3" && years[i] == 2014 {
			assert.Equal(t, price[i], comm[i])
			assert.Equal(t, 3.0, comm[i])
		}
		if ids[i] == "h1" && years[i] == 2014 {
			// (120/50 + 95/40) / 2 over A-2014, h3 excluded.
			assert.InDelta(t, (2.4+2.375)/2, comm[i], 1e-12)
		}
	}

	// Lag columns follow the panel: first two years have missing lag2.
	lag2, _ := out.Floats(ColCommLag2)
	assert.True(t, dataset.IsMissing(lag2[0]))
	assert.True(t, dataset.IsMissing(lag2[1]))
	assert.False(t, dataset.IsMissing(lag2[2]))

	// price_diff missing wherever either lag is missing; ln guards sign.
	diff, _ := out.Floats(ColPriceDiff)
	lnDiff, _ := out.Floats(ColLnPriceDiff)
	for i := range diff {
		if dataset.IsMissing(diff[i]) || diff[i] <= 0 {
			assert.True(t, dataset.IsMissing(lnDiff[i]), "row %d", i)
		} else {
			assert.InDelta(t, math.Log(diff[i]), lnDiff[i], 1e-12, "row %d", i)
		}
	}
}

// TestEngineRunMissingColumn tests fail-fast on absent inputs
func TestEngineRunMissingColumn(t *testing.T) {
	tbl, err := dataset.New(
		dataset.NewStringColumn("household_id", []string{"h1"}),
		dataset.NewFloatColumn("year", []float64{2012}),
	)
	require.NoError(t, err)

	_, err = New(nil).Run(context.Background(), tbl)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}
