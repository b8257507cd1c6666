// Package panel declares and validates the household-by-year panel
// structure and provides the lag/lead operators built on it.
//
// A declared panel is always sorted by (unit, time). Lag and lead are
// key lookups, never physical-row offsets, so gaps in a household's run
// yield missing values rather than a neighbor's data.
package panel

import (
	"fmt"

	"hfpanel/internal/dataset"
	apperrors "hfpanel/internal/errors"
)

// maxReportedDuplicates caps the duplicate keys echoed in the error.
const maxReportedDuplicates = 10

// key identifies one (unit, time) observation.
type key struct {
	unit string
	time float64
}

// Panel wraps a table sorted by (unit, time) with a validated unique key.
type Panel struct {
	table     *dataset.Table
	unitField string
	timeField string

	units []string
	times []float64
	rowOf map[key]int
}

// Declare sorts the table by (unitField, timeField) and validates key
// uniqueness. Duplicate keys are reported as a configuration error
// listing the offenders; the caller must deduplicate before declaring.
// Rows with a missing unit or time cannot carry panel operations and are
// excluded from the key index, not rejected.
func Declare(t *dataset.Table, unitField, timeField string) (*Panel, error) {
	if err := t.Require(unitField, timeField); err != nil {
		return nil, err
	}

	sorted, err := t.SortBy(unitField, timeField)
	if err != nil {
		return nil, err
	}

	units, err := sorted.Strings(unitField)
	if err != nil {
		return nil, err
	}
	times, err := sorted.Floats(timeField)
	if err != nil {
		return nil, err
	}

	rowOf := make(map[key]int, sorted.NumRows())
	var duplicates []string

	for i := 0; i < sorted.NumRows(); i++ {
		if units[i] == "" || dataset.IsMissing(times[i]) {
			continue
		}
		k := key{unit: units[i], time: times[i]}
		if _, seen := rowOf[k]; seen {
			if len(duplicates) < maxReportedDuplicates {
				duplicates = append(duplicates, fmt.Sprintf("(%s, %g)", k.unit, k.time))
			}
			continue
		}
		rowOf[k] = i
	}

	if len(duplicates) > 0 {
		return nil, apperrors.NewConfigError("duplicate panel keys detected", nil).
			WithContext("unit", unitField).
			WithContext("time", timeField).
			WithContext("keys", duplicates)
	}

	return &Panel{
		table:     sorted,
		unitField: unitField,
		timeField: timeField,
		units:     units,
		times:     times,
		rowOf:     rowOf,
	}, nil
}

// Table returns the sorted panel table.
func (p *Panel) Table() *dataset.Table {
	return p.table
}

// Lag returns field shifted k periods back: the value at time t-k for the
// same unit, missing where that observation is absent. Gaps are never
// interpolated.
func (p *Panel) Lag(field string, k int) ([]float64, error) {
	values, err := p.table.Floats(field)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(values))
	for i := range values {
		out[i] = dataset.Missing()
		if p.units[i] == "" || dataset.IsMissing(p.times[i]) {
			continue
		}
		if j, ok := p.rowOf[key{unit: p.units[i], time: p.times[i] - float64(k)}]; ok {
			out[i] = values[j]
		}
	}
	return out, nil
}

// Lead returns field shifted k periods forward.
func (p *Panel) Lead(field string, k int) ([]float64, error) {
	return p.Lag(field, -k)
}

// RepairCommunity fills missing community ids from the household's
// nearest other year with a non-missing id: on equal distance the later
// year (lead) wins. Households missing the id in every year stay missing;
// this is best-effort repair, not a completeness guarantee.
func (p *Panel) RepairCommunity(commField string) (*dataset.Table, error) {
	comm, err := p.table.Strings(commField)
	if err != nil {
		return nil, err
	}

	repaired := append([]string(nil), comm...)

	// The table is sorted by (unit, time), so each household is one
	// contiguous run.
	n := len(comm)
	for start := 0; start < n; {
		end := start + 1
		for end < n && p.units[end] == p.units[start] {
			end++
		}

		if p.units[start] != "" {
			for i := start; i < end; i++ {
				if repaired[i] != "" || dataset.IsMissing(p.times[i]) {
					continue
				}
				repaired[i] = nearestCommunity(comm, p.times, start, end, i)
			}
		}
		start = end
	}

	out := p.table.WithoutColumns(commField)
	return out.WithColumn(dataset.NewStringColumn(commField, repaired))
}

// nearestCommunity picks the donor year for row i within [start, end).
func nearestCommunity(comm []string, times []float64, start, end, i int) string {
	best := ""
	bestDist := 0.0
	bestLead := false

	for j := start; j < end; j++ {
		if j == i || comm[j] == "" || dataset.IsMissing(times[j]) {
			continue
		}
		dist := times[j] - times[i]
		lead := dist > 0
		if dist < 0 {
			dist = -dist
		}
		if best == "" || dist < bestDist || (dist == bestDist && lead && !bestLead) {
			best = comm[j]
			bestDist = dist
			bestLead = lead
		}
	}
	return best
}
