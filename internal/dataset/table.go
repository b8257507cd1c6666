// Package dataset provides the columnar in-memory table the pipeline
// stages pass between each other.
//
// A table holds float and string columns of equal length. Missingness is
// first-class: a float cell is missing when it is NaN, a string cell when
// it is empty. Stages never mutate their input table; every transforming
// operation returns a fresh table so earlier stage outputs stay valid
// snapshots.
package dataset

import (
	"fmt"
	"math"
	"sort"

	apperrors "hfpanel/internal/errors"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	KindFloat Kind = iota
	KindString
)

// Missing returns the float missing value.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether a float cell is missing.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Column is a named, typed value vector.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	if c.Kind == KindFloat {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// clone returns a deep copy of the column.
func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == KindFloat {
		out.Floats = append([]float64(nil), c.Floats...)
	} else {
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

// NewFloatColumn builds a float column over the given values.
func NewFloatColumn(name string, values []float64) *Column {
	return &Column{Name: name, Kind: KindFloat, Floats: values}
}

// NewStringColumn builds a string column over the given values.
func NewStringColumn(name string, values []string) *Column {
	return &Column{Name: name, Kind: KindString, Strings: values}
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates a table from columns, which must share one length.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int)}
	for _, c := range cols {
		if err := t.addColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return t.rows
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table carries the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Floats returns the value vector of a float column.
func (t *Table) Floats(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("column %q not found", name), nil)
	}
	if c.Kind != KindFloat {
		return nil, apperrors.NewConfigError(fmt.Sprintf("column %q is not numeric", name), nil)
	}
	return c.Floats, nil
}

// Strings returns the value vector of a string column.
func (t *Table) Strings(name string) ([]string, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("column %q not found", name), nil)
	}
	if c.Kind != KindString {
		return nil, apperrors.NewConfigError(fmt.Sprintf("column %q is not a string column", name), nil)
	}
	return c.Strings, nil
}

// Require fails with a configuration error naming every missing column.
// It is the fail-fast check stages run before touching any rows.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewConfigError("required columns not present", nil).
			WithContext("columns", missing)
	}
	return nil
}

// addColumn appends a column, enforcing unique names and equal lengths.
func (t *Table) addColumn(c *Column) error {
	if _, exists := t.index[c.Name]; exists {
		return apperrors.NewConfigError(fmt.Sprintf("duplicate column %q", c.Name), nil)
	}
	if len(t.cols) == 0 {
		t.rows = c.Len()
	} else if c.Len() != t.rows {
		return apperrors.NewConfigError(
			fmt.Sprintf("column %q has %d rows, table has %d", c.Name, c.Len(), t.rows), nil)
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// WithColumn returns a new table carrying all existing columns plus the
// given one. Adding an already-present name is a configuration error;
// derived columns never silently overwrite inputs.
func (t *Table) WithColumn(c *Column) (*Table, error) {
	out := t.Clone()
	if err := out.addColumn(c); err != nil {
		return nil, err
	}
	return out, nil
}

// WithoutColumns returns a new table with the named columns removed.
// Removing an absent column is a no-op.
func (t *Table) WithoutColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Table{index: make(map[string]int), rows: t.rows}
	for _, c := range t.cols {
		if drop[c.Name] {
			continue
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	if len(out.cols) == 0 {
		out.rows = 0
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.index)), rows: t.rows}
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	return out
}

// FilterRows returns a new table keeping only rows where keep is true.
func (t *Table) FilterRows(keep []bool) (*Table, error) {
	if len(keep) != t.rows {
		return nil, apperrors.NewConfigError(
			fmt.Sprintf("filter mask has %d entries, table has %d rows", len(keep), t.rows), nil)
	}

	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}

	out := &Table{index: make(map[string]int, len(t.index)), rows: n}
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == KindFloat {
			nc.Floats = make([]float64, 0, n)
			for i, k := range keep {
				if k {
					nc.Floats = append(nc.Floats, c.Floats[i])
				}
			}
		} else {
			nc.Strings = make([]string, 0, n)
			for i, k := range keep {
				if k {
					nc.Strings = append(nc.Strings, c.Strings[i])
				}
			}
		}
		out.index[nc.Name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out, nil
}

// SortBy returns a new table with rows stably ordered by the given key
// columns. String keys compare lexically; float keys numerically with
// missing values last.
func (t *Table) SortBy(keys ...string) (*Table, error) {
	if err := t.Require(keys...); err != nil {
		return nil, err
	}

	order := make([]int, t.rows)
	for i := range order {
		order[i] = i
	}

	keyCols := make([]*Column, len(keys))
	for i, k := range keys {
		c, _ := t.Column(k)
		keyCols[i] = c
	}

	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := order[a], order[b]
		for _, c := range keyCols {
			if c.Kind == KindString {
				if c.Strings[ra] != c.Strings[rb] {
					return c.Strings[ra] < c.Strings[rb]
				}
				continue
			}
			va, vb := c.Floats[ra], c.Floats[rb]
			ma, mb := IsMissing(va), IsMissing(vb)
			switch {
			case ma && mb:
				continue
			case ma:
				return false
			case mb:
				return true
			case va != vb:
				return va < vb
			}
		}
		return false
	})

	return t.reorder(order), nil
}

// reorder builds a new table with rows permuted by order.
func (t *Table) reorder(order []int) *Table {
	out := &Table{index: make(map[string]int, len(t.index)), rows: t.rows}
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == KindFloat {
			nc.Floats = make([]float64, len(order))
			for i, j := range order {
				nc.Floats[i] = c.Floats[j]
			}
		} else {
			nc.Strings = make([]string, len(order))
			for i, j := range order {
				nc.Strings[i] = c.Strings[j]
			}
		}
		out.index[nc.Name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

// MissingRate returns the share of missing cells in the named column, or
// an error if the column is absent.
func (t *Table) MissingRate(name string) (float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return 0, apperrors.NewConfigError(fmt.Sprintf("column %q not found", name), nil)
	}
	if c.Len() == 0 {
		return 0, nil
	}
	n := 0
	if c.Kind == KindFloat {
		for _, v := range c.Floats {
			if IsMissing(v) {
				n++
			}
		}
	} else {
		for _, v := range c.Strings {
			if v == "" {
				n++
			}
		}
	}
	return float64(n) / float64(c.Len()), nil
}
