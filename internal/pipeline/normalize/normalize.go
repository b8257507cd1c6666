// Package normalize implements the schema normalizer: the first pipeline
// stage, which renames raw survey fields, recodes locale string labels
// into binary indicators and coerces everything else to numeric.
//
// The recode rules come entirely from the variable dictionary; this
// package contains no label literals. Raw columns are consumed: the
// output table carries only normalized fields, so no later stage can read
// an original string label.
package normalize

import (
	"context"
	"log/slog"
	"strconv"

	"hfpanel/internal/config"
	"hfpanel/internal/dataset"
	"hfpanel/internal/pipeline"
)

// StageName identifies the normalizer in logs and error reports.
const StageName = "schema_normalize"

// Normalizer recodes a raw table according to a variable dictionary.
type Normalizer struct {
	dict   *config.Dictionary
	logger *slog.Logger
}

// New creates a normalizer for the given dictionary.
func New(dict *config.Dictionary, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{dict: dict, logger: logger}
}

// Stage adapts the normalizer to the pipeline stage contract.
func (n *Normalizer) Stage() pipeline.Stage {
	return pipeline.StageFunc{StageName: StageName, Fn: n.Run}
}

// Run produces a new table holding exactly the dictionary's fields under
// their normalized names. Every raw field the dictionary names must be
// present in the input; anything else is a configuration error raised
// before any recoding happens.
func (n *Normalizer) Run(ctx context.Context, in *dataset.Table) (*dataset.Table, error) {
	raws := make([]string, len(n.dict.Fields))
	for i, f := range n.dict.Fields {
		raws[i] = f.Raw
	}
	if err := in.Require(raws...); err != nil {
		return nil, err
	}

	cols := make([]*dataset.Column, 0, len(n.dict.Fields))
	for _, f := range n.dict.Fields {
		src, _ := in.Column(f.Raw)

		switch f.Kind {
		case config.KindKey:
			cols = append(cols, dataset.NewStringColumn(f.Name, keyStrings(src)))
		case config.KindNumeric:
			cols = append(cols, dataset.NewFloatColumn(f.Name, coerceNumeric(src)))
		case config.KindIndicator:
			cols = append(cols, dataset.NewFloatColumn(f.Name, recodeIndicator(src, f)))
		}
	}

	out, err := dataset.New(cols...)
	if err != nil {
		return nil, err
	}

	n.logger.InfoContext(ctx, "schema normalized",
		slog.Int("fields", len(cols)),
		slog.Int("rows", out.NumRows()),
	)
	return out, nil
}

// keyStrings renders an identifier column as strings. Numeric ids are
// formatted; missing stays missing.
func keyStrings(c *dataset.Column) []string {
	if c.Kind == dataset.KindString {
		return append([]string(nil), c.Strings...)
	}
	out := make([]string, len(c.Floats))
	for i, v := range c.Floats {
		if dataset.IsMissing(v) {
			continue
		}
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}

// coerceNumeric parses a column to floats. Cells that fail to parse
// become missing, never an error.
func coerceNumeric(c *dataset.Column) []float64 {
	if c.Kind == dataset.KindFloat {
		return append([]float64(nil), c.Floats...)
	}
	out := make([]float64, len(c.Strings))
	for i, s := range c.Strings {
		if s == "" {
			out[i] = dataset.Missing()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			out[i] = dataset.Missing()
			continue
		}
		out[i] = v
	}
	return out
}

// recodeIndicator maps label cells through the dictionary's label map.
// Unmatched cells (including empty ones) take the field's default code,
// or missing when the policy is "missing".
func recodeIndicator(c *dataset.Column, f config.FieldDef) []float64 {
	defCode, hasDefault := f.DefaultCode()

	lookup := func(s string) float64 {
		if code, ok := f.Labels[s]; ok {
			return code
		}
		if hasDefault {
			return defCode
		}
		return dataset.Missing()
	}

	if c.Kind == dataset.KindString {
		out := make([]float64, len(c.Strings))
		for i, s := range c.Strings {
			out[i] = lookup(s)
		}
		return out
	}

	// Already-numeric source: match the formatted value against the label
	// map so dictionaries can recode coded surveys too.
	out := make([]float64, len(c.Floats))
	for i, v := range c.Floats {
		if dataset.IsMissing(v) {
			out[i] = lookup("")
			continue
		}
		out[i] = lookup(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return out
}
