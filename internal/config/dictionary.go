package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	apperrors "hfpanel/internal/errors"
)

// Field kinds understood by the schema normalizer.
const (
	KindKey       = "key"       // identifier column, kept as string
	KindNumeric   = "numeric"   // coerced to float, failures become missing
	KindIndicator = "indicator" // recoded from locale labels to 0/1
)

// FieldDef maps one raw survey field to its normalized form. For
// indicator fields, Labels is the label-to-code map and Default decides
// what unrecognized (or empty) labels become: a literal code such as "0",
// or "missing".
type FieldDef struct {
	Raw     string             `yaml:"raw"`
	Name    string             `yaml:"name"`
	Kind    string             `yaml:"kind"`
	Labels  map[string]float64 `yaml:"labels,omitempty"`
	Default string             `yaml:"default,omitempty"`
}

// DefaultCode returns the numeric code for an unrecognized label and
// whether one exists. When ok is false the policy is "missing".
func (f FieldDef) DefaultCode() (code float64, ok bool) {
	if f.Default == "" || f.Default == "missing" {
		return 0, false
	}
	v, err := strconv.ParseFloat(f.Default, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Dictionary is the human-editable mapping from original locale-specific
// field names to normalized names and recode rules. It is configuration
// data consumed at schema-normalizer initialization, not logic.
type Dictionary struct {
	Fields []FieldDef `yaml:"fields"`
}

// LoadDictionary reads and validates a variable dictionary from a YAML
// file.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	var dict Dictionary
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}

	if err := dict.Validate(); err != nil {
		return nil, err
	}

	return &dict, nil
}

// Validate checks the dictionary for duplicate names, unknown kinds and
// indicator fields without label maps.
func (d *Dictionary) Validate() error {
	if len(d.Fields) == 0 {
		return apperrors.NewValidationError("fields", "dictionary has no fields")
	}

	seenRaw := make(map[string]bool, len(d.Fields))
	seenName := make(map[string]bool, len(d.Fields))

	for _, f := range d.Fields {
		if f.Raw == "" || f.Name == "" {
			return apperrors.NewValidationError(f.Raw, "dictionary field with empty raw or normalized name")
		}
		if seenRaw[f.Raw] {
			return apperrors.NewValidationError(f.Raw, "duplicate raw field in dictionary")
		}
		if seenName[f.Name] {
			return apperrors.NewValidationError(f.Name, "duplicate normalized field in dictionary")
		}
		seenRaw[f.Raw] = true
		seenName[f.Name] = true

		switch f.Kind {
		case KindKey, KindNumeric:
		case KindIndicator:
			if len(f.Labels) == 0 {
				return apperrors.NewValidationError(f.Name, "indicator field has no label map")
			}
			if _, ok := f.DefaultCode(); !ok && f.Default != "" && f.Default != "missing" {
				return apperrors.NewValidationError(f.Name,
					fmt.Sprintf("indicator field has unparseable default %q", f.Default))
			}
		default:
			return apperrors.NewValidationError(f.Name,
				fmt.Sprintf("unknown field kind %q", f.Kind))
		}
	}

	return nil
}

// ByRaw returns the definitions indexed by raw field name.
func (d *Dictionary) ByRaw() map[string]FieldDef {
	m := make(map[string]FieldDef, len(d.Fields))
	for _, f := range d.Fields {
		m[f.Raw] = f
	}
	return m
}
