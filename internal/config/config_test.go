package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults tests that Load fills defaults without any file
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 18.0, cfg.Filter.MinBirthAge)
	assert.Equal(t, 40.0, cfg.Filter.MaxBirthAge)
	assert.Equal(t, 0.01, cfg.Filter.WinsorLower)
	assert.Equal(t, 0.99, cfg.Filter.WinsorUpper)
	assert.NotEmpty(t, cfg.Filter.RequiredFields)
	assert.NotEmpty(t, cfg.Stats.Variables)
}

// TestLoadFromFile tests YAML overrides
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
filter:
  winsor_upper: 0.98
  winsor_by_year: true
logging:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.98, cfg.Filter.WinsorUpper)
	assert.True(t, cfg.Filter.WinsorByYear)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// TestLoadRejectsInvalidBounds tests validator enforcement
func TestLoadRejectsInvalidBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
filter:
  winsor_lower: 0.99
  winsor_upper: 0.01
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoadDictionary tests dictionary parsing and validation
func TestLoadDictionary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dictionary.yaml")
	content := []byte(`
fields:
  - raw: fid
    name: household_id
    kind: key
  - raw: cfps_gender
    name: male
    kind: indicator
    labels:
      male: 1
    default: "0"
  - raw: cfps_health
    name: healthy
    kind: indicator
    labels:
      healthy: 1
      unhealthy: 0
    default: missing
  - raw: faminc
    name: income
    kind: numeric
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)
	require.Len(t, dict.Fields, 4)

	byRaw := dict.ByRaw()

	male := byRaw["cfps_gender"]
	code, ok := male.DefaultCode()
	assert.True(t, ok)
	assert.Equal(t, 0.0, code)

	health := byRaw["cfps_health"]
	_, ok = health.DefaultCode()
	assert.False(t, ok, "health defaults to missing, not a code")
}

// TestDictionaryValidate tests rejection of malformed dictionaries
func TestDictionaryValidate(t *testing.T) {
	tests := []struct {
		name string
		dict Dictionary
	}{
		{
			name: "empty dictionary",
			dict: Dictionary{},
		},
		{
			name: "duplicate normalized name",
			dict: Dictionary{Fields: []FieldDef{
				{Raw: "a", Name: "x", Kind: KindNumeric},
				{Raw: "b", Name: "x", Kind: KindNumeric},
			}},
		},
		{
			name: "indicator without labels",
			dict: Dictionary{Fields: []FieldDef{
				{Raw: "a", Name: "x", Kind: KindIndicator},
			}},
		},
		{
			name: "unknown kind",
			dict: Dictionary{Fields: []FieldDef{
				{Raw: "a", Name: "x", Kind: "categorical"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.dict.Validate())
		})
	}
}
