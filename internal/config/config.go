// Package config loads and validates the hfpanel runtime configuration.
//
// Configuration is layered: environment variables (prefix HFP) are applied
// first, then an optional YAML file overrides file-configurable sections.
// Scaling constants live in constants.go and are not configurable; the
// variable dictionary (dictionary.go) is data consumed by the schema
// normalizer.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Filter  FilterConfig  `yaml:"filter" envconfig:"FILTER"`
	Stats   StatsConfig   `yaml:"stats" envconfig:"STATS"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	HouseholdFile  string `yaml:"household_file" envconfig:"HOUSEHOLD_FILE" default:"data/household.xlsx" validate:"required"`
	CityFile       string `yaml:"city_file" envconfig:"CITY_FILE" default:"data/city.xlsx" validate:"required"`
	DictionaryFile string `yaml:"dictionary_file" envconfig:"DICTIONARY_FILE" default:"data/dictionary.yaml" validate:"required"`
	OutputDir      string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output" validate:"required"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/hfpanel.log"`
}

// FilterConfig selects the sample-restriction variant for a run. The
// baseline is winsorization at 1/99 over the whole sample; robustness
// variants either group the cut points by year or floor very low raw
// prices instead.
type FilterConfig struct {
	MinBirthAge    float64  `yaml:"min_birth_age" envconfig:"MIN_BIRTH_AGE" default:"18" validate:"gte=0"`
	MaxBirthAge    float64  `yaml:"max_birth_age" envconfig:"MAX_BIRTH_AGE" default:"40" validate:"gtefield=MinBirthAge"`
	BirthYearFloor float64  `yaml:"birth_year_floor" envconfig:"BIRTH_YEAR_FLOOR" default:"2010"`
	WinsorLower    float64  `yaml:"winsor_lower" envconfig:"WINSOR_LOWER" default:"0.01" validate:"gte=0,lte=1"`
	WinsorUpper    float64  `yaml:"winsor_upper" envconfig:"WINSOR_UPPER" default:"0.99" validate:"gte=0,lte=1,gtfield=WinsorLower"`
	WinsorByYear   bool     `yaml:"winsor_by_year" envconfig:"WINSOR_BY_YEAR" default:"false"`
	MinRawPrice    float64  `yaml:"min_raw_price" envconfig:"MIN_RAW_PRICE" default:"0"`
	RequiredFields []string `yaml:"required_fields" envconfig:"REQUIRED_FIELDS"`
	WinsorFields   []string `yaml:"winsor_fields" envconfig:"WINSOR_FIELDS"`
}

// StatsConfig lists the variables reported in the descriptive-statistics
// workbook.
type StatsConfig struct {
	Variables []string `yaml:"variables" envconfig:"VARIABLES"`
}

// Load loads configuration from environment variables and an optional
// config file path. An empty path skips the file layer.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("HFP", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := loadFromFile(configFile, &cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays YAML file values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyDefaults fills slice-valued settings envconfig defaults cannot
// express.
func (c *Config) applyDefaults() {
	if len(c.Filter.RequiredFields) == 0 {
		c.Filter.RequiredFields = []string{
			"male", "healthy", "agri_hukou", "edu_years",
			"ln_income", "ln_house_value", "comm_price",
		}
	}
	if len(c.Filter.WinsorFields) == 0 {
		c.Filter.WinsorFields = []string{
			"income", "house_value", "price_sqm", "comm_price",
		}
	}
	if len(c.Stats.Variables) == 0 {
		c.Stats.Variables = []string{
			"fertility", "birth_age", "male", "healthy", "agri_hukou",
			"edu_years", "ln_income", "ln_house_value", "comm_price",
			"fiscal_pc", "water_land", "iv_fiscal_water",
		}
	}
}

// validate checks structural sanity of the loaded configuration
func (c *Config) validate() error {
	return validator.New().Struct(c)
}
