// Package rules loads the declarative check configuration: which checks run
// on which (table, field) and the allow-lists used by system_codes_check.
package rules

import (
	"bytes"
	"embed"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/checks"
)

//go:embed defaults/*.csv
var defaultFiles embed.FS

const (
	defaultChecksFile      = "defaults/checks.csv"
	defaultSystemCodesFile = "defaults/system_codes.csv"
)

// CheckConfig is the rule set of one field
type CheckConfig struct {
	Table       string        `json:"table_name" yaml:"table_name"`
	Field       string        `json:"field_name" yaml:"field_name"`
	Description string        `json:"description" yaml:"description"`
	Checks      checks.Set    `json:"checks" yaml:"checks"`
	Limits      checks.Limits `json:"limits" yaml:"limits"`
}

type fieldKey struct {
	table string
	field string
}

// Config holds every CheckConfig in order of first appearance together with
// the system code allow-lists. It is not modified after loading.
type Config struct {
	tables  []string
	fields  map[string][]string
	entries map[fieldKey]CheckConfig
	codes   SystemCodes
}

func newConfig() *Config {
	return &Config{
		fields:  make(map[string][]string),
		entries: make(map[fieldKey]CheckConfig),
		codes:   SystemCodes{},
	}
}

func (c *Config) add(cfg CheckConfig) bool {
	key := fieldKey{cfg.Table, cfg.Field}
	if _, exists := c.entries[key]; exists {
		return false
	}
	if _, known := c.fields[cfg.Table]; !known {
		c.tables = append(c.tables, cfg.Table)
	}
	c.fields[cfg.Table] = append(c.fields[cfg.Table], cfg.Field)
	c.entries[key] = cfg
	return true
}

// Tables returns the configured tables in order of first appearance
func (c *Config) Tables() []string {
	return append([]string(nil), c.tables...)
}

// HasTable reports whether any field of table is configured
func (c *Config) HasTable(table string) bool {
	_, ok := c.fields[table]
	return ok
}

// Fields returns the configured fields of table in order of appearance
func (c *Config) Fields(table string) []CheckConfig {
	names := c.fields[table]
	out := make([]CheckConfig, 0, len(names))
	for _, name := range names {
		out = append(out, c.entries[fieldKey{table, name}])
	}
	return out
}

// Lookup returns the rule set of one field
func (c *Config) Lookup(table, field string) (CheckConfig, bool) {
	cfg, ok := c.entries[fieldKey{table, field}]
	return cfg, ok
}

// ValidCodes returns the allow-list of one field, empty when unrestricted
func (c *Config) ValidCodes(table, field string) []string {
	return c.codes.Get(table, field)
}

// FieldCount returns the number of configured fields across all tables
func (c *Config) FieldCount() int {
	return len(c.entries)
}

// WithSystemCodes attaches allow-lists and warns about fields that enable
// system_codes_check without one
func (c *Config) WithSystemCodes(codes SystemCodes, logger *logrus.Logger) *Config {
	if codes == nil {
		codes = SystemCodes{}
	}
	c.codes = codes
	for _, table := range c.tables {
		for _, cfg := range c.Fields(table) {
			if cfg.Checks.Has(checks.SystemCodesCheck) && len(codes.Get(table, cfg.Field)) == 0 {
				logger.WithFields(logrus.Fields{
					"table": table,
					"field": cfg.Field,
				}).Warn("system_codes_check enabled without valid codes, the check will be skipped")
			}
		}
	}
	return c
}

// Load reads both configuration sources. An empty path selects the embedded
// sample configuration.
func Load(checksPath, codesPath string, limits checks.Limits, logger *logrus.Logger) (*Config, error) {
	checksData, err := readSource(checksPath, defaultChecksFile)
	if err != nil {
		return nil, err
	}
	codesData, err := readSource(codesPath, defaultSystemCodesFile)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadChecks(bytes.NewReader(checksData), limits, logger)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load checks from %s", sourceName(checksPath, defaultChecksFile))
	}
	codes, err := LoadSystemCodes(bytes.NewReader(codesData), logger)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load system codes from %s", sourceName(codesPath, defaultSystemCodesFile))
	}

	logger.Infof("Loaded %d field configurations across %d tables", cfg.FieldCount(), len(cfg.Tables()))
	return cfg.WithSystemCodes(codes, logger), nil
}

func readSource(path, fallback string) ([]byte, error) {
	if path == "" {
		return defaultFiles.ReadFile(fallback)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return data, nil
}

func sourceName(path, fallback string) string {
	if path == "" {
		return "embedded " + fallback
	}
	return path
}

// DefaultConfig returns the embedded sample configuration
func DefaultConfig(limits checks.Limits, logger *logrus.Logger) (*Config, error) {
	return Load("", "", limits, logger)
}
