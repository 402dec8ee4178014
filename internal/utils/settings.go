package utils

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/vitebski/sql-quality-checker/internal/checks"
)

// Settings are the engine options read from the environment
type Settings struct {
	Driver          string        `env:"DQ_DRIVER" envDefault:"mysql" validate:"oneof=mysql sqlite3"`
	MaxLength       int           `env:"DQ_MAX_LENGTH" envDefault:"20000" validate:"gte=1"`
	MinLength       int           `env:"DQ_MIN_LENGTH" envDefault:"1" validate:"gte=0,ltefield=MaxLength"`
	MaxRowCount     int64         `env:"DQ_MAX_ROW_COUNT" envDefault:"20000" validate:"gte=0"`
	Workers         int           `env:"DQ_WORKERS" envDefault:"4" validate:"gte=1,lte=64"`
	Timeout         time.Duration `env:"DQ_TIMEOUT" envDefault:"10m" validate:"gte=0"`
	ChecksFile      string        `env:"DQ_CHECKS_FILE"`
	SystemCodesFile string        `env:"DQ_SYSTEM_CODES_FILE"`
	SeedRecords     int           `env:"DQ_SEED_RECORDS" envDefault:"10" validate:"gte=1"`
	DefectRate      float64       `env:"DQ_DEFECT_RATE" envDefault:"0.1" validate:"gte=0,lte=1"`
}

// LoadSettings parses and validates the settings from the environment
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, errors.Wrap(err, "failed to parse settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings against their constraints
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	return nil
}

// Limits returns the check thresholds configured by the settings
func (s *Settings) Limits() checks.Limits {
	return checks.Limits{
		MaxLength:   s.MaxLength,
		MinLength:   s.MinLength,
		MaxRowCount: s.MaxRowCount,
	}
}
