package rules

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/checks"
)

const (
	colTable       = "table_name"
	colField       = "field_name"
	colDescription = "description"
	colValidCodes  = "valid_codes"
	colMaxLength   = "max_length"
	colMinLength   = "min_length"
	colMaxRowCount = "max_row_count"
)

// header maps column names of a configuration source to their position
type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	row, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("configuration source is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	h := make(header, len(row))
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := h[name]; dup {
			return nil, errors.Errorf("duplicate column %q in header", name)
		}
		h[name] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, errors.Errorf("header is missing required column %q", name)
		}
	}
	return h, nil
}

func (h header) get(row []string, name string) (string, bool) {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

// rows iterates over the data rows of a source, handing malformed rows to
// skip and the rest to fn
func rows(r *csv.Reader, width int, skip func(line int, reason string), fn func(line int, row []string)) error {
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skip(parseErr.Line, parseErr.Err.Error())
				continue
			}
			return errors.Wrap(err, "failed to read configuration row")
		}
		line, _ := r.FieldPos(0)
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) != width {
			skip(line, "expected "+strconv.Itoa(width)+" columns, got "+strconv.Itoa(len(row)))
			continue
		}
		fn(line, row)
	}
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// LoadChecks parses the per-field check flags. Flag columns are named after
// the check kinds; a value of 1 enables the check. Malformed rows are logged
// and skipped.
func LoadChecks(r io.Reader, limits checks.Limits, logger *logrus.Logger) (*Config, error) {
	cr := newReader(r)
	h, err := readHeader(cr, colTable, colField)
	if err != nil {
		return nil, err
	}

	flagColumns := make(map[string]checks.Kind)
	for name := range h {
		switch name {
		case colTable, colField, colDescription, colMaxLength, colMinLength, colMaxRowCount:
			continue
		}
		if kind, ok := checks.ParseKind(name); ok {
			flagColumns[name] = kind
		} else {
			logger.Warnf("Ignoring unknown configuration column %q", name)
		}
	}

	cfg := newConfig()
	skip := func(line int, reason string) {
		logger.WithField("line", line).Warnf("Skipping check configuration row: %s", reason)
	}

	err = rows(cr, len(h), skip, func(line int, row []string) {
		table, _ := h.get(row, colTable)
		field, _ := h.get(row, colField)
		if table == "" || field == "" {
			skip(line, "table_name and field_name are required")
			return
		}

		entry := CheckConfig{Table: table, Field: field, Limits: limits}
		entry.Description, _ = h.get(row, colDescription)

		log := logger.WithFields(logrus.Fields{"line": line, "table": table, "field": field})
		for name, kind := range flagColumns {
			raw, _ := h.get(row, name)
			if raw == "" {
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				log.Warnf("Non-numeric value %q for %s, treating as disabled", raw, name)
				continue
			}
			if n == 1 {
				entry.Checks = entry.Checks.With(kind)
			}
		}

		entry.Limits.MaxLength = int(overrideLimit(h, row, colMaxLength, int64(limits.MaxLength), log))
		entry.Limits.MinLength = int(overrideLimit(h, row, colMinLength, int64(limits.MinLength), log))
		entry.Limits.MaxRowCount = overrideLimit(h, row, colMaxRowCount, limits.MaxRowCount, log)

		if !cfg.add(entry) {
			skip(line, "duplicate configuration for "+table+"."+field)
		}
	})
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func overrideLimit(h header, row []string, column string, fallback int64, log *logrus.Entry) int64 {
	raw, ok := h.get(row, column)
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		log.Warnf("Invalid %s %q, using default %d", column, raw, fallback)
		return fallback
	}
	return n
}

// SystemCodes maps table and field to the ordered allow-list of codes
type SystemCodes map[string]map[string][]string

// Get returns the allow-list of one field
func (s SystemCodes) Get(table, field string) []string {
	return s[table][field]
}

func (s SystemCodes) set(table, field string, codes []string) bool {
	if _, ok := s[table]; !ok {
		s[table] = make(map[string][]string)
	}
	if _, exists := s[table][field]; exists {
		return false
	}
	s[table][field] = codes
	return true
}

// ParseCodes splits a comma separated list, trimming whitespace and dropping
// empty and repeated entries
func ParseCodes(raw string) []string {
	var codes []string
	seen := make(map[string]struct{})
	for _, code := range strings.Split(raw, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// LoadSystemCodes parses the per-field allow-lists
func LoadSystemCodes(r io.Reader, logger *logrus.Logger) (SystemCodes, error) {
	cr := newReader(r)
	h, err := readHeader(cr, colTable, colField, colValidCodes)
	if err != nil {
		return nil, err
	}

	codes := SystemCodes{}
	skip := func(line int, reason string) {
		logger.WithField("line", line).Warnf("Skipping system codes row: %s", reason)
	}

	err = rows(cr, len(h), skip, func(line int, row []string) {
		table, _ := h.get(row, colTable)
		field, _ := h.get(row, colField)
		if table == "" || field == "" {
			skip(line, "table_name and field_name are required")
			return
		}
		raw, _ := h.get(row, colValidCodes)
		if !codes.set(table, field, ParseCodes(raw)) {
			skip(line, "duplicate system codes for "+table+"."+field)
		}
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}
