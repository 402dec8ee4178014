// Package report renders check reports for the command line
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/vitebski/sql-quality-checker/pkg/models"
	"gopkg.in/yaml.v3"
)

// Format selects how a report is rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatTOML Format = "toml"
)

// Formats lists the supported formats
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML, FormatCSV, FormatTOML}
}

// ParseFormat resolves a format name (case-insensitive, "yml" accepted)
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "yml" {
		return FormatYAML, nil
	}
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", errors.Errorf("unsupported report format %q", name)
}

// Write renders report to w
func Write(w io.Writer, report *models.Report, format Format) error {
	switch format {
	case FormatText, "":
		return writeText(w, report)
	case FormatJSON, FormatYAML:
		return WriteData(w, report, format)
	case FormatCSV:
		return writeCSV(w, report)
	case FormatTOML:
		return errors.Wrap(toml.NewEncoder(w).Encode(report), "encode toml report")
	default:
		return errors.Errorf("unsupported report format %q", format)
	}
}

// WriteData encodes any value as indented json or yaml
func WriteData(w io.Writer, v interface{}, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return errors.Wrap(enc.Close(), "encode yaml")
	default:
		return errors.Errorf("format %q is not supported here", format)
	}
}

var csvHeader = []string{"table", "field", "check_type", "status", "severity", "message", "key_column", "details"}

func writeCSV(w io.Writer, report *models.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, f := range report.Findings() {
		record := []string{
			f.Table,
			f.Field,
			f.CheckType,
			string(f.Status),
			string(f.Severity),
			f.Message,
			f.KeyColumn,
			FormatDetails(f.MoreDetails, 0),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write csv record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv report")
}

// FormatDetails renders details as "; " separated entries. A positive limit
// caps the number of entries shown.
func FormatDetails(details []models.Detail, limit int) string {
	var parts []string
	for i, d := range details {
		if limit > 0 && i == limit {
			parts = append(parts, fmt.Sprintf("... and %d more", len(details)-limit))
			break
		}
		parts = append(parts, formatDetail(d))
	}
	return strings.Join(parts, "; ")
}

func formatDetail(d models.Detail) string {
	var parts []string
	if d.Key != "" {
		parts = append(parts, d.Key+":")
	}
	if d.Value != "" {
		parts = append(parts, strconv.Quote(d.Value))
	}
	if d.Count > 0 {
		parts = append(parts, fmt.Sprintf("count=%d", d.Count))
	}
	if d.Length > 0 {
		parts = append(parts, fmt.Sprintf("length=%d", d.Length))
	}
	if d.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", d.Limit))
	}
	if len(d.Keys) > 0 {
		parts = append(parts, "keys=["+strings.Join(d.Keys, ",")+"]")
	}
	if d.Note != "" {
		parts = append(parts, "("+d.Note+")")
	}
	return strings.Join(parts, " ")
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusPass:
		return "✅"
	case models.StatusFail:
		return "❌"
	case models.StatusWarning:
		return "⚠️ "
	case models.StatusError:
		return "💥"
	default:
		return "ℹ️ "
	}
}

func writeText(w io.Writer, report *models.Report) error {
	var b strings.Builder
	line := strings.Repeat("=", 80)

	b.WriteString("\n" + line + "\n")
	b.WriteString("DATA QUALITY REPORT\n")
	b.WriteString(line + "\n")

	for _, table := range report.Tables {
		fmt.Fprintf(&b, "\n%s\n", table)
		for _, f := range report.Results[table] {
			fmt.Fprintf(&b, "  %s %-24s %-26s %-8s %s\n", statusIcon(f.Status), f.Field, f.CheckType, f.Severity, f.Message)
			if len(f.MoreDetails) > 0 {
				fmt.Fprintf(&b, "      %s\n", FormatDetails(f.MoreDetails, 5))
			}
		}
	}

	s := report.Summary
	b.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	b.WriteString("SUMMARY\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Tables checked: %d\n", s.TablesChecked)
	fmt.Fprintf(&b, "Total checks: %d\n", s.TotalChecks)
	fmt.Fprintf(&b, "Passed: %d\n", s.PassedChecks)
	fmt.Fprintf(&b, "Failed: %d\n", s.FailedChecks)
	fmt.Fprintf(&b, "Warnings: %d\n", s.Warnings)
	fmt.Fprintf(&b, "Errors: %d\n", s.Errors)
	fmt.Fprintf(&b, "Success rate: %.2f%%\n", s.SuccessRate)
	fmt.Fprintf(&b, "Critical issues: %d, medium: %d, low: %d\n", s.CriticalIssues, s.MediumIssues, s.LowIssues)

	if len(s.BySeverity) > 0 {
		severities := make([]string, 0, len(s.BySeverity))
		for sev := range s.BySeverity {
			severities = append(severities, string(sev))
		}
		sort.Strings(severities)
		var parts []string
		for _, sev := range severities {
			parts = append(parts, fmt.Sprintf("%s=%d", sev, s.BySeverity[models.Severity(sev)]))
		}
		fmt.Fprintf(&b, "By severity: %s\n", strings.Join(parts, ", "))
	}
	b.WriteString(strings.Repeat("=", 50) + "\n")

	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "write text report")
}
