package models

import "math"

// Status is the outcome of a single check
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// Severity is the coarse priority bucket of a finding
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityLow     Severity = "LOW"
	SeverityMedium  Severity = "MEDIUM"
	SeverityHigh    Severity = "HIGH"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Check types for findings that are not produced by a configured check
const (
	CheckTypeColumnExistence = "column_existence"
	CheckTypeDataExistence   = "data_existence"
	CheckTypeExecutionError  = "execution_error"
)

// Detail describes one violating record or group of records.
// Only the fields relevant to the check that produced it are set.
type Detail struct {
	Key    string   `json:"key,omitempty" yaml:"key,omitempty" toml:"key,omitempty"`
	Value  string   `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Count  int64    `json:"count,omitempty" yaml:"count,omitempty" toml:"count,omitempty"`
	Length int      `json:"length,omitempty" yaml:"length,omitempty" toml:"length,omitempty"`
	Limit  int64    `json:"limit,omitempty" yaml:"limit,omitempty" toml:"limit,omitempty"`
	Keys   []string `json:"keys,omitempty" yaml:"keys,omitempty" toml:"keys,omitempty"`
	Note   string   `json:"note,omitempty" yaml:"note,omitempty" toml:"note,omitempty"`
}

// Finding is the outcome of applying one check to one field
type Finding struct {
	Table       string   `json:"table" yaml:"table" toml:"table"`
	Field       string   `json:"field" yaml:"field" toml:"field"`
	CheckType   string   `json:"check_type" yaml:"check_type" toml:"check_type"`
	Status      Status   `json:"status" yaml:"status" toml:"status"`
	Message     string   `json:"message" yaml:"message" toml:"message"`
	KeyColumn   string   `json:"key_column,omitempty" yaml:"key_column,omitempty" toml:"key_column,omitempty"`
	MoreDetails []Detail `json:"more_details" yaml:"more_details" toml:"more_details"`
	Severity    Severity `json:"severity" yaml:"severity" toml:"severity"`
}

// Summary holds the counters derived from a list of findings
type Summary struct {
	TotalChecks    int              `json:"total_checks" yaml:"total_checks" toml:"total_checks"`
	PassedChecks   int              `json:"passed_checks" yaml:"passed_checks" toml:"passed_checks"`
	FailedChecks   int              `json:"failed_checks" yaml:"failed_checks" toml:"failed_checks"`
	Warnings       int              `json:"warnings" yaml:"warnings" toml:"warnings"`
	Errors         int              `json:"errors" yaml:"errors" toml:"errors"`
	InfoChecks     int              `json:"info_checks" yaml:"info_checks" toml:"info_checks"`
	SuccessRate    float64          `json:"success_rate" yaml:"success_rate" toml:"success_rate"`
	TablesChecked  int              `json:"tables_checked" yaml:"tables_checked" toml:"tables_checked"`
	CriticalIssues int              `json:"critical_issues" yaml:"critical_issues" toml:"critical_issues"`
	MediumIssues   int              `json:"medium_issues" yaml:"medium_issues" toml:"medium_issues"`
	LowIssues      int              `json:"low_issues" yaml:"low_issues" toml:"low_issues"`
	BySeverity     map[Severity]int `json:"by_severity" yaml:"by_severity" toml:"by_severity"`
}

// Report maps each checked table to its ordered findings
type Report struct {
	Tables  []string             `json:"tables" yaml:"tables" toml:"tables"`
	Results map[string][]Finding `json:"detailed_results" yaml:"detailed_results" toml:"detailed_results"`
	Summary Summary              `json:"summary" yaml:"summary" toml:"summary"`
}

// NewReport builds a report from per-table findings in the given table order.
// Tables without findings are left out.
func NewReport(order []string, results map[string][]Finding) *Report {
	report := &Report{Results: make(map[string][]Finding)}
	for _, table := range order {
		findings := results[table]
		if len(findings) == 0 {
			continue
		}
		report.Tables = append(report.Tables, table)
		report.Results[table] = findings
	}
	report.Summary = Summarize(report.Findings())
	report.Summary.TablesChecked = len(report.Tables)
	return report
}

// Findings returns all findings of the report in table order
func (r *Report) Findings() []Finding {
	var all []Finding
	for _, table := range r.Tables {
		all = append(all, r.Results[table]...)
	}
	return all
}

// HasFailures reports whether any check failed or could not run
func (r *Report) HasFailures() bool {
	return r.Summary.FailedChecks > 0 || r.Summary.Errors > 0
}

// Summarize folds a flat list of findings into summary counters
func Summarize(findings []Finding) Summary {
	summary := Summary{BySeverity: make(map[Severity]int)}

	for _, f := range findings {
		summary.TotalChecks++
		switch f.Status {
		case StatusPass:
			summary.PassedChecks++
		case StatusFail:
			summary.FailedChecks++
		case StatusWarning:
			summary.Warnings++
		case StatusError:
			summary.Errors++
		}

		summary.BySeverity[f.Severity]++
		switch f.Severity {
		case SeverityInfo:
			summary.InfoChecks++
		case SeverityError, SeverityHigh:
			summary.CriticalIssues++
		case SeverityMedium:
			summary.MediumIssues++
		}
	}

	summary.LowIssues = summary.TotalChecks - summary.CriticalIssues - summary.MediumIssues
	if summary.TotalChecks > 0 {
		rate := float64(summary.PassedChecks) / float64(summary.TotalChecks) * 100
		summary.SuccessRate = math.Round(rate*100) / 100
	}

	return summary
}
