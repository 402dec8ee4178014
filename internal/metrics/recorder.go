// Package metrics exposes Prometheus instrumentation for check runs
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

// Recorder collects counters and timings for field evaluations. Each
// Recorder owns its registry so several runs in one process do not collide.
type Recorder struct {
	registry       *prometheus.Registry
	fieldsTotal    *prometheus.CounterVec
	findingsTotal  *prometheus.CounterVec
	fieldDuration  *prometheus.HistogramVec
	activeFields   prometheus.Gauge
	lastSuccessPct prometheus.Gauge
}

// NewRecorder creates a recorder whose metric names start with namespace
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fieldsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fields_evaluated_total",
				Help:      "Total number of evaluated fields",
			},
			[]string{"table", "outcome"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of findings by check type, status and severity",
			},
			[]string{"check_type", "status", "severity"},
		),
		fieldDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "field_duration_seconds",
				Help:      "Duration of field evaluations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"table"},
		),
		activeFields: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_field_evaluations",
				Help:      "Number of field evaluations in progress",
			},
		),
		lastSuccessPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success_rate",
				Help:      "Success rate of the last completed run in percent",
			},
		),
	}

	r.registry.MustRegister(
		r.fieldsTotal,
		r.findingsTotal,
		r.fieldDuration,
		r.activeFields,
		r.lastSuccessPct,
	)

	return r
}

// FieldStarted marks the start of a field evaluation
func (r *Recorder) FieldStarted(table string) {
	r.activeFields.Inc()
}

// FieldDone records the outcome of a field evaluation
func (r *Recorder) FieldDone(table, field string, elapsed time.Duration, findings []models.Finding) {
	r.activeFields.Dec()
	r.fieldDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	r.fieldsTotal.WithLabelValues(table, fieldOutcome(findings)).Inc()

	for _, f := range findings {
		r.findingsTotal.WithLabelValues(f.CheckType, string(f.Status), string(f.Severity)).Inc()
	}
}

// RunDone records the summary of a finished run
func (r *Recorder) RunDone(summary models.Summary) {
	r.lastSuccessPct.Set(summary.SuccessRate)
}

// WriteTextfile writes the current metrics in the text exposition format,
// suitable for the node_exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}

func fieldOutcome(findings []models.Finding) string {
	outcome := "pass"
	for _, f := range findings {
		switch {
		case f.CheckType == models.CheckTypeExecutionError:
			return "error"
		case f.CheckType == models.CheckTypeColumnExistence, f.CheckType == models.CheckTypeDataExistence:
			outcome = "skipped"
		case f.Status != models.StatusPass && outcome == "pass":
			outcome = "fail"
		}
	}
	return outcome
}
