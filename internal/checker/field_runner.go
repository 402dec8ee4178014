package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/checks"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/internal/rules"
	"github.com/vitebski/sql-quality-checker/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vitebski/sql-quality-checker/internal/checker"

// Observer is notified around every field evaluation
type Observer interface {
	FieldStarted(table string)
	FieldDone(table, field string, elapsed time.Duration, findings []models.Finding)
}

type nopObserver struct{}

func (nopObserver) FieldStarted(string)                                       {}
func (nopObserver) FieldDone(string, string, time.Duration, []models.Finding) {}

// FieldRunner evaluates the enabled checks of a single field
type FieldRunner struct {
	DB             *connector.DatabaseConnector
	SchemaAnalyzer *analyzer.SchemaAnalyzer
	Rules          *rules.Config
	Observer       Observer
	Logger         *logrus.Logger

	tracer trace.Tracer
}

// NewFieldRunner creates a runner reading through db
func NewFieldRunner(
	db *connector.DatabaseConnector,
	schemaAnalyzer *analyzer.SchemaAnalyzer,
	ruleSet *rules.Config,
	observer Observer,
	logger *logrus.Logger,
) *FieldRunner {
	if observer == nil {
		observer = nopObserver{}
	}
	return &FieldRunner{
		DB:             db,
		SchemaAnalyzer: schemaAnalyzer,
		Rules:          ruleSet,
		Observer:       observer,
		Logger:         logger,
		tracer:         otel.Tracer(tracerName),
	}
}

// RunFieldChecks applies every enabled check of cfg, in catalog order.
// A missing column or an empty table yields a single structural finding
// instead. Any failure while evaluating the field, panics included, is
// reported as a single execution_error finding and never returned.
func (fr *FieldRunner) RunFieldChecks(ctx context.Context, cfg rules.CheckConfig) (findings []models.Finding) {
	start := time.Now()
	log := fr.Logger.WithFields(logrus.Fields{"table": cfg.Table, "field": cfg.Field})

	ctx, span := fr.tracer.Start(ctx, "checker.RunFieldChecks",
		trace.WithAttributes(
			attribute.String("table", cfg.Table),
			attribute.String("field", cfg.Field),
			attribute.Int("checks", cfg.Checks.Len()),
		),
	)
	fr.Observer.FieldStarted(cfg.Table)

	defer func() {
		if r := recover(); r != nil {
			findings = []models.Finding{executionError(cfg, errors.Errorf("panic: %v", r))}
		}

		if len(findings) == 1 && findings[0].CheckType == models.CheckTypeExecutionError {
			log.Errorf("Field evaluation failed: %s", findings[0].Message)
			span.SetStatus(codes.Error, findings[0].Message)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.Int("findings", len(findings)))
		span.End()

		elapsed := time.Since(start)
		fr.Observer.FieldDone(cfg.Table, cfg.Field, elapsed, findings)
		log.Debugf("Evaluated %d findings in %s", len(findings), elapsed)
	}()

	findings, err := fr.evaluate(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		return []models.Finding{executionError(cfg, err)}
	}
	return findings
}

func (fr *FieldRunner) evaluate(ctx context.Context, cfg rules.CheckConfig) ([]models.Finding, error) {
	// Structural checks first
	if !fr.SchemaAnalyzer.ColumnExists(ctx, cfg.Table, cfg.Field) {
		return []models.Finding{{
			Table:     cfg.Table,
			Field:     cfg.Field,
			CheckType: models.CheckTypeColumnExistence,
			Status:    models.StatusFail,
			Message:   fmt.Sprintf("Column '%s' does not exist in table '%s'", cfg.Field, cfg.Table),
			Severity:  models.SeverityError,
		}}, nil
	}

	totalRows, err := fr.SchemaAnalyzer.RowCount(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}
	if totalRows == 0 {
		return []models.Finding{{
			Table:     cfg.Table,
			Field:     cfg.Field,
			CheckType: models.CheckTypeDataExistence,
			Status:    models.StatusWarning,
			Message:   fmt.Sprintf("Table '%s' has no data", cfg.Table),
			Severity:  models.SeverityWarning,
		}}, nil
	}

	key, err := fr.SchemaAnalyzer.IdentifyingKey(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}

	field := &checks.Field{
		Table:     cfg.Table,
		Name:      cfg.Field,
		KeyColumn: key,
		TotalRows: totalRows,
		Limits:    cfg.Limits,
		Data:      newFieldData(fr.DB, cfg.Table, cfg.Field, key),
	}
	if fr.Rules != nil {
		field.ValidCodes = fr.Rules.ValidCodes(cfg.Table, cfg.Field)
	}

	var findings []models.Finding
	for _, kind := range cfg.Checks.Kinds() {
		spec, ok := checks.Lookup(kind)
		if !ok {
			return nil, errors.Errorf("unknown check kind %d", kind)
		}
		finding, err := spec.Run(ctx, field)
		if err != nil {
			return nil, err
		}
		if finding != nil {
			findings = append(findings, *finding)
		}
	}

	return findings, nil
}

func executionError(cfg rules.CheckConfig, err error) models.Finding {
	return models.Finding{
		Table:     cfg.Table,
		Field:     cfg.Field,
		CheckType: models.CheckTypeExecutionError,
		Status:    models.StatusError,
		Message:   fmt.Sprintf("Error executing checks: %v", err),
		Severity:  models.SeverityError,
	}
}
