// Package checker runs the configured checks against a data source and
// aggregates the findings into a report.
package checker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/rules"
	"github.com/vitebski/sql-quality-checker/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrTableNotFound is returned when a requested table is absent from the data source
	ErrTableNotFound = errors.New("table not found")
	// ErrTableNotConfigured is returned when a requested table has no check configuration
	ErrTableNotConfigured = errors.New("no validation configuration for table")
)

// DataQualityChecker evaluates every configured field of the data source
type DataQualityChecker struct {
	SchemaAnalyzer *analyzer.SchemaAnalyzer
	Rules          *rules.Config
	Runner         *FieldRunner
	Workers        int
	Timeout        time.Duration
	Logger         *logrus.Logger
}

// NewDataQualityChecker creates a checker running at most workers fields
// concurrently. A zero timeout leaves runs unbounded.
func NewDataQualityChecker(runner *FieldRunner, workers int, timeout time.Duration, logger *logrus.Logger) *DataQualityChecker {
	if workers < 1 {
		workers = 1
	}
	return &DataQualityChecker{
		SchemaAnalyzer: runner.SchemaAnalyzer,
		Rules:          runner.Rules,
		Runner:         runner,
		Workers:        workers,
		Timeout:        timeout,
		Logger:         logger,
	}
}

// RunAllChecks evaluates every configured table present in the data source
func (c *DataQualityChecker) RunAllChecks(ctx context.Context) (*models.Report, error) {
	var tables []string
	for _, table := range c.Rules.Tables() {
		if !c.SchemaAnalyzer.TableExists(ctx, table) {
			c.Logger.WithField("table", table).Warn("Configured table not found in data source, skipping")
			continue
		}
		tables = append(tables, table)
	}
	return c.run(ctx, tables)
}

// RunChecksForTable evaluates the configured fields of a single table
func (c *DataQualityChecker) RunChecksForTable(ctx context.Context, table string) (*models.Report, error) {
	if !c.SchemaAnalyzer.TableExists(ctx, table) {
		return nil, errors.Wrapf(ErrTableNotFound, "%s (configured tables: %v)", table, c.Rules.Tables())
	}
	if !c.Rules.HasTable(table) {
		return nil, errors.Wrap(ErrTableNotConfigured, table)
	}
	return c.run(ctx, []string{table})
}

type job struct {
	slot int
	cfg  rules.CheckConfig
}

func (c *DataQualityChecker) run(ctx context.Context, tables []string) (*models.Report, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// One result slot per (table, field), filled by exactly one worker
	var jobs []job
	for _, table := range tables {
		for _, cfg := range c.Rules.Fields(table) {
			jobs = append(jobs, job{slot: len(jobs), cfg: cfg})
		}
	}
	slots := make([][]models.Finding, len(jobs))

	log := c.Logger.WithField("run_id", uuid.NewString())
	log.Infof("Running checks on %d fields across %d tables with %d workers", len(jobs), len(tables), c.Workers)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[j.slot] = c.Runner.RunFieldChecks(gctx, j.cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warnf("Check run interrupted: %v", err)
		return nil, errors.Wrap(err, "check run interrupted")
	}
	if err := ctx.Err(); err != nil {
		log.Warnf("Check run interrupted: %v", err)
		return nil, errors.Wrap(err, "check run interrupted")
	}

	// Merge in configuration order
	results := make(map[string][]models.Finding)
	for _, j := range jobs {
		results[j.cfg.Table] = append(results[j.cfg.Table], slots[j.slot]...)
	}

	report := models.NewReport(tables, results)
	log.WithFields(logrus.Fields{
		"total":        report.Summary.TotalChecks,
		"passed":       report.Summary.PassedChecks,
		"failed":       report.Summary.FailedChecks,
		"success_rate": report.Summary.SuccessRate,
	}).Infof("Checks completed in %s", time.Since(start).Round(time.Millisecond))

	return report, nil
}

// Describe returns the catalog information of a table together with its
// configured checks
func (c *DataQualityChecker) Describe(ctx context.Context, table string) (*models.TableInfo, error) {
	if !c.SchemaAnalyzer.TableExists(ctx, table) {
		return nil, errors.Wrap(ErrTableNotFound, table)
	}
	info, err := c.SchemaAnalyzer.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	c.annotate(info)
	return info, nil
}

// TableOverview lists every table of the data source with its row count and
// whether checks are configured for it
func (c *DataQualityChecker) TableOverview(ctx context.Context) ([]models.TableInfo, error) {
	tables, err := c.SchemaAnalyzer.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	overview := make([]models.TableInfo, 0, len(tables))
	for _, table := range tables {
		count, err := c.SchemaAnalyzer.RowCount(ctx, table)
		if err != nil {
			return nil, err
		}
		info := models.TableInfo{Name: table, RowCount: count}
		c.annotate(&info)
		overview = append(overview, info)
	}
	return overview, nil
}

func (c *DataQualityChecker) annotate(info *models.TableInfo) {
	info.DisplayName = DisplayName(info.Name)
	fields := c.Rules.Fields(info.Name)
	info.HasConfig = len(fields) > 0
	info.ConfiguredFields = len(fields)
	if !info.HasConfig {
		return
	}
	info.ConfiguredChecks = make(map[string][]string, len(fields))
	for _, cfg := range fields {
		info.ConfiguredChecks[cfg.Field] = cfg.Checks.Names()
	}
}

// DisplayName turns a table name such as order_details into "Order Details"
func DisplayName(table string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(table, "_", " "))
}

// Status reports on the data source and the loaded configuration. Row count
// failures are logged and recorded as -1.
func (c *DataQualityChecker) Status(ctx context.Context) (*models.SourceStatus, error) {
	db := c.SchemaAnalyzer.DB
	status := &models.SourceStatus{
		Driver:           db.Driver,
		Database:         db.Database,
		RowCounts:        make(map[string]int64),
		ConfiguredTables: c.Rules.Tables(),
		FieldConfigs:     c.Rules.FieldCount(),
	}

	for _, table := range status.ConfiguredTables {
		for _, cfg := range c.Rules.Fields(table) {
			if len(c.Rules.ValidCodes(table, cfg.Field)) > 0 {
				status.SystemCodesConfigured = true
			}
		}
	}

	tables, err := c.SchemaAnalyzer.ListTables(ctx)
	if err != nil {
		return status, err
	}
	status.Connected = true
	status.Tables = tables

	present := make(map[string]bool, len(tables))
	for _, table := range tables {
		present[table] = true
		count, err := c.SchemaAnalyzer.RowCount(ctx, table)
		if err != nil {
			c.Logger.WithField("table", table).Errorf("Failed to count rows: %v", err)
			count = -1
		}
		status.RowCounts[table] = count
	}
	for _, table := range status.ConfiguredTables {
		if !present[table] {
			status.MissingTables = append(status.MissingTables, table)
		}
	}

	return status, nil
}
