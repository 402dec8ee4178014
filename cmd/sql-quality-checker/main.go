package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/checker"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/internal/rules"
	"github.com/vitebski/sql-quality-checker/internal/utils"
)

// options holds the flags shared by every command
type options struct {
	driver          string
	host            string
	user            string
	password        string
	database        string
	port            string
	envFile         string
	logLevel        string
	checksFile      string
	systemCodesFile string
}

// session is an open connection plus the settings it was made with
type session struct {
	logger   *logrus.Logger
	settings *utils.Settings
	db       *connector.DatabaseConnector
	analyzer *analyzer.SchemaAnalyzer
}

func (o *options) connect(ctx context.Context) (*session, error) {
	logger := utils.SetupLogging(o.logLevel)
	utils.LoadEnvironmentVariables(o.envFile, logger)

	settings, err := utils.LoadSettings()
	if err != nil {
		logger.Errorf("Invalid settings: %v", err)
		return nil, err
	}
	if o.driver != "" {
		settings.Driver = o.driver
	}
	if o.checksFile != "" {
		settings.ChecksFile = o.checksFile
	}
	if o.systemCodesFile != "" {
		settings.SystemCodesFile = o.systemCodesFile
	}
	if err := settings.Validate(); err != nil {
		logger.Errorf("Invalid settings: %v", err)
		return nil, err
	}

	db := connector.NewDatabaseConnector(settings.Driver, o.host, o.user, o.password, o.database, o.port, logger)
	if !utils.ValidateConnectionParams(db, logger) {
		return nil, errors.New("invalid connection parameters")
	}
	if err := db.Connect(ctx); err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		return nil, err
	}

	return &session{
		logger:   logger,
		settings: settings,
		db:       db,
		analyzer: analyzer.NewSchemaAnalyzer(db, logger),
	}, nil
}

// newChecker loads the rule set and builds a checker reporting to observer
func (s *session) newChecker(observer checker.Observer) (*checker.DataQualityChecker, error) {
	ruleSet, err := rules.Load(s.settings.ChecksFile, s.settings.SystemCodesFile, s.settings.Limits(), s.logger)
	if err != nil {
		s.logger.Errorf("Failed to load check configuration: %v", err)
		return nil, err
	}
	runner := checker.NewFieldRunner(s.db, s.analyzer, ruleSet, observer, s.logger)
	return checker.NewDataQualityChecker(runner, s.settings.Workers, s.settings.Timeout, s.logger), nil
}

func (s *session) close() {
	s.db.Disconnect()
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "sql-quality-checker",
		Short: "Rule-driven data quality checks for MySQL and SQLite databases",
		Long: `SQL Quality Checker

Validates the records of a relational database against a per-field rule set
(null, blank, email, phone, duplicate, date, system code and more) and reports
PASS/FAIL findings with the offending record keys.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.driver, "driver", "", "Database driver: mysql or sqlite3 (default: DQ_DRIVER or mysql)")
	flags.StringVarP(&opts.host, "host", "H", "", "MySQL host (default: localhost)")
	flags.StringVarP(&opts.user, "user", "u", "", "MySQL user (default: root)")
	flags.StringVarP(&opts.password, "password", "p", "", "MySQL password")
	flags.StringVarP(&opts.database, "database", "d", "", "MySQL database name or SQLite file path")
	flags.StringVarP(&opts.port, "port", "P", "", "MySQL port (default: 3306)")
	flags.StringVarP(&opts.envFile, "env-file", "e", ".env", "Path to .env file")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.checksFile, "checks-file", "", "Check configuration CSV (default: built-in sample rules)")
	flags.StringVar(&opts.systemCodesFile, "system-codes-file", "", "System codes CSV (default: built-in sample codes)")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newTablesCommand(opts),
		newDescribeCommand(opts),
		newStatusCommand(opts),
		newSeedCommand(opts),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
