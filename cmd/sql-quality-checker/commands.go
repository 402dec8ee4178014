package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vitebski/sql-quality-checker/internal/generator"
	"github.com/vitebski/sql-quality-checker/internal/metrics"
	"github.com/vitebski/sql-quality-checker/internal/populator"
	"github.com/vitebski/sql-quality-checker/internal/report"
	"github.com/vitebski/sql-quality-checker/internal/utils"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

var errFindings = errors.New("data quality checks reported failures")

func newRunCommand(opts *options) *cobra.Command {
	var (
		table          string
		format         string
		output         string
		metricsFile    string
		failOnFindings bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured checks and print a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			recorder := metrics.NewRecorder("dq")
			dq, err := s.newChecker(recorder)
			if err != nil {
				return err
			}

			var result *models.Report
			if table == "" {
				result, err = dq.RunAllChecks(cmd.Context())
			} else {
				result, err = dq.RunChecksForTable(cmd.Context(), table)
			}
			if err != nil {
				s.logger.Errorf("Check run failed: %v", err)
				return err
			}
			recorder.RunDone(result.Summary)

			if metricsFile != "" {
				if err := recorder.WriteTextfile(metricsFile); err != nil {
					s.logger.Errorf("Failed to write metrics: %v", err)
					return err
				}
				s.logger.Infof("Metrics written to %s", metricsFile)
			}

			if err := writeOutput(output, func(w io.Writer) error {
				return report.Write(w, result, reportFormat)
			}); err != nil {
				return err
			}

			if failOnFindings && result.HasFailures() {
				return errFindings
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Only check this table")
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "Report format (text, json, yaml, csv, toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this file")
	cmd.Flags().BoolVar(&failOnFindings, "fail-on-findings", false, "Exit non-zero when any check fails or errors")
	return cmd
}

func newTablesCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the database and whether checks are configured for them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			dq, err := s.newChecker(nil)
			if err != nil {
				return err
			}
			overview, err := dq.TableOverview(cmd.Context())
			if err != nil {
				s.logger.Errorf("Failed to list tables: %v", err)
				return err
			}

			if format == string(report.FormatText) {
				return printTables(os.Stdout, overview)
			}
			return writeData(os.Stdout, overview, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "Output format (text, json, yaml)")
	return cmd
}

func newDescribeCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "describe TABLE",
		Short: "Show the columns of a table and the checks configured for them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			dq, err := s.newChecker(nil)
			if err != nil {
				return err
			}
			info, err := dq.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeData(os.Stdout, info, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatYAML), "Output format (json, yaml)")
	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the connection state, table row counts and loaded configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			dq, err := s.newChecker(nil)
			if err != nil {
				return err
			}
			status, err := dq.Status(cmd.Context())
			if err != nil {
				s.logger.Errorf("Failed to read data source status: %v", err)
			}
			if status == nil {
				return err
			}
			return writeData(os.Stdout, status, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatYAML), "Output format (json, yaml)")
	return cmd
}

func newSeedCommand(opts *options) *cobra.Command {
	var (
		records     int
		defectRate  float64
		maxRetries  int
		minRecords  int
		seed        int64
		analyzeOnly bool
		verify      bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill every table with generated rows, some of them defective",
		Long: `Fill every table with generated rows in foreign key order.

A share of the text values (--defect-rate) is replaced with NULLs, blanks,
malformed emails and phone numbers, impossible dates or non-ASCII text so that
a following check run has something to report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			if !cmd.Flags().Changed("records") {
				records = s.settings.SeedRecords
			}
			if !cmd.Flags().Changed("defect-rate") {
				defectRate = s.settings.DefectRate
			}
			if defectRate < 0 || defectRate > 1 {
				return errors.Errorf("defect rate must be between 0 and 1, got %v", defectRate)
			}

			if err := s.analyzer.AnalyzeSchema(cmd.Context()); err != nil {
				s.logger.Errorf("Failed to analyze schema: %v", err)
				return err
			}
			utils.PrintSchemaAnalysis(os.Stdout, s.analyzer)

			if analyzeOnly {
				s.logger.Info("Analyze-only mode, exiting without populating data")
				return nil
			}
			if len(s.analyzer.Tables) == 0 {
				return errors.New("no tables found in database")
			}

			var dataGenerator *generator.DataGenerator
			if seed != 0 {
				dataGenerator = generator.NewSeededDataGenerator(seed, defectRate, s.logger)
			} else {
				dataGenerator = generator.NewDataGenerator(defectRate, s.logger)
			}
			dbPopulator := populator.NewDatabasePopulator(s.db, s.analyzer, dataGenerator, records, maxRetries, s.logger)

			s.logger.Info("Starting database population...")
			result, err := dbPopulator.PopulateDatabase(cmd.Context())
			utils.PrintSeedSummary(os.Stdout, result)
			if err != nil {
				return err
			}

			verified := true
			if verify {
				verification := utils.VerifyTablePopulation(cmd.Context(), s.analyzer, s.analyzer.Tables, minRecords, s.logger)
				utils.PrintVerificationResults(os.Stdout, verification)
				verified = verification.OK()
			}

			if len(result.FailedTables) > 0 {
				return errors.Errorf("failed to seed %d tables", len(result.FailedTables))
			}
			if !verified {
				return errors.New("table population verification failed")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&records, "records", "r", 10, "Number of records to generate per table (default: DQ_SEED_RECORDS)")
	cmd.Flags().Float64Var(&defectRate, "defect-rate", 0.1, "Share of text values replaced with defects (default: DQ_DEFECT_RATE)")
	cmd.Flags().IntVarP(&maxRetries, "max-retries", "m", 3, "Maximum number of retries for a failed insert batch")
	cmd.Flags().IntVarP(&minRecords, "min-records", "n", 1, "Minimum number of records each table should have for verification")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for reproducible data (default: random)")
	cmd.Flags().BoolVarP(&analyzeOnly, "analyze-only", "a", false, "Only analyze the database schema without populating data")
	cmd.Flags().BoolVarP(&verify, "verify", "v", false, "Verify that all tables have been populated with the expected number of records")
	return cmd
}

// writeOutput hands fn stdout or the named file
func writeOutput(path string, fn func(w io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

func writeData(w io.Writer, v interface{}, format string) error {
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}
	return report.WriteData(w, v, f)
}

func printTables(w io.Writer, overview []models.TableInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tDISPLAY NAME\tROWS\tCONFIGURED FIELDS")
	for _, info := range overview {
		configured := "-"
		if info.HasConfig {
			configured = fmt.Sprintf("%d", info.ConfiguredFields)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.Name, info.DisplayName, info.RowCount, configured)
	}
	return tw.Flush()
}
