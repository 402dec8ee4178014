package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("DQ_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Reports go to stdout, so logs go to stderr
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// requiredVars lists the environment variables a driver needs when no
// command line flags are given
func requiredVars(driver string) []string {
	if driver == connector.DriverSQLite {
		return []string{"DQ_SQLITE_PATH"}
	}
	return []string{"MYSQL_HOST", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE"}
}

// LoadEnvironmentVariables loads environment variables from a .env file and
// reports whether the connection variables of the selected driver are set
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	driver := os.Getenv("DQ_DRIVER")
	if driver == "" {
		driver = connector.DriverMySQL
	}

	var missingVars []string
	for _, v := range requiredVars(driver) {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Debugf("Missing environment variables for %s: %s", driver, strings.Join(missingVars, ", "))
		return false
	}

	// Log connection variables (for debugging)
	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, "MYSQL_") && !strings.HasPrefix(env, "DQ_") {
				continue
			}
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}
			// Mask password
			if parts[0] == "MYSQL_PASSWORD" {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(db *connector.DatabaseConnector, logger *logrus.Logger) bool {
	switch db.Driver {
	case connector.DriverSQLite:
		if db.Database == "" {
			logger.Error("SQLite database path is required")
			return false
		}
		return true
	case connector.DriverMySQL:
	default:
		logger.Errorf("Unsupported driver: %s", db.Driver)
		return false
	}

	if db.Host == "" {
		logger.Error("Database host is required")
		return false
	}

	if db.User == "" {
		logger.Error("Database user is required")
		return false
	}

	if db.Password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if db.Database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(db.Port); err != nil {
		logger.Errorf("Invalid port number: %s", db.Port)
		return false
	}

	return true
}

// PrintSeedSummary prints a summary of the seeding process
func PrintSeedSummary(w io.Writer, result models.PopulationResult) {
	totalTables := len(result.SuccessfulTables) + len(result.FailedTables)

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "DATABASE SEEDING SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Total tables processed: %d\n", totalTables)
	fmt.Fprintf(w, "Successfully seeded tables: %d\n", len(result.SuccessfulTables))
	fmt.Fprintf(w, "Failed tables: %d\n", len(result.FailedTables))
	fmt.Fprintf(w, "Total records inserted: %d\n", result.TotalRecords)
	fmt.Fprintf(w, "Injected defects: %d\n", result.InjectedDefects)

	if len(result.FailedTables) > 0 {
		fmt.Fprintln(w, "\nFailed tables:")
		for _, table := range result.FailedTables {
			fmt.Fprintf(w, "  - %s\n", table)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintSchemaAnalysis prints the table dependencies found by the analyzer
func PrintSchemaAnalysis(w io.Writer, schemaAnalyzer *analyzer.SchemaAnalyzer) {
	tables := schemaAnalyzer.Tables
	foreignKeys := schemaAnalyzer.ForeignKeys

	// Get table order and circular dependencies
	orderedTables, circularTables := schemaAnalyzer.GetTableInsertionOrder()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "DATABASE SCHEMA ANALYSIS REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	// Basic statistics
	fmt.Fprintln(w, "\n1. BASIC STATISTICS")
	fmt.Fprintf(w, "   Total tables: %d\n", len(tables))
	fmt.Fprintf(w, "   Tables with foreign keys: %d\n", len(foreignKeys))
	fmt.Fprintf(w, "   Tables in circular dependencies: %d\n", len(circularTables))

	// Circular dependencies
	if len(circularTables) > 0 {
		var circularTablesList []string
		for table := range circularTables {
			circularTablesList = append(circularTablesList, table)
		}
		sort.Strings(circularTablesList)

		fmt.Fprintln(w, "\n2. CIRCULAR DEPENDENCIES")
		fmt.Fprintf(w, "   Tables involved: %s\n", strings.Join(circularTablesList, ", "))
	}

	// Table insertion order
	fmt.Fprintln(w, "\n3. TABLE INSERTION ORDER")
	for i, table := range orderedTables {
		category := "Standalone"
		if circularTables[table] {
			category = "Circular"
		} else if _, hasFKs := foreignKeys[table]; hasFKs {
			category = "Dependent"
		}
		fmt.Fprintf(w, "   %3d. %s (%s)\n", i+1, table, category)
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// VerifyTablePopulation counts the rows of every table and collects those
// below minRecords. Tables whose count cannot be read are reported as empty.
func VerifyTablePopulation(ctx context.Context, schemaAnalyzer *analyzer.SchemaAnalyzer, tables []string, minRecords int, logger *logrus.Logger) models.VerificationResult {
	result := models.VerificationResult{MinRecords: minRecords, Short: make(map[string]int64)}

	for _, table := range tables {
		log := logger.WithField("table", table)
		count, err := schemaAnalyzer.RowCount(ctx, table)
		switch {
		case err != nil:
			log.Warningf("Could not count rows: %v", err)
			result.Empty = append(result.Empty, table)
		case count == 0:
			log.Warning("Table is empty after seeding")
			result.Empty = append(result.Empty, table)
		case count < int64(minRecords):
			log.Warningf("Table holds %d of %d expected rows", count, minRecords)
			result.Short[table] = count
		}
	}

	if result.OK() {
		logger.Infof("Verified %d tables hold at least %d row(s)", len(tables), minRecords)
	} else {
		logger.Errorf("Verification failed: %d empty and %d short tables", len(result.Empty), len(result.Short))
	}
	return result
}

// PrintVerificationResults prints the outcome of VerifyTablePopulation
func PrintVerificationResults(w io.Writer, result models.VerificationResult) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, "TABLE POPULATION VERIFICATION")
	fmt.Fprintln(w, rule)

	if result.OK() {
		fmt.Fprintf(w, "✅ Every table holds at least %d row(s)\n", result.MinRecords)
		fmt.Fprintln(w, rule)
		return
	}

	if len(result.Empty) > 0 {
		fmt.Fprintf(w, "❌ Empty tables (%d):\n", len(result.Empty))
		for _, table := range result.Empty {
			fmt.Fprintf(w, "  - %s\n", table)
		}
	}

	short := make([]string, 0, len(result.Short))
	for table := range result.Short {
		short = append(short, table)
	}
	sort.Strings(short)
	if len(short) > 0 {
		fmt.Fprintf(w, "⚠️  Tables below %d rows (%d):\n", result.MinRecords, len(short))
		for _, table := range short {
			fmt.Fprintf(w, "  - %s: %d/%d records\n", table, result.Short[table], result.MinRecords)
		}
	}

	fmt.Fprintln(w, rule)
}
