package utils

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/checks"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

func TestSetupLogging(t *testing.T) {
	t.Setenv("DQ_LOG_LEVEL", "")

	// Test with default log level
	logger := SetupLogging("")
	if logger == nil {
		t.Fatal("Expected logger to be created, got nil")
	}
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected default log level to be info, got %s", logger.Level)
	}

	// Test with specific log level
	logger = SetupLogging("debug")
	if logger.Level != logrus.DebugLevel {
		t.Errorf("Expected log level to be debug, got %s", logger.Level)
	}

	logger = SetupLogging("warn")
	if logger.Level != logrus.WarnLevel {
		t.Errorf("Expected log level to be warn, got %s", logger.Level)
	}

	// Test with invalid log level (should default to info)
	logger = SetupLogging("invalid")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info for invalid input, got %s", logger.Level)
	}

	// Environment is used when no level is passed
	t.Setenv("DQ_LOG_LEVEL", "error")
	logger = SetupLogging("")
	if logger.Level != logrus.ErrorLevel {
		t.Errorf("Expected log level from DQ_LOG_LEVEL to be error, got %s", logger.Level)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	for _, v := range []string{"DQ_DRIVER", "DQ_MAX_LENGTH", "DQ_MIN_LENGTH", "DQ_MAX_ROW_COUNT", "DQ_WORKERS", "DQ_TIMEOUT"} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("Expected default settings to load, got %v", err)
	}
	if s.Driver != connector.DriverMySQL {
		t.Errorf("Expected default driver mysql, got %s", s.Driver)
	}
	if s.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", s.Workers)
	}
	if s.Timeout != 10*time.Minute {
		t.Errorf("Expected 10m timeout, got %s", s.Timeout)
	}
	if s.Limits() != checks.DefaultLimits() {
		t.Errorf("Expected default limits, got %+v", s.Limits())
	}
}

func TestLoadSettingsFromEnvironment(t *testing.T) {
	t.Setenv("DQ_DRIVER", "sqlite3")
	t.Setenv("DQ_MAX_LENGTH", "255")
	t.Setenv("DQ_MIN_LENGTH", "2")
	t.Setenv("DQ_MAX_ROW_COUNT", "1000")
	t.Setenv("DQ_WORKERS", "8")
	t.Setenv("DQ_TIMEOUT", "30s")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("Expected settings to load, got %v", err)
	}
	want := checks.Limits{MaxLength: 255, MinLength: 2, MaxRowCount: 1000}
	if s.Limits() != want {
		t.Errorf("Expected limits %+v, got %+v", want, s.Limits())
	}
	if s.Workers != 8 || s.Timeout != 30*time.Second {
		t.Errorf("Unexpected workers/timeout: %d %s", s.Workers, s.Timeout)
	}
}

func TestLoadSettingsRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"DQ_DRIVER":     "postgres",
		"DQ_WORKERS":    "0",
		"DQ_MIN_LENGTH": "50000",
		"DQ_MAX_LENGTH": "not-a-number",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := LoadSettings(); err == nil {
				t.Errorf("Expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestLoadEnvironmentVariables(t *testing.T) {
	logger := createTestLogger()
	for _, v := range []string{"DQ_DRIVER", "DQ_SQLITE_PATH", "MYSQL_HOST", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE"} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	envFile := filepath.Join(t.TempDir(), ".env")
	if LoadEnvironmentVariables(envFile, logger) {
		t.Error("Expected missing MySQL variables to be reported")
	}

	content := "DQ_DRIVER=sqlite3\nDQ_SQLITE_PATH=/tmp/northwind.db\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	if !LoadEnvironmentVariables(envFile, logger) {
		t.Error("Expected sqlite variables from the env file to be accepted")
	}
	if os.Getenv("DQ_SQLITE_PATH") != "/tmp/northwind.db" {
		t.Errorf("Expected DQ_SQLITE_PATH to be loaded, got %q", os.Getenv("DQ_SQLITE_PATH"))
	}
}

func TestValidateConnectionParams(t *testing.T) {
	logger := createTestLogger()
	mysql := func(host, user, password, database, port string) *connector.DatabaseConnector {
		return &connector.DatabaseConnector{
			Driver: connector.DriverMySQL, Host: host, User: user,
			Password: password, Database: database, Port: port,
		}
	}

	// Test with valid parameters
	if !ValidateConnectionParams(mysql("localhost", "user", "password", "database", "3306"), logger) {
		t.Error("Expected validation to pass with valid parameters")
	}

	// Test with missing host
	if ValidateConnectionParams(mysql("", "user", "password", "database", "3306"), logger) {
		t.Error("Expected validation to fail with missing host")
	}

	// Test with missing user
	if ValidateConnectionParams(mysql("localhost", "", "password", "database", "3306"), logger) {
		t.Error("Expected validation to fail with missing user")
	}

	// Test with missing database
	if ValidateConnectionParams(mysql("localhost", "user", "password", "", "3306"), logger) {
		t.Error("Expected validation to fail with missing database")
	}

	// Test with invalid port
	if ValidateConnectionParams(mysql("localhost", "user", "password", "database", "not-a-port"), logger) {
		t.Error("Expected validation to fail with invalid port")
	}

	// Empty password is allowed
	if !ValidateConnectionParams(mysql("localhost", "user", "", "database", "3306"), logger) {
		t.Error("Expected validation to pass with empty password")
	}

	// SQLite only needs a path
	sqlite := &connector.DatabaseConnector{Driver: connector.DriverSQLite, Database: "northwind.db"}
	if !ValidateConnectionParams(sqlite, logger) {
		t.Error("Expected validation to pass for sqlite with a path")
	}
	sqlite.Database = ""
	if ValidateConnectionParams(sqlite, logger) {
		t.Error("Expected validation to fail for sqlite without a path")
	}

	if ValidateConnectionParams(&connector.DatabaseConnector{Driver: "oracle"}, logger) {
		t.Error("Expected validation to fail for an unsupported driver")
	}
}

func TestPrintSeedSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSeedSummary(&buf, models.PopulationResult{
		SuccessfulTables: []string{"Customers", "Orders"},
		FailedTables:     []string{"Employees"},
		TotalRecords:     20,
		InjectedDefects:  4,
	})

	out := buf.String()
	for _, want := range []string{"Total tables processed: 3", "Total records inserted: 20", "Injected defects: 4", "  - Employees"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestVerifyTablePopulation(t *testing.T) {
	ctx := context.Background()
	logger := createTestLogger()
	db := connector.NewDatabaseConnector(connector.DriverSQLite, "", "", "", ":memory:", "", logger)
	if err := db.Connect(ctx); err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer db.Disconnect()

	for _, stmt := range []string{
		"CREATE TABLE Regions (RegionID INTEGER PRIMARY KEY, RegionDescription TEXT)",
		"INSERT INTO Regions VALUES (1, 'Eastern'), (2, 'Western'), (3, 'Northern')",
		"CREATE TABLE Territories (TerritoryID TEXT PRIMARY KEY, RegionID INTEGER)",
		"INSERT INTO Territories VALUES ('01581', 1)",
		"CREATE TABLE Shippers (ShipperID INTEGER PRIMARY KEY)",
	} {
		if _, err := db.ExecuteStatement(ctx, stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}

	sa := analyzer.NewSchemaAnalyzer(db, logger)
	result := VerifyTablePopulation(ctx, sa, []string{"Regions", "Territories", "Shippers"}, 2, logger)
	if result.OK() {
		t.Error("Expected verification to fail")
	}
	if len(result.Empty) != 1 || result.Empty[0] != "Shippers" {
		t.Errorf("Expected Shippers to be empty, got %v", result.Empty)
	}
	if result.Short["Territories"] != 1 || len(result.Short) != 1 {
		t.Errorf("Expected only Territories to be short, got %v", result.Short)
	}

	var buf bytes.Buffer
	PrintVerificationResults(&buf, result)
	if !strings.Contains(buf.String(), "Territories: 1/2 records") {
		t.Errorf("Unexpected verification output:\n%s", buf.String())
	}

	if !VerifyTablePopulation(ctx, sa, []string{"Regions"}, 3, logger).OK() {
		t.Error("Expected Regions to hold enough rows")
	}
}
