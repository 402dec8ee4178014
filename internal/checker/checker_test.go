package checker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/checks"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/internal/rules"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

var fixture = []string{
	`CREATE TABLE Customers (
		CustomerID TEXT PRIMARY KEY,
		CompanyName TEXT NOT NULL,
		Email TEXT,
		Phone TEXT,
		Region TEXT,
		Country TEXT
	)`,
	`INSERT INTO Customers VALUES
		('ALFKI', 'Alfreds Futterkiste', 'maria@alfreds.de', '030-0074321', 'Western Europe', 'Germany'),
		('ANATR', 'Ana Trujillo', 'not-an-email', '(5) 555-4729', NULL, 'Mexico'),
		('BONAP', 'Bon app', 'laurence@bonapp.fr', '91.24.45.40', 'Narnia', 'France'),
		('CHOPS', 'Chop-suey Chinese', '', NULL, 'Western Europe', 'Switzerland'),
		('DUMON', 'Du monde entier', NULL, '40.67.88.88', 'Western Europe', 'France')`,
	`CREATE TABLE Orders (
		OrderID INTEGER PRIMARY KEY,
		CustomerID TEXT,
		OrderDate TEXT,
		Freight REAL
	)`,
	`INSERT INTO Orders VALUES
		(10248, 'VINET', '2016-07-04', 32.38),
		(10249, 'TOMSP', '07/05/2016', 11.61),
		(10250, 'HANAR', '2016-13-45', 65.83)`,
	`CREATE TABLE Shippers (ShipperID INTEGER PRIMARY KEY, CompanyName TEXT)`,
}

const fixtureChecks = `table_name,field_name,description,null_check,blank_check,email_check,phone_number_check,duplicate_check,date_check,system_codes_check
Customers,Email,Contact email,1,1,1,0,1,0,0
Customers,Country,Country,0,0,0,0,1,0,0
Customers,Region,Region,0,0,0,0,0,0,1
Customers,Phone,Phone,0,0,0,1,0,0,0
Customers,Fax,Fax,1,0,0,0,0,0,0
Orders,OrderDate,Order date,0,0,0,0,0,1,0
Shippers,CompanyName,Shipper,1,0,0,0,0,0,0
Ghost,Name,Not in the database,1,0,0,0,0,0,0
`

const fixtureCodes = `table_name,field_name,valid_codes
Customers,Region,"Western Europe,British Isles"
`

func testLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func loadRules(t *testing.T, checksCSV, codesCSV string, logger *logrus.Logger) *rules.Config {
	t.Helper()
	cfg, err := rules.LoadChecks(strings.NewReader(checksCSV), checks.DefaultLimits(), logger)
	require.NoError(t, err)
	codes, err := rules.LoadSystemCodes(strings.NewReader(codesCSV), logger)
	require.NoError(t, err)
	return cfg.WithSystemCodes(codes, logger)
}

func newSQLiteChecker(t *testing.T, workers int) *DataQualityChecker {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	db := connector.NewDatabaseConnector(connector.DriverSQLite, "", "", "", ":memory:", "", logger)
	require.NoError(t, db.Connect(ctx))
	t.Cleanup(db.Disconnect)
	for _, stmt := range fixture {
		_, err := db.ExecuteStatement(ctx, stmt)
		require.NoError(t, err)
	}

	sa := analyzer.NewSchemaAnalyzer(db, logger)
	runner := NewFieldRunner(db, sa, loadRules(t, fixtureChecks, fixtureCodes, logger), nil, logger)
	return NewDataQualityChecker(runner, workers, time.Minute, logger)
}

func findingsFor(report *models.Report, table, field string) []models.Finding {
	var out []models.Finding
	for _, f := range report.Results[table] {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

func TestRunAllChecks(t *testing.T) {
	c := newSQLiteChecker(t, 4)

	report, err := c.RunAllChecks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Customers", "Orders", "Shippers"}, report.Tables)
	assert.NotContains(t, report.Results, "Ghost")

	email := findingsFor(report, "Customers", "Email")
	require.Len(t, email, 4)
	assert.Equal(t, []string{"null_check", "blank_check", "email_check", "duplicate_check"},
		[]string{email[0].CheckType, email[1].CheckType, email[2].CheckType, email[3].CheckType})

	assert.Equal(t, models.StatusFail, email[0].Status)
	assert.Equal(t, "Found 1 NULL values out of 5 total rows", email[0].Message)
	assert.Equal(t, []models.Detail{{Key: "DUMON", Value: "NULL"}}, email[0].MoreDetails)
	assert.Equal(t, "CustomerID", email[0].KeyColumn)

	assert.Equal(t, []models.Detail{{Key: "CHOPS", Value: "BLANK"}}, email[1].MoreDetails)

	assert.Equal(t, "Found 1 invalid email formats out of 3 values", email[2].Message)
	assert.Equal(t, "ANATR", email[2].MoreDetails[0].Key)

	assert.Equal(t, models.StatusPass, email[3].Status)
	assert.Equal(t, models.SeverityInfo, email[3].Severity)
	assert.Nil(t, email[3].MoreDetails)

	country := findingsFor(report, "Customers", "Country")
	require.Len(t, country, 1)
	assert.Equal(t, "Found 1 duplicate values affecting 2 records", country[0].Message)
	assert.Equal(t, models.Detail{Value: "France", Count: 2, Keys: []string{"BONAP", "DUMON"}}, country[0].MoreDetails[0])

	region := findingsFor(report, "Customers", "Region")
	require.Len(t, region, 1)
	require.Len(t, region[0].MoreDetails, 1)
	assert.Equal(t, "Narnia", region[0].MoreDetails[0].Value)

	phone := findingsFor(report, "Customers", "Phone")
	require.Len(t, phone, 1)
	assert.Equal(t, "Found 3 invalid phone number formats out of 4 values", phone[0].Message)

	fax := findingsFor(report, "Customers", "Fax")
	require.Len(t, fax, 1)
	assert.Equal(t, models.CheckTypeColumnExistence, fax[0].CheckType)
	assert.Equal(t, models.StatusFail, fax[0].Status)
	assert.Equal(t, models.SeverityError, fax[0].Severity)

	orderDate := report.Results["Orders"]
	require.Len(t, orderDate, 1)
	assert.Equal(t, "10250", orderDate[0].MoreDetails[0].Key)
	assert.Equal(t, "2016-13-45", orderDate[0].MoreDetails[0].Value)

	shippers := report.Results["Shippers"]
	require.Len(t, shippers, 1)
	assert.Equal(t, models.CheckTypeDataExistence, shippers[0].CheckType)
	assert.Equal(t, models.StatusWarning, shippers[0].Status)

	s := report.Summary
	assert.Equal(t, 10, s.TotalChecks)
	assert.Equal(t, 1, s.PassedChecks)
	assert.Equal(t, 8, s.FailedChecks)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, 10.0, s.SuccessRate)
	assert.Equal(t, 3, s.TablesChecked)
	assert.Equal(t, 4, s.CriticalIssues)
	assert.Equal(t, 4, s.MediumIssues)
	assert.Equal(t, 2, s.LowIssues)
	assert.Equal(t, 1, s.InfoChecks)
	assert.Equal(t, map[models.Severity]int{
		models.SeverityHigh:    3,
		models.SeverityError:   1,
		models.SeverityMedium:  4,
		models.SeverityInfo:    1,
		models.SeverityWarning: 1,
	}, s.BySeverity)
}

func TestRunAllChecksIsDeterministic(t *testing.T) {
	ctx := context.Background()
	serial := newSQLiteChecker(t, 1)
	parallel := newSQLiteChecker(t, 8)

	first, err := serial.RunAllChecks(ctx)
	require.NoError(t, err)
	second, err := serial.RunAllChecks(ctx)
	require.NoError(t, err)
	third, err := parallel.RunAllChecks(ctx)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	c, err := json.Marshal(third)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, string(a), string(c))
}

func TestRunChecksForTable(t *testing.T) {
	c := newSQLiteChecker(t, 2)
	ctx := context.Background()

	report, err := c.RunChecksForTable(ctx, "Orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders"}, report.Tables)
	assert.Equal(t, 1, report.Summary.TotalChecks)

	_, err = c.RunChecksForTable(ctx, "Ghost")
	assert.True(t, errors.Is(err, ErrTableNotFound))

	_, err = c.SchemaAnalyzer.DB.ExecuteStatement(ctx, "CREATE TABLE Regions (RegionID INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	_, err = c.RunChecksForTable(ctx, "Regions")
	assert.True(t, errors.Is(err, ErrTableNotConfigured))
}

func TestRunAllChecksCancelled(t *testing.T) {
	c := newSQLiteChecker(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.RunAllChecks(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTableOverviewAndDescribe(t *testing.T) {
	c := newSQLiteChecker(t, 1)
	ctx := context.Background()

	overview, err := c.TableOverview(ctx)
	require.NoError(t, err)
	require.Len(t, overview, 3)
	assert.Equal(t, "Customers", overview[0].Name)
	assert.Equal(t, "Customers", overview[0].DisplayName)
	assert.Equal(t, int64(5), overview[0].RowCount)
	assert.True(t, overview[0].HasConfig)
	assert.Equal(t, 5, overview[0].ConfiguredFields)
	assert.Equal(t, []string{"null_check", "blank_check", "email_check", "duplicate_check"},
		overview[0].ConfiguredChecks["Email"])

	info, err := c.Describe(ctx, "Orders")
	require.NoError(t, err)
	assert.Equal(t, "OrderID", info.IdentifyingKey)
	assert.Len(t, info.Columns, 4)
	assert.Equal(t, []string{"date_check"}, info.ConfiguredChecks["OrderDate"])

	_, err = c.Describe(ctx, "Ghost")
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Customers", DisplayName("Customers"))
	assert.Equal(t, "Order Details", DisplayName("order_details"))
	assert.Equal(t, "Customerdemographics", DisplayName("CustomerDemographics"))
}

func TestStatus(t *testing.T) {
	c := newSQLiteChecker(t, 1)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "sqlite3", status.Driver)
	assert.Equal(t, []string{"Customers", "Orders", "Shippers"}, status.Tables)
	assert.Equal(t, int64(3), status.RowCounts["Orders"])
	assert.Equal(t, []string{"Ghost"}, status.MissingTables)
	assert.Equal(t, 8, status.FieldConfigs)
	assert.True(t, status.SystemCodesConfigured)
}
