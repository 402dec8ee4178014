package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/sql-quality-checker/internal/checks"
)

func testLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func warnings(hook *test.Hook) []string {
	var msgs []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

const checksCSV = `table_name,field_name,description,null_check,email_check,phone_check,duplicate_check,system_codes_check
Customers,Email,"Contact email, primary",1,1,0,1,0
Customers,Phone,Phone number,1,0,1,0,0
Orders,ShipVia,Shipper,yes,0,0,0,1
Customers,Email,Duplicate row,0,0,0,0,0
,Orphan,Missing table,1,0,0,0,0
Orders,Freight,Too short,1
`

func TestLoadChecks(t *testing.T) {
	logger, hook := testLogger()
	cfg, err := LoadChecks(strings.NewReader(checksCSV), checks.DefaultLimits(), logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"Customers", "Orders"}, cfg.Tables())
	assert.Equal(t, 3, cfg.FieldCount())

	email, ok := cfg.Lookup("Customers", "Email")
	require.True(t, ok)
	assert.Equal(t, "Contact email, primary", email.Description)
	assert.Equal(t, checks.NewSet(checks.NullCheck, checks.EmailCheck, checks.DuplicateCheck), email.Checks)
	assert.Equal(t, checks.DefaultLimits(), email.Limits)

	phone, _ := cfg.Lookup("Customers", "Phone")
	assert.True(t, phone.Checks.Has(checks.PhoneNumberCheck))

	shipVia, _ := cfg.Lookup("Orders", "ShipVia")
	assert.Equal(t, checks.NewSet(checks.SystemCodesCheck), shipVia.Checks)

	fields := cfg.Fields("Customers")
	require.Len(t, fields, 2)
	assert.Equal(t, "Email", fields[0].Field)
	assert.Equal(t, "Phone", fields[1].Field)

	_, ok = cfg.Lookup("Orders", "Freight")
	assert.False(t, ok)

	// non-numeric flag, duplicate row, missing table, wrong column count
	assert.Len(t, warnings(hook), 4)
}

func TestLoadChecksLimitOverrides(t *testing.T) {
	logger, hook := testLogger()
	data := "table_name,field_name,max_value_check,max_length,min_length,max_row_count\n" +
		"Products,ProductName,1,40,,500\n" +
		"Products,QuantityPerUnit,1,abc,2,\n"

	cfg, err := LoadChecks(strings.NewReader(data), checks.DefaultLimits(), logger)
	require.NoError(t, err)

	name, _ := cfg.Lookup("Products", "ProductName")
	assert.Equal(t, checks.Limits{MaxLength: 40, MinLength: 1, MaxRowCount: 500}, name.Limits)

	qpu, _ := cfg.Lookup("Products", "QuantityPerUnit")
	assert.Equal(t, checks.Limits{MaxLength: 20000, MinLength: 2, MaxRowCount: 20000}, qpu.Limits)
	assert.Len(t, warnings(hook), 1)
}

func TestLoadChecksHeaderErrors(t *testing.T) {
	logger, _ := testLogger()

	_, err := LoadChecks(strings.NewReader(""), checks.DefaultLimits(), logger)
	assert.Error(t, err)

	_, err = LoadChecks(strings.NewReader("table,field_name,null_check\n"), checks.DefaultLimits(), logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table_name")
}

func TestLoadChecksUnknownColumn(t *testing.T) {
	logger, hook := testLogger()
	data := "table_name,field_name,spelling_check,null_check\nCustomers,City,1,1\n"

	cfg, err := LoadChecks(strings.NewReader(data), checks.DefaultLimits(), logger)
	require.NoError(t, err)

	city, _ := cfg.Lookup("Customers", "City")
	assert.Equal(t, checks.NewSet(checks.NullCheck), city.Checks)
	assert.Len(t, warnings(hook), 1)
}

func TestLoadSystemCodes(t *testing.T) {
	logger, hook := testLogger()
	data := `table_name,field_name,valid_codes
Employees,TitleOfCourtesy,"Ms., Mr.,Dr.,,Mrs., Mr."
Orders,ShipVia,"1,2,3"
Orders,ShipVia,"4"
Suppliers,Region,
`
	codes, err := LoadSystemCodes(strings.NewReader(data), logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"Ms.", "Mr.", "Dr.", "Mrs."}, codes.Get("Employees", "TitleOfCourtesy"))
	assert.Equal(t, []string{"1", "2", "3"}, codes.Get("Orders", "ShipVia"))
	assert.Empty(t, codes.Get("Suppliers", "Region"))
	assert.Empty(t, codes.Get("Products", "Discontinued"))
	assert.Len(t, warnings(hook), 1)
}

func TestParseCodes(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, ParseCodes(" A ,B,, A"))
	assert.Nil(t, ParseCodes(" , "))
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	checksPath := filepath.Join(dir, "checks.csv")
	codesPath := filepath.Join(dir, "codes.csv")
	require.NoError(t, os.WriteFile(checksPath, []byte(
		"table_name,field_name,system_codes_check\nOrders,ShipVia,1\nOrders,ShipRegion,1\n"), 0o644))
	require.NoError(t, os.WriteFile(codesPath, []byte(
		"table_name,field_name,valid_codes\nOrders,ShipVia,\"1,2,3\"\n"), 0o644))

	logger, hook := testLogger()
	cfg, err := Load(checksPath, codesPath, checks.DefaultLimits(), logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, cfg.ValidCodes("Orders", "ShipVia"))
	assert.Empty(t, cfg.ValidCodes("Orders", "ShipRegion"))

	// ShipRegion enables system_codes_check without an allow-list
	require.Len(t, warnings(hook), 1)
	assert.Equal(t, "ShipRegion", hook.LastEntry().Data["field"])

	_, err = Load(filepath.Join(dir, "missing.csv"), codesPath, checks.DefaultLimits(), logger)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	logger, hook := testLogger()
	cfg, err := DefaultConfig(checks.DefaultLimits(), logger)
	require.NoError(t, err)

	assert.True(t, cfg.HasTable("Customers"))
	assert.False(t, cfg.HasTable("sqlite_sequence"))
	assert.Greater(t, cfg.FieldCount(), 10)
	assert.NotEmpty(t, cfg.ValidCodes("Employees", "TitleOfCourtesy"))
	assert.Empty(t, warnings(hook))
}
