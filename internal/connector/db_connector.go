package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Supported database drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// DatabaseConnector handles database connection and query execution
type DatabaseConnector struct {
	Driver   string
	Host     string
	User     string
	Password string
	Database string
	Port     string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(driver, host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if driver == "" {
		driver = getEnvOrDefault("DQ_DRIVER", DriverMySQL)
	}
	if host == "" {
		host = getEnvOrDefault("MYSQL_HOST", "localhost")
	}
	if user == "" {
		user = getEnvOrDefault("MYSQL_USER", "root")
	}
	if password == "" {
		password = getEnvOrDefault("MYSQL_PASSWORD", "")
	}
	if database == "" {
		if driver == DriverSQLite {
			database = getEnvOrDefault("DQ_SQLITE_PATH", "")
		} else {
			database = getEnvOrDefault("MYSQL_DATABASE", "")
		}
	}
	if port == "" {
		port = getEnvOrDefault("MYSQL_PORT", "3306")
	}

	return &DatabaseConnector{
		Driver:   driver,
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Logger:   logger,
	}
}

// DSN builds the data source name for the configured driver
func (dc *DatabaseConnector) DSN() (string, error) {
	switch dc.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", dc.User, dc.Password, dc.Host, dc.Port, dc.Database), nil
	case DriverSQLite:
		return dc.Database, nil
	default:
		return "", errors.Errorf("unsupported driver: %s", dc.Driver)
	}
}

// Connect establishes a connection to the database
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	if dc.Database == "" {
		return errors.New("database name must be provided either as an argument or as MYSQL_DATABASE (DQ_SQLITE_PATH for sqlite3) environment variable")
	}

	dsn, err := dc.DSN()
	if err != nil {
		return err
	}

	db, err := sql.Open(dc.Driver, dsn)
	if err != nil {
		dc.Logger.Errorf("Error opening %s database: %v", dc.Driver, err)
		return errors.Wrapf(err, "open %s database", dc.Driver)
	}

	// Every connection to :memory: is a separate database
	if dc.Driver == DriverSQLite && strings.Contains(dc.Database, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Driver, err)
		db.Close()
		return errors.Wrapf(err, "ping %s database", dc.Driver)
	}

	dc.DB = db
	dc.Logger.Infof("Connected to %s database: %s", dc.Driver, dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Infof("%s connection closed", dc.Driver)
		}
	}
}

// QuoteIdentifier quotes a table or column name for use in a query.
// Both MySQL and SQLite accept backtick quoting.
func (dc *DatabaseConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// TextExpr returns an expression that compares a column as text, so that
// numeric columns are not coerced when compared against an empty string
func (dc *DatabaseConnector) TextExpr(column string) string {
	if dc.Driver == DriverSQLite {
		return fmt.Sprintf("CAST(%s AS TEXT)", dc.QuoteIdentifier(column))
	}
	return fmt.Sprintf("CAST(%s AS CHAR)", dc.QuoteIdentifier(column))
}

// ExecuteQuery executes a SQL query and returns the results
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return nil, err
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Debugf("Error executing query: %v", err)
		return nil, errors.Wrap(err, "execute query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read result columns")
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}

		// Catalog queries return upper-case column names on some servers
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[strings.ToLower(col)] = val
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func (dc *DatabaseConnector) ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return 0, err
	}

	result, err := dc.DB.ExecContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Debugf("Statement failed: %v", err)
		return 0, errors.Wrap(err, "execute statement")
	}
	n, err := result.RowsAffected()
	return n, errors.Wrap(err, "rows affected")
}

// ExecuteMany executes a SQL statement with multiple parameter sets in one transaction
func (dc *DatabaseConnector) ExecuteMany(ctx context.Context, query string, paramsList [][]interface{}) (int64, error) {
	if err := dc.ensureConnected(ctx); err != nil {
		return 0, err
	}

	tx, err := dc.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	// No-op once committed
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		dc.Logger.Debugf("Prepare failed for %q: %v", query, err)
		return 0, errors.Wrap(err, "prepare statement")
	}
	defer stmt.Close()

	var total int64
	for i, params := range paramsList {
		result, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			dc.Logger.Debugf("Row %d of %d rejected: %v", i+1, len(paramsList), err)
			return 0, errors.Wrapf(err, "execute row %d", i+1)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "rows affected")
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit transaction")
	}
	return total, nil
}

func (dc *DatabaseConnector) ensureConnected(ctx context.Context) error {
	if dc.DB != nil {
		return nil
	}
	return dc.Connect(ctx)
}

// Stringify renders a scanned column value the way checks compare it
func Stringify(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AsInt64 converts a scanned numeric value (as returned by either driver) to int64
func AsInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q as integer", v)
		}
		return n, nil
	case nil:
		return 0, errors.New("unexpected NULL numeric value")
	default:
		return 0, errors.Errorf("unexpected numeric type %T", val)
	}
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
