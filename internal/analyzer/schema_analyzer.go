package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/pkg/models"
	"github.com/yourbasic/graph"
)

// tableMeta caches the column layout of one table
type tableMeta struct {
	columns []models.Column
	key     string
}

// SchemaAnalyzer introspects the database catalog: tables, columns, primary
// keys and foreign keys. Column metadata is cached per table and the analyzer
// is safe for concurrent use once AnalyzeSchema has returned.
type SchemaAnalyzer struct {
	DB              *connector.DatabaseConnector
	Tables          []string
	ForeignKeys     map[string][]models.ForeignKey
	DependencyGraph *graph.Mutable
	TableIndexMap   map[string]int
	IndexTableMap   map[int]string
	Logger          *logrus.Logger

	mu    sync.Mutex
	cache map[string]*tableMeta
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(db *connector.DatabaseConnector, logger *logrus.Logger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		DB:            db,
		ForeignKeys:   make(map[string][]models.ForeignKey),
		TableIndexMap: make(map[string]int),
		IndexTableMap: make(map[int]string),
		Logger:        logger,
		cache:         make(map[string]*tableMeta),
	}
}

// ListTables returns the base tables of the database ordered by name.
// SQLite internal tables are left out.
func (sa *SchemaAnalyzer) ListTables(ctx context.Context) ([]string, error) {
	var query string
	var params []interface{}
	if sa.DB.Driver == connector.DriverSQLite {
		query = `
			SELECT name AS table_name
			FROM sqlite_master
			WHERE type = 'table'
			AND name NOT LIKE 'sqlite_%'
			ORDER BY name
		`
	} else {
		query = `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = ?
			AND table_type = 'BASE TABLE'
			ORDER BY table_name
		`
		params = append(params, sa.DB.Database)
	}

	rows, err := sa.DB.ExecuteQuery(ctx, query, params...)
	if err != nil {
		return nil, errors.WithMessage(err, "list tables")
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, connector.Stringify(row["table_name"]))
	}
	return tables, nil
}

// TableExists reports whether a table is present in the catalog.
// A rejected catalog query counts as "not present".
func (sa *SchemaAnalyzer) TableExists(ctx context.Context, table string) bool {
	var query string
	var params []interface{}
	if sa.DB.Driver == connector.DriverSQLite {
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?"
		params = []interface{}{table}
	} else {
		query = `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = ?
			AND table_name = ?
		`
		params = []interface{}{sa.DB.Database, table}
	}

	rows, err := sa.DB.ExecuteQuery(ctx, query, params...)
	if err != nil {
		sa.Logger.Warningf("Could not check existence of table %s: %v", table, err)
		return false
	}
	return len(rows) > 0
}

// ColumnExists reports whether a column is present in a table.
// Any backend error counts as "not present".
func (sa *SchemaAnalyzer) ColumnExists(ctx context.Context, table, column string) bool {
	columns, err := sa.Columns(ctx, table)
	if err != nil {
		sa.Logger.Warningf("Could not read columns of table %s: %v", table, err)
		return false
	}
	for _, col := range columns {
		if col.Name == column {
			return true
		}
	}
	return false
}

// IdentifyingKey returns the column used to label records of a table: the
// declared primary key, or the first column when no key is declared
func (sa *SchemaAnalyzer) IdentifyingKey(ctx context.Context, table string) (string, error) {
	meta, err := sa.meta(ctx, table)
	if err != nil {
		return "", err
	}
	if meta.key == "" {
		return "", errors.Errorf("table %s has no columns", table)
	}
	return meta.key, nil
}

// Columns returns the columns of a table in declaration order
func (sa *SchemaAnalyzer) Columns(ctx context.Context, table string) ([]models.Column, error) {
	meta, err := sa.meta(ctx, table)
	if err != nil {
		return nil, err
	}
	return meta.columns, nil
}

// RowCount returns the number of rows in a table
func (sa *SchemaAnalyzer) RowCount(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", sa.DB.QuoteIdentifier(table))
	rows, err := sa.DB.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, errors.WithMessagef(err, "count rows of %s", table)
	}
	if len(rows) == 0 {
		return 0, errors.Errorf("no result returned for count query on table %s", table)
	}
	return connector.AsInt64(rows[0]["count"])
}

// Describe collects the catalog information of one table
func (sa *SchemaAnalyzer) Describe(ctx context.Context, table string) (*models.TableInfo, error) {
	if !sa.TableExists(ctx, table) {
		return nil, errors.Errorf("table %s not found", table)
	}

	meta, err := sa.meta(ctx, table)
	if err != nil {
		return nil, err
	}

	count, err := sa.RowCount(ctx, table)
	if err != nil {
		return nil, err
	}

	return &models.TableInfo{
		Name:           table,
		RowCount:       count,
		Columns:        meta.columns,
		IdentifyingKey: meta.key,
	}, nil
}

// meta loads (or returns the cached) column layout of a table
func (sa *SchemaAnalyzer) meta(ctx context.Context, table string) (*tableMeta, error) {
	sa.mu.Lock()
	cached, ok := sa.cache[table]
	sa.mu.Unlock()
	if ok {
		return cached, nil
	}

	var meta *tableMeta
	var err error
	if sa.DB.Driver == connector.DriverSQLite {
		meta, err = sa.loadSQLiteColumns(ctx, table)
	} else {
		meta, err = sa.loadMySQLColumns(ctx, table)
	}
	if err != nil {
		return nil, err
	}

	// Missing tables are not cached so a later lookup sees them once created
	if len(meta.columns) > 0 {
		sa.mu.Lock()
		sa.cache[table] = meta
		sa.mu.Unlock()
	}
	return meta, nil
}

func (sa *SchemaAnalyzer) loadMySQLColumns(ctx context.Context, table string) (*tableMeta, error) {
	columnsQuery := `
		SELECT
			column_name,
			data_type,
			column_type,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_nullable,
			column_key,
			extra,
			column_comment,
			column_default
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := sa.DB.ExecuteQuery(ctx, columnsQuery, sa.DB.Database, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "retrieve columns for table %s", table)
	}

	meta := &tableMeta{}
	for _, row := range rows {
		column := models.Column{
			Name:             connector.Stringify(row["column_name"]),
			DataType:         connector.Stringify(row["data_type"]),
			ColumnType:       connector.Stringify(row["column_type"]),
			CharMaxLength:    optionalInt(row["character_maximum_length"]),
			NumericPrecision: optionalInt(row["numeric_precision"]),
			NumericScale:     optionalInt(row["numeric_scale"]),
			IsNullable:       connector.Stringify(row["is_nullable"]) == "YES",
			ColumnKey:        connector.Stringify(row["column_key"]),
			Extra:            connector.Stringify(row["extra"]),
			ColumnComment:    connector.Stringify(row["column_comment"]),
			DefaultValue:     optionalString(row["column_default"]),
		}
		if column.IsPrimaryKey() && meta.key == "" {
			meta.key = column.Name
		}
		meta.columns = append(meta.columns, column)
	}

	if meta.key == "" && len(meta.columns) > 0 {
		meta.key = meta.columns[0].Name
	}
	return meta, nil
}

func (sa *SchemaAnalyzer) loadSQLiteColumns(ctx context.Context, table string) (*tableMeta, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", sa.DB.QuoteIdentifier(table))
	rows, err := sa.DB.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, errors.WithMessagef(err, "retrieve columns for table %s", table)
	}

	meta := &tableMeta{}
	keyColumns := 0
	for _, row := range rows {
		notNull, _ := connector.AsInt64(row["notnull"])
		pk, _ := connector.AsInt64(row["pk"])
		if pk > 0 {
			keyColumns++
		}
		declared := connector.Stringify(row["type"])

		column := models.Column{
			Name:          connector.Stringify(row["name"]),
			DataType:      sqliteBaseType(declared),
			ColumnType:    declared,
			CharMaxLength: sqliteCharLength(declared),
			IsNullable:    notNull == 0 && pk == 0,
			DefaultValue:  optionalString(row["dflt_value"]),
		}
		if pk > 0 {
			column.ColumnKey = "PRI"
		}
		// pk holds the position within the key, 1 is the leading column
		if pk == 1 {
			meta.key = column.Name
		}
		meta.columns = append(meta.columns, column)
	}

	// A lone INTEGER PRIMARY KEY aliases the rowid and is assigned by sqlite
	if keyColumns == 1 {
		for i := range meta.columns {
			if meta.columns[i].IsPrimaryKey() && meta.columns[i].DataType == "integer" {
				meta.columns[i].Extra = "auto_increment"
			}
		}
	}

	if meta.key == "" && len(meta.columns) > 0 {
		meta.key = meta.columns[0].Name
	}
	return meta, nil
}

// AnalyzeSchema loads the tables and foreign keys of the database and builds
// the dependency graph used to order inserts
func (sa *SchemaAnalyzer) AnalyzeSchema(ctx context.Context) error {
	tables, err := sa.ListTables(ctx)
	if err != nil {
		sa.Logger.Errorf("Error getting tables: %v", err)
		return err
	}
	sa.Tables = tables

	// Warm the column cache
	for _, table := range sa.Tables {
		if _, err := sa.Columns(ctx, table); err != nil {
			sa.Logger.Warningf("Failed to retrieve columns for table %s: %v", table, err)
		}
	}

	var fks []models.ForeignKey
	if sa.DB.Driver == connector.DriverSQLite {
		fks, err = sa.loadSQLiteForeignKeys(ctx)
	} else {
		fks, err = sa.loadMySQLForeignKeys(ctx)
	}
	if err != nil {
		sa.Logger.Errorf("Error getting foreign keys: %v", err)
		return err
	}

	sa.buildDependencyGraph(fks)
	return nil
}

func (sa *SchemaAnalyzer) loadMySQLForeignKeys(ctx context.Context) ([]models.ForeignKey, error) {
	fkQuery := `
		SELECT
			table_name,
			column_name,
			referenced_table_name,
			referenced_column_name,
			constraint_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		AND referenced_table_name IS NOT NULL
		ORDER BY table_name, column_name
	`
	rows, err := sa.DB.ExecuteQuery(ctx, fkQuery, sa.DB.Database)
	if err != nil {
		return nil, errors.WithMessage(err, "retrieve foreign keys")
	}

	var fks []models.ForeignKey
	for _, row := range rows {
		fks = append(fks, models.ForeignKey{
			Table:            connector.Stringify(row["table_name"]),
			Column:           connector.Stringify(row["column_name"]),
			ReferencedTable:  connector.Stringify(row["referenced_table_name"]),
			ReferencedColumn: connector.Stringify(row["referenced_column_name"]),
			ConstraintName:   connector.Stringify(row["constraint_name"]),
		})
	}
	return fks, nil
}

func (sa *SchemaAnalyzer) loadSQLiteForeignKeys(ctx context.Context) ([]models.ForeignKey, error) {
	var fks []models.ForeignKey
	for _, table := range sa.Tables {
		query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", sa.DB.QuoteIdentifier(table))
		rows, err := sa.DB.ExecuteQuery(ctx, query)
		if err != nil {
			return nil, errors.WithMessagef(err, "retrieve foreign keys for table %s", table)
		}
		for _, row := range rows {
			id, _ := connector.AsInt64(row["id"])
			fks = append(fks, models.ForeignKey{
				Table:            table,
				Column:           connector.Stringify(row["from"]),
				ReferencedTable:  connector.Stringify(row["table"]),
				ReferencedColumn: connector.Stringify(row["to"]),
				ConstraintName:   fmt.Sprintf("%s_fk_%d", table, id),
			})
		}
	}
	return fks, nil
}

// buildDependencyGraph records foreign keys and adds an edge from every
// referenced table to the table depending on it
func (sa *SchemaAnalyzer) buildDependencyGraph(fks []models.ForeignKey) {
	sa.ForeignKeys = make(map[string][]models.ForeignKey)
	sa.TableIndexMap = make(map[string]int)
	sa.IndexTableMap = make(map[int]string)

	for i, table := range sa.Tables {
		sa.TableIndexMap[table] = i
		sa.IndexTableMap[i] = table
	}
	sa.DependencyGraph = graph.New(len(sa.Tables))

	for _, fk := range fks {
		for _, col := range sa.cachedColumns(fk.Table) {
			if col.Name == fk.Column {
				fk.IsNullable = col.IsNullable
				break
			}
		}
		sa.ForeignKeys[fk.Table] = append(sa.ForeignKeys[fk.Table], fk)

		srcIdx, ok := sa.TableIndexMap[fk.ReferencedTable]
		if !ok {
			continue
		}
		destIdx, ok := sa.TableIndexMap[fk.Table]
		if !ok || srcIdx == destIdx {
			continue
		}
		sa.DependencyGraph.Add(srcIdx, destIdx)
	}
}

func (sa *SchemaAnalyzer) cachedColumns(table string) []models.Column {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	if meta, ok := sa.cache[table]; ok {
		return meta.columns
	}
	return nil
}

// GetCircularTables returns tables involved in circular dependencies
func (sa *SchemaAnalyzer) GetCircularTables() map[string]bool {
	circularTables := make(map[string]bool)
	if sa.DependencyGraph == nil {
		return circularTables
	}

	for _, component := range graph.StrongComponents(sa.DependencyGraph) {
		if len(component) < 2 {
			continue
		}
		for _, idx := range component {
			circularTables[sa.IndexTableMap[idx]] = true
		}
	}
	return circularTables
}

// GetTableInsertionOrder orders tables so that referenced tables come before
// the tables depending on them. Tables in circular dependencies go last,
// sorted by name.
func (sa *SchemaAnalyzer) GetTableInsertionOrder() ([]string, map[string]bool) {
	circularTables := sa.GetCircularTables()
	if sa.DependencyGraph == nil {
		return append([]string(nil), sa.Tables...), circularTables
	}

	// Drop edges touching a cycle so the remainder is acyclic
	acyclic := graph.New(len(sa.Tables))
	for v := 0; v < sa.DependencyGraph.Order(); v++ {
		sa.DependencyGraph.Visit(v, func(w int, _ int64) bool {
			if !circularTables[sa.IndexTableMap[v]] && !circularTables[sa.IndexTableMap[w]] {
				acyclic.Add(v, w)
			}
			return false
		})
	}

	var orderedTables []string
	order, ok := graph.TopSort(acyclic)
	if !ok {
		sa.Logger.Warning("Dependency graph still has cycles, falling back to name order")
		order = order[:0]
		for i := range sa.Tables {
			order = append(order, i)
		}
	}
	for _, idx := range order {
		table := sa.IndexTableMap[idx]
		if !circularTables[table] {
			orderedTables = append(orderedTables, table)
		}
	}

	var circularTablesList []string
	for table := range circularTables {
		circularTablesList = append(circularTablesList, table)
	}
	sort.Strings(circularTablesList)

	return append(orderedTables, circularTablesList...), circularTables
}

// sqliteBaseType strips length/precision from a declared sqlite type
func sqliteBaseType(declared string) string {
	base := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(base, "("); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	return base
}

// sqliteCharLength returns the declared width of a character type such as
// VARCHAR(40), or nil when none is declared
func sqliteCharLength(declared string) *int64 {
	base := sqliteBaseType(declared)
	if !strings.Contains(base, "char") {
		return nil
	}
	open := strings.Index(declared, "(")
	end := strings.Index(declared, ")")
	if open < 0 || end <= open {
		return nil
	}
	return optionalInt(strings.TrimSpace(declared[open+1 : end]))
}

func optionalInt(val interface{}) *int64 {
	if val == nil {
		return nil
	}
	n, err := strconv.ParseInt(connector.Stringify(val), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func optionalString(val interface{}) *string {
	if val == nil {
		return nil
	}
	s := connector.Stringify(val)
	return &s
}
