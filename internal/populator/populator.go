package populator

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sql-quality-checker/internal/analyzer"
	"github.com/vitebski/sql-quality-checker/internal/connector"
	"github.com/vitebski/sql-quality-checker/internal/generator"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

const (
	batchSize = 100
	// referenceSample caps the values read from a referenced column
	referenceSample = 1000
)

// DatabasePopulator seeds database tables with generated rows so that a
// quality run has data to inspect. It is the only component that writes.
type DatabasePopulator struct {
	DB             *connector.DatabaseConnector
	SchemaAnalyzer *analyzer.SchemaAnalyzer
	DataGenerator  *generator.DataGenerator
	NumRecords     int
	MaxRetries     int
	Logger         *logrus.Logger

	references map[string][]interface{}
}

// NewDatabasePopulator creates a new database populator
func NewDatabasePopulator(
	db *connector.DatabaseConnector,
	schemaAnalyzer *analyzer.SchemaAnalyzer,
	dataGenerator *generator.DataGenerator,
	numRecords int,
	maxRetries int,
	logger *logrus.Logger,
) *DatabasePopulator {
	return &DatabasePopulator{
		DB:             db,
		SchemaAnalyzer: schemaAnalyzer,
		DataGenerator:  dataGenerator,
		NumRecords:     numRecords,
		MaxRetries:     maxRetries,
		Logger:         logger,
		references:     make(map[string][]interface{}),
	}
}

// PopulateDatabase inserts NumRecords rows into every table, referenced
// tables first. Tables in a reference cycle are inserted with their cyclic
// references left NULL and linked once all of them hold rows.
func (dp *DatabasePopulator) PopulateDatabase(ctx context.Context) (models.PopulationResult, error) {
	var result models.PopulationResult

	if dp.SchemaAnalyzer.DependencyGraph == nil {
		if err := dp.SchemaAnalyzer.AnalyzeSchema(ctx); err != nil {
			return result, errors.WithMessage(err, "analyze schema")
		}
	}
	injectedBefore := dp.DataGenerator.InjectedTotal()

	orderedTables, circularTables := dp.SchemaAnalyzer.GetTableInsertionOrder()
	for _, table := range orderedTables {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "seeding interrupted")
		}

		inserted, err := dp.populateTable(ctx, table, circularTables)
		if err != nil {
			dp.Logger.WithField("table", table).Errorf("Error populating table: %v", err)
			result.FailedTables = append(result.FailedTables, table)
			continue
		}
		result.SuccessfulTables = append(result.SuccessfulTables, table)
		result.TotalRecords += inserted
	}

	for _, table := range orderedTables {
		if !circularTables[table] || slices.Contains(result.FailedTables, table) {
			continue
		}
		if err := dp.linkCircularReferences(ctx, table, circularTables); err != nil {
			dp.Logger.WithField("table", table).Errorf("Error linking circular references: %v", err)
		}
	}

	result.InjectedDefects = dp.DataGenerator.InjectedTotal() - injectedBefore
	return result, nil
}

// populateTable inserts NumRecords rows into one table in batches and
// returns the number of rows written
func (dp *DatabasePopulator) populateTable(ctx context.Context, table string, circularTables map[string]bool) (int, error) {
	dp.Logger.Infof("Populating table: %s", table)

	columns, err := dp.SchemaAnalyzer.Columns(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, errors.Errorf("no columns found for table %s", table)
	}

	var insertable []models.Column
	for _, column := range columns {
		if strings.Contains(strings.ToLower(column.Extra), "auto_increment") {
			continue
		}
		insertable = append(insertable, column)
	}
	if len(insertable) == 0 {
		dp.Logger.Warningf("No insertable columns found for table: %s", table)
		return 0, nil
	}

	foreignKeys := make(map[string]models.ForeignKey)
	for _, fk := range dp.SchemaAnalyzer.ForeignKeys[table] {
		foreignKeys[fk.Column] = fk
	}

	names := make([]string, len(insertable))
	placeholders := make([]string, len(insertable))
	for i, column := range insertable {
		names[i] = dp.DB.QuoteIdentifier(column.Name)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		dp.DB.QuoteIdentifier(table),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)

	inserted := 0
	for inserted < dp.NumRecords {
		size := dp.NumRecords - inserted
		if size > batchSize {
			size = batchSize
		}

		var lastErr error
		for attempt := 0; attempt <= dp.MaxRetries; attempt++ {
			var batch [][]interface{}
			batch, lastErr = dp.generateBatch(ctx, table, insertable, foreignKeys, circularTables, size)
			if lastErr != nil {
				return inserted, lastErr
			}
			if _, lastErr = dp.DB.ExecuteMany(ctx, insertSQL, batch); lastErr == nil {
				break
			}
			if ctx.Err() != nil {
				return inserted, lastErr
			}
			dp.Logger.Warningf("Insert into %s failed (attempt %d of %d): %v", table, attempt+1, dp.MaxRetries+1, lastErr)
		}
		if lastErr != nil {
			return inserted, errors.WithMessagef(lastErr, "insert into %s", table)
		}
		inserted += size
	}

	dp.forgetReferences(table)
	dp.Logger.Infof("Successfully populated table %s with %d records", table, inserted)
	return inserted, nil
}

// generateBatch builds the parameter rows for one insert batch
func (dp *DatabasePopulator) generateBatch(
	ctx context.Context,
	table string,
	columns []models.Column,
	foreignKeys map[string]models.ForeignKey,
	circularTables map[string]bool,
	size int,
) ([][]interface{}, error) {
	batch := make([][]interface{}, 0, size)
	for i := 0; i < size; i++ {
		params := make([]interface{}, len(columns))
		for j, column := range columns {
			fk, isFK := foreignKeys[column.Name]
			if !isFK {
				params[j] = dp.DataGenerator.GenerateData(table, column)
				continue
			}

			// Cyclic references are filled in by linkCircularReferences
			if circularTables[table] && circularTables[fk.ReferencedTable] && column.IsNullable {
				params[j] = nil
				continue
			}

			value, err := dp.randomReference(ctx, fk)
			if err != nil {
				return nil, err
			}
			if value == nil && !column.IsNullable {
				return nil, errors.Errorf("no value available for NOT NULL foreign key %s.%s referencing %s.%s",
					table, column.Name, fk.ReferencedTable, fk.ReferencedColumn)
			}
			params[j] = value
		}
		batch = append(batch, params)
	}
	return batch, nil
}

// linkCircularReferences points the NULL cyclic references of a table at
// rows of the referenced table
func (dp *DatabasePopulator) linkCircularReferences(ctx context.Context, table string, circularTables map[string]bool) error {
	key, err := dp.SchemaAnalyzer.IdentifyingKey(ctx, table)
	if err != nil {
		return err
	}

	for _, fk := range dp.SchemaAnalyzer.ForeignKeys[table] {
		if !circularTables[fk.ReferencedTable] || !fk.IsNullable {
			continue
		}

		query := fmt.Sprintf("SELECT %s AS row_key FROM %s WHERE %s IS NULL",
			dp.DB.QuoteIdentifier(key), dp.DB.QuoteIdentifier(table), dp.DB.QuoteIdentifier(fk.Column))
		rows, err := dp.DB.ExecuteQuery(ctx, query)
		if err != nil {
			return err
		}

		var paramsList [][]interface{}
		for _, row := range rows {
			value, err := dp.randomReference(ctx, fk)
			if err != nil {
				return err
			}
			if value == nil {
				dp.Logger.Warningf("Referenced table %s has no data, skipping update for %s.%s",
					fk.ReferencedTable, table, fk.Column)
				break
			}
			paramsList = append(paramsList, []interface{}{value, row["row_key"]})
		}
		if len(paramsList) == 0 {
			continue
		}

		updateSQL := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
			dp.DB.QuoteIdentifier(table), dp.DB.QuoteIdentifier(fk.Column), dp.DB.QuoteIdentifier(key))
		if _, err := dp.DB.ExecuteMany(ctx, updateSQL, paramsList); err != nil {
			return errors.WithMessagef(err, "link %s.%s", table, fk.Column)
		}
		dp.Logger.Infof("Linked %d rows of %s.%s to %s", len(paramsList), table, fk.Column, fk.ReferencedTable)
	}
	return nil
}

// randomReference picks an existing value of the referenced column, or nil
// when the referenced table is empty
func (dp *DatabasePopulator) randomReference(ctx context.Context, fk models.ForeignKey) (interface{}, error) {
	cacheKey := fk.ReferencedTable + "." + fk.ReferencedColumn
	values, ok := dp.references[cacheKey]
	if !ok {
		query := fmt.Sprintf("SELECT DISTINCT %s AS value FROM %s WHERE %s IS NOT NULL LIMIT %d",
			dp.DB.QuoteIdentifier(fk.ReferencedColumn), dp.DB.QuoteIdentifier(fk.ReferencedTable),
			dp.DB.QuoteIdentifier(fk.ReferencedColumn), referenceSample)
		rows, err := dp.DB.ExecuteQuery(ctx, query)
		if err != nil {
			return nil, errors.WithMessagef(err, "read values of %s", cacheKey)
		}
		for _, row := range rows {
			values = append(values, row["value"])
		}
		dp.references[cacheKey] = values
	}

	if len(values) == 0 {
		return nil, nil
	}
	return values[rand.Intn(len(values))], nil
}

// forgetReferences drops cached values of a table after rows were added
func (dp *DatabasePopulator) forgetReferences(table string) {
	for key := range dp.references {
		if strings.HasPrefix(key, table+".") {
			delete(dp.references, key)
		}
	}
}
