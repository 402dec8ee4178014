package checker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vitebski/sql-quality-checker/internal/checks"
	"github.com/vitebski/sql-quality-checker/internal/connector"
)

// fieldData reads the records of one field on demand. Each scan runs at most
// once per field evaluation; it is owned by a single worker.
type fieldData struct {
	db     *connector.DatabaseConnector
	table  string
	column string
	key    string

	nullKeys  []string
	blankKeys []string
	values    []checks.Value
	groups    []checks.Group

	loaded map[string]bool
}

func newFieldData(db *connector.DatabaseConnector, table, column, key string) *fieldData {
	return &fieldData{
		db:     db,
		table:  table,
		column: column,
		key:    key,
		loaded: make(map[string]bool),
	}
}

func (d *fieldData) selectKeys(ctx context.Context, where string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT %s AS row_key FROM %s WHERE %s ORDER BY %s",
		d.db.QuoteIdentifier(d.key),
		d.db.QuoteIdentifier(d.table),
		where,
		d.db.QuoteIdentifier(d.key),
	)
	rows, err := d.db.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, connector.Stringify(row["row_key"]))
	}
	return keys, nil
}

func (d *fieldData) NullKeys(ctx context.Context) ([]string, error) {
	if d.loaded["null"] {
		return d.nullKeys, nil
	}
	keys, err := d.selectKeys(ctx, d.db.QuoteIdentifier(d.column)+" IS NULL")
	if err != nil {
		return nil, errors.WithMessage(err, "failed to scan NULL values")
	}
	d.nullKeys, d.loaded["null"] = keys, true
	return keys, nil
}

func (d *fieldData) BlankKeys(ctx context.Context) ([]string, error) {
	if d.loaded["blank"] {
		return d.blankKeys, nil
	}
	where := fmt.Sprintf("%s IS NOT NULL AND %s = ''", d.db.QuoteIdentifier(d.column), d.db.TextExpr(d.column))
	keys, err := d.selectKeys(ctx, where)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to scan blank values")
	}
	d.blankKeys, d.loaded["blank"] = keys, true
	return keys, nil
}

func (d *fieldData) Values(ctx context.Context) ([]checks.Value, error) {
	if d.loaded["values"] {
		return d.values, nil
	}
	query := fmt.Sprintf(
		"SELECT %s AS row_key, %s AS field_value FROM %s WHERE %s IS NOT NULL AND %s <> '' ORDER BY %s",
		d.db.QuoteIdentifier(d.key),
		d.db.QuoteIdentifier(d.column),
		d.db.QuoteIdentifier(d.table),
		d.db.QuoteIdentifier(d.column),
		d.db.TextExpr(d.column),
		d.db.QuoteIdentifier(d.key),
	)
	rows, err := d.db.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to scan field values")
	}

	values := make([]checks.Value, 0, len(rows))
	for _, row := range rows {
		values = append(values, checks.Value{
			Key:   connector.Stringify(row["row_key"]),
			Value: connector.Stringify(row["field_value"]),
		})
	}
	d.values, d.loaded["values"] = values, true
	return values, nil
}

// DuplicateGroups groups the scanned values by their exact text, so the
// result does not depend on the collation of the column
func (d *fieldData) DuplicateGroups(ctx context.Context) ([]checks.Group, error) {
	if d.loaded["groups"] {
		return d.groups, nil
	}
	values, err := d.Values(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var all []checks.Group
	for _, v := range values {
		i, ok := index[v.Value]
		if !ok {
			i = len(all)
			index[v.Value] = i
			all = append(all, checks.Group{Value: v.Value})
		}
		all[i].Count++
		all[i].Keys = append(all[i].Keys, v.Key)
	}

	var groups []checks.Group
	for _, g := range all {
		if g.Count > 1 {
			groups = append(groups, g)
		}
	}
	d.groups, d.loaded["groups"] = groups, true
	return groups, nil
}
