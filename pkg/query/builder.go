// Package query records SELECT builder calls without executing them and
// replays them, in order, onto a real query builder at execution time.
package query

import (
	"context"
	"time"
)

// Builder is the query object pending calls are replayed onto. Each method
// corresponds to one Call variant.
type Builder interface {
	Where(column, op string, value any)
	AndWhere(column, op string, value any)
	OrWhere(column, op string, value any)
	AndWhereOpen()
	OrWhereOpen()
	AndWhereClose()
	OrWhereClose()
	OrderBy(column, direction string)
	Limit(n int)
	Offset(n int)
	Distinct(enabled bool)
	GroupBy(columns ...string)
	AndHaving(column, op string, value any)
	OrHaving(column, op string, value any)
	AndHavingOpen()
	OrHavingOpen()
	AndHavingClose()
	OrHavingClose()
	Param(name string, value any)
	Cached(lifetime time.Duration)
	Join(table, kind string)
	On(left, op, right string)
	Using(columns ...string)
}

// Select is an executable SELECT bound to one table.
type Select interface {
	Builder

	// Columns restricts the projection. No call selects every column.
	Columns(columns ...string)

	// All executes the query and returns every row.
	All(ctx context.Context) ([]Row, error)

	// First executes the query and returns the first row, reporting false
	// when no row matched.
	First(ctx context.Context) (Row, bool, error)

	// Count executes the query with a COUNT(column) projection aliased to
	// alias. A plain query ignores the column list; a grouped or distinct
	// one counts the rows All would return.
	Count(ctx context.Context, column, alias string) (int64, error)
}

// Row is one result row with columns in select order.
type Row struct {
	Columns []string
	Values  []any
}

// Map returns the row as a column to value map.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		if i < len(r.Values) {
			out[c] = r.Values[i]
		}
	}
	return out
}

// Condition is a single column comparison used by UPDATE and DELETE.
type Condition struct {
	Column string
	Op     string
	Value  any
}
