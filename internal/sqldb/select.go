package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/larder/pkg/query"
)

var _ query.Select = (*Select)(nil)

type clauseKind int

const (
	clauseCond clauseKind = iota
	clauseOpen
	clauseClose
)

type clause struct {
	kind   clauseKind
	logic  string // AND or OR
	column string
	op     string
	value  any
}

type join struct {
	table string
	kind  string
	on    []string
	using []string
}

type order struct {
	column    string
	direction string
}

// Select builds and executes a SELECT for one table. Builder methods record
// state; the first invalid call is remembered and returned at execution.
type Select struct {
	db       *DB
	table    string
	columns  []string
	distinct bool
	joins    []join
	where    []clause
	having   []clause
	groupBy  []string
	orderBy  []order
	limit    int
	offset   int
	params   map[string]any
	err      error
}

func (s *Select) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Select) Columns(columns ...string) { s.columns = append(s.columns, columns...) }

func (s *Select) Where(column, op string, value any) { s.AndWhere(column, op, value) }

func (s *Select) AndWhere(column, op string, value any) {
	s.where = append(s.where, clause{kind: clauseCond, logic: "AND", column: column, op: op, value: value})
}

func (s *Select) OrWhere(column, op string, value any) {
	s.where = append(s.where, clause{kind: clauseCond, logic: "OR", column: column, op: op, value: value})
}

func (s *Select) AndWhereOpen()  { s.where = append(s.where, clause{kind: clauseOpen, logic: "AND"}) }
func (s *Select) OrWhereOpen()   { s.where = append(s.where, clause{kind: clauseOpen, logic: "OR"}) }
func (s *Select) AndWhereClose() { s.where = append(s.where, clause{kind: clauseClose}) }
func (s *Select) OrWhereClose()  { s.where = append(s.where, clause{kind: clauseClose}) }

func (s *Select) AndHaving(column, op string, value any) {
	s.having = append(s.having, clause{kind: clauseCond, logic: "AND", column: column, op: op, value: value})
}

func (s *Select) OrHaving(column, op string, value any) {
	s.having = append(s.having, clause{kind: clauseCond, logic: "OR", column: column, op: op, value: value})
}

func (s *Select) AndHavingOpen()  { s.having = append(s.having, clause{kind: clauseOpen, logic: "AND"}) }
func (s *Select) OrHavingOpen()   { s.having = append(s.having, clause{kind: clauseOpen, logic: "OR"}) }
func (s *Select) AndHavingClose() { s.having = append(s.having, clause{kind: clauseClose}) }
func (s *Select) OrHavingClose()  { s.having = append(s.having, clause{kind: clauseClose}) }

func (s *Select) OrderBy(column, direction string) {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "" && dir != "ASC" && dir != "DESC" {
		s.fail(fmt.Errorf("%w: order direction %q", ErrInvalidQuery, direction))
		return
	}
	s.orderBy = append(s.orderBy, order{column: column, direction: dir})
}

func (s *Select) Limit(n int) {
	if n < 0 {
		s.fail(fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, n))
		return
	}
	s.limit = n
}

func (s *Select) Offset(n int) {
	if n < 0 {
		s.fail(fmt.Errorf("%w: negative offset %d", ErrInvalidQuery, n))
		return
	}
	s.offset = n
}

func (s *Select) Distinct(enabled bool) { s.distinct = enabled }

func (s *Select) GroupBy(columns ...string) { s.groupBy = append(s.groupBy, columns...) }

// Param binds a value to a named placeholder such as ":min". A condition
// whose value is that placeholder string receives the bound value.
func (s *Select) Param(name string, value any) {
	if s.params == nil {
		s.params = make(map[string]any)
	}
	s.params[name] = value
}

// Cached is accepted for compatibility; results are never cached.
func (s *Select) Cached(lifetime time.Duration) {
	s.db.logf("sql: cached(%s) ignored on %s", lifetime, s.table)
}

func (s *Select) Join(table, kind string) {
	k := strings.ToUpper(strings.TrimSpace(kind))
	if !joinKinds[k] {
		s.fail(fmt.Errorf("%w: join kind %q", ErrInvalidQuery, kind))
		return
	}
	s.joins = append(s.joins, join{table: table, kind: k})
}

func (s *Select) On(left, op, right string) {
	if len(s.joins) == 0 {
		s.fail(fmt.Errorf("%w: on without join", ErrInvalidQuery))
		return
	}
	if !operators[strings.ToUpper(op)] {
		s.fail(fmt.Errorf("%w: %q", ErrInvalidOperator, op))
		return
	}
	j := &s.joins[len(s.joins)-1]
	j.on = append(j.on, quoteIdent(left)+" "+strings.ToUpper(op)+" "+quoteIdent(right))
}

func (s *Select) Using(columns ...string) {
	if len(s.joins) == 0 {
		s.fail(fmt.Errorf("%w: using without join", ErrInvalidQuery))
		return
	}
	j := &s.joins[len(s.joins)-1]
	j.using = append(j.using, columns...)
}

// SQL renders the statement and its arguments.
func (s *Select) SQL() (string, []any, error) {
	return s.render(false, "", "")
}

func (s *Select) render(count bool, countColumn, alias string) (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	cb := condBuilder{dialect: s.db.dialect, params: s.params}
	var b strings.Builder

	switch {
	case count && s.aggregates():
		// Grouped or distinct rows are counted as rows of the inner query.
		inner, err := s.body(&cb, s.projection(true))
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b, "SELECT COUNT(*) AS %s FROM (%s) AS %s", quoteIdent(alias), inner, quoteIdent("counted"))
		return b.String(), cb.args, nil
	case count:
		stmt, err := s.body(&cb, fmt.Sprintf("COUNT(%s) AS %s", quoteIdent(countColumn), quoteIdent(alias)))
		return stmt, cb.args, err
	}

	stmt, err := s.body(&cb, s.projection(false))
	if err != nil {
		return "", nil, err
	}
	b.WriteString(stmt)
	if len(s.orderBy) > 0 {
		parts := make([]string, len(s.orderBy))
		for i, o := range s.orderBy {
			parts[i] = quoteIdent(o.column)
			if o.direction != "" {
				parts[i] += " " + o.direction
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	switch {
	case s.limit >= 0:
		b.WriteString(" LIMIT " + strconv.Itoa(s.limit))
	case s.offset >= 0 && s.db.dialect.offsetNeedsLimit:
		b.WriteString(" LIMIT -1")
	}
	if s.offset >= 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(s.offset))
	}
	return b.String(), cb.args, nil
}

// aggregates reports whether result rows are groups or distinct tuples
// rather than table rows.
func (s *Select) aggregates() bool {
	return s.distinct || len(s.groupBy) > 0 || len(s.having) > 0
}

// projection renders the column list. A grouped count without columns
// projects the grouping columns so every dialect accepts it.
func (s *Select) projection(grouped bool) string {
	var b strings.Builder
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	switch {
	case len(s.columns) > 0:
		b.WriteString(strings.Join(quoteIdents(s.columns), ", "))
	case grouped && len(s.groupBy) > 0:
		b.WriteString(strings.Join(quoteIdents(s.groupBy), ", "))
	default:
		b.WriteString("*")
	}
	return b.String()
}

// body renders SELECT through HAVING. Ordering and paging are left to the
// caller.
func (s *Select) body(cb *condBuilder, projection string) (string, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(projection)
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(s.table))

	for _, j := range s.joins {
		b.WriteString(" ")
		if j.kind != "" {
			b.WriteString(j.kind + " ")
		}
		b.WriteString("JOIN ")
		b.WriteString(quoteIdent(j.table))
		switch {
		case len(j.using) > 0:
			fmt.Fprintf(&b, " USING (%s)", strings.Join(quoteIdents(j.using), ", "))
		case len(j.on) > 0:
			b.WriteString(" ON ")
			b.WriteString(strings.Join(j.on, " AND "))
		}
	}

	if len(s.where) > 0 {
		w, err := cb.clauses(s.where)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE ")
		b.WriteString(w)
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(quoteIdents(s.groupBy), ", "))
	}
	if len(s.having) > 0 {
		h, err := cb.clauses(s.having)
		if err != nil {
			return "", err
		}
		b.WriteString(" HAVING ")
		b.WriteString(h)
	}
	return b.String(), nil
}

// All executes the query and returns every row.
func (s *Select) All(ctx context.Context) ([]query.Row, error) {
	stmt, args, err := s.SQL()
	if err != nil {
		return nil, err
	}
	return s.db.queryRows(ctx, stmt, args)
}

// First executes the query with LIMIT 1 unless a limit was given.
func (s *Select) First(ctx context.Context) (query.Row, bool, error) {
	limit := s.limit
	if limit < 0 {
		s.limit = 1
		defer func() { s.limit = limit }()
	}
	rows, err := s.All(ctx)
	if err != nil || len(rows) == 0 {
		return query.Row{}, false, err
	}
	return rows[0], true, nil
}

// Count executes the query with a COUNT(column) projection. Grouped or
// distinct queries count the rows the plain query would return.
func (s *Select) Count(ctx context.Context, column, alias string) (int64, error) {
	stmt, args, err := s.render(true, column, alias)
	if err != nil {
		return 0, err
	}
	s.db.logf("sql: %s %v", stmt, args)
	var n sql.NullInt64
	err = s.db.exec().QueryRowContext(ctx, stmt, args...).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n.Int64, nil
}

func (d *DB) queryRows(ctx context.Context, stmt string, args []any) ([]query.Row, error) {
	d.logf("sql: %s %v", stmt, args)
	rows, err := d.exec().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	out := []query.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, query.Row{Columns: append([]string(nil), cols...), Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// condBuilder renders conditions and collects their arguments.
type condBuilder struct {
	dialect dialect
	params  map[string]any
	args    []any
}

func (cb *condBuilder) bind(v any) string {
	if s, ok := v.(string); ok {
		if p, ok := cb.params[s]; ok {
			v = p
		}
	}
	cb.args = append(cb.args, v)
	return cb.dialect.placeholder(len(cb.args))
}

// clauses renders a condition list with Kohana-style grouping: the
// connector of a clause is omitted right after an opening parenthesis.
func (cb *condBuilder) clauses(list []clause) (string, error) {
	var b strings.Builder
	depth := 0
	prev := clauseOpen
	for i, c := range list {
		switch c.kind {
		case clauseClose:
			depth--
			if depth < 0 {
				return "", fmt.Errorf("%w: close at position %d", ErrUnbalancedGroup, i)
			}
			b.WriteString(")")
		default:
			if i > 0 && prev != clauseOpen {
				b.WriteString(" " + c.logic + " ")
			}
			if c.kind == clauseOpen {
				depth++
				b.WriteString("(")
				break
			}
			s, err := cb.render(c.column, c.op, c.value)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		prev = c.kind
	}
	if depth != 0 {
		return "", fmt.Errorf("%w: %d group(s) left open", ErrUnbalancedGroup, depth)
	}
	return b.String(), nil
}

func (cb *condBuilder) render(column, op string, value any) (string, error) {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !operators[op] {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	col := quoteIdent(column)

	if value == nil {
		switch op {
		case "=", "IS":
			return col + " IS NULL", nil
		case "!=", "<>", "IS NOT":
			return col + " IS NOT NULL", nil
		}
	}

	switch op {
	case "IN", "NOT IN":
		items, ok := sliceValues(value)
		if !ok {
			return "", fmt.Errorf("%w: %s needs a slice value", ErrInvalidQuery, op)
		}
		if len(items) == 0 {
			// Empty sets match nothing (IN) or everything (NOT IN).
			if op == "IN" {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		ph := make([]string, len(items))
		for i, it := range items {
			ph[i] = cb.bind(it)
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(ph, ", ")), nil
	case "BETWEEN":
		items, ok := sliceValues(value)
		if !ok || len(items) != 2 {
			return "", fmt.Errorf("%w: BETWEEN needs two values", ErrInvalidQuery)
		}
		lo := cb.bind(items[0])
		hi := cb.bind(items[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil
	}
	return fmt.Sprintf("%s %s %s", col, op, cb.bind(value)), nil
}

func sliceValues(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is a scalar value.
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
