package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// fakeConn records every call in order and serves canned rows.
type fakeConn struct {
	calls  []string
	nextID int64
	rows   []query.Row
	count  int64

	failInsert   error
	failCommit   error
	failRollback error

	selects []*fakeSelect
}

func (c *fakeConn) record(format string, args ...any) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *fakeConn) Begin(context.Context) error {
	c.record("begin")
	return nil
}

func (c *fakeConn) Commit(context.Context) error {
	c.record("commit")
	return c.failCommit
}

func (c *fakeConn) Rollback(context.Context) error {
	c.record("rollback")
	return c.failRollback
}

func (c *fakeConn) Insert(_ context.Context, table string, columns []string, values []any) (any, error) {
	c.record("insert %s %v %v", table, columns, values)
	if c.failInsert != nil {
		return nil, c.failInsert
	}
	c.nextID++
	return c.nextID, nil
}

func (c *fakeConn) Update(_ context.Context, table string, columns []string, values []any, where query.Condition) (int64, error) {
	c.record("update %s %v %v where %s %s %v", table, columns, values, where.Column, where.Op, where.Value)
	return 1, nil
}

func (c *fakeConn) Delete(_ context.Context, table string, where query.Condition) (int64, error) {
	c.record("delete %s where %s %s %v", table, where.Column, where.Op, where.Value)
	return 1, nil
}

func (c *fakeConn) Select(table string) query.Select {
	s := &fakeSelect{conn: c, table: table}
	c.selects = append(c.selects, s)
	return s
}

// fakeSelect records builder calls by name.
type fakeSelect struct {
	conn    *fakeConn
	table   string
	columns []string
	calls   []string
}

func (s *fakeSelect) add(name string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf("%s%v", name, args))
}

func (s *fakeSelect) Where(c, op string, v any)     { s.add("where", c, op, v) }
func (s *fakeSelect) AndWhere(c, op string, v any)  { s.add("and_where", c, op, v) }
func (s *fakeSelect) OrWhere(c, op string, v any)   { s.add("or_where", c, op, v) }
func (s *fakeSelect) AndWhereOpen()                 { s.add("and_where_open") }
func (s *fakeSelect) OrWhereOpen()                  { s.add("or_where_open") }
func (s *fakeSelect) AndWhereClose()                { s.add("and_where_close") }
func (s *fakeSelect) OrWhereClose()                 { s.add("or_where_close") }
func (s *fakeSelect) OrderBy(c, d string)           { s.add("order_by", c, d) }
func (s *fakeSelect) Limit(n int)                   { s.add("limit", n) }
func (s *fakeSelect) Offset(n int)                  { s.add("offset", n) }
func (s *fakeSelect) Distinct(b bool)               { s.add("distinct", b) }
func (s *fakeSelect) GroupBy(cols ...string)        { s.add("group_by", cols) }
func (s *fakeSelect) AndHaving(c, op string, v any) { s.add("and_having", c, op, v) }
func (s *fakeSelect) OrHaving(c, op string, v any)  { s.add("or_having", c, op, v) }
func (s *fakeSelect) AndHavingOpen()                { s.add("and_having_open") }
func (s *fakeSelect) OrHavingOpen()                 { s.add("or_having_open") }
func (s *fakeSelect) AndHavingClose()               { s.add("and_having_close") }
func (s *fakeSelect) OrHavingClose()                { s.add("or_having_close") }
func (s *fakeSelect) Param(n string, v any)         { s.add("param", n, v) }
func (s *fakeSelect) Cached(d time.Duration)        { s.add("cached", d) }
func (s *fakeSelect) Join(t, k string)              { s.add("join", t, k) }
func (s *fakeSelect) On(l, op, r string)            { s.add("on", l, op, r) }
func (s *fakeSelect) Using(cols ...string)          { s.add("using", cols) }
func (s *fakeSelect) Columns(cols ...string)        { s.columns = append(s.columns, cols...) }

func (s *fakeSelect) All(context.Context) ([]query.Row, error) {
	return s.conn.rows, nil
}

func (s *fakeSelect) First(context.Context) (query.Row, bool, error) {
	if len(s.conn.rows) == 0 {
		return query.Row{}, false, nil
	}
	return s.conn.rows[0], true, nil
}

func (s *fakeSelect) Count(_ context.Context, column, alias string) (int64, error) {
	s.add("count", column, alias)
	return s.conn.count, nil
}

// fakeValidator fails a rule named "fail" and knows "ok".
type fakeValidator struct{}

func (fakeValidator) HasRule(name string) bool { return name == "ok" || name == "fail" }

func (fakeValidator) Check(data map[string]any, rules map[string][]types.RuleSpec) types.FieldErrors {
	errs := types.FieldErrors{}
	for field, specs := range rules {
		for _, s := range specs {
			if s.Name == "fail" || (s.Name == "ok" && data[field] == "bad") {
				errs[field] = types.FieldError{Rule: s.Name}
				break
			}
		}
	}
	return errs
}

// recordingObserver counts observations per operation and outcome.
type recordingObserver struct {
	seen map[string]int
}

func (o *recordingObserver) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	if o.seen == nil {
		o.seen = map[string]int{}
	}
	o.seen[fmt.Sprintf("%s:%t", op, success)]++
}

var errBoom = errors.New("boom")
