package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Builder that remembers every invocation as "name(args)".
type recorder struct {
	calls []string
}

func (r *recorder) add(name string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf("%s%v", name, args))
}

func (r *recorder) Where(c, op string, v any)     { r.add("where", c, op, v) }
func (r *recorder) AndWhere(c, op string, v any)  { r.add("and_where", c, op, v) }
func (r *recorder) OrWhere(c, op string, v any)   { r.add("or_where", c, op, v) }
func (r *recorder) AndWhereOpen()                 { r.add("and_where_open") }
func (r *recorder) OrWhereOpen()                  { r.add("or_where_open") }
func (r *recorder) AndWhereClose()                { r.add("and_where_close") }
func (r *recorder) OrWhereClose()                 { r.add("or_where_close") }
func (r *recorder) OrderBy(c, dir string)         { r.add("order_by", c, dir) }
func (r *recorder) Limit(n int)                   { r.add("limit", n) }
func (r *recorder) Offset(n int)                  { r.add("offset", n) }
func (r *recorder) Distinct(b bool)               { r.add("distinct", b) }
func (r *recorder) GroupBy(cols ...string)        { r.add("group_by", stringArgs(cols)...) }
func (r *recorder) AndHaving(c, op string, v any) { r.add("and_having", c, op, v) }
func (r *recorder) OrHaving(c, op string, v any)  { r.add("or_having", c, op, v) }
func (r *recorder) AndHavingOpen()                { r.add("and_having_open") }
func (r *recorder) OrHavingOpen()                 { r.add("or_having_open") }
func (r *recorder) AndHavingClose()               { r.add("and_having_close") }
func (r *recorder) OrHavingClose()                { r.add("or_having_close") }
func (r *recorder) Param(n string, v any)         { r.add("param", n, v) }
func (r *recorder) Cached(d time.Duration)        { r.add("cached", d) }
func (r *recorder) Join(t, kind string)           { r.add("join", t, kind) }
func (r *recorder) On(l, op, rt string)           { r.add("on", l, op, rt) }
func (r *recorder) Using(cols ...string)          { r.add("using", stringArgs(cols)...) }

func TestReplayPreservesCallOrder(t *testing.T) {
	var p Pending
	p.Add(Where{Column: "a", Op: "=", Value: 1})
	p.Add(OrWhere{Column: "b", Op: "=", Value: 2})
	p.Add(OrderBy{Column: "c"})

	rec := &recorder{}
	require.NoError(t, p.Replay(rec))

	assert.Equal(t, []string{
		"where[a = 1]",
		"or_where[b = 2]",
		"order_by[c ]",
	}, rec.calls)
}

func TestReplayEveryVariant(t *testing.T) {
	var p Pending
	calls := []Call{
		Where{"a", "=", 1},
		AndWhere{"b", ">", 2},
		OrWhere{"c", "<", 3},
		AndWhereOpen{},
		OrWhereOpen{},
		OrWhereClose{},
		AndWhereClose{},
		OrderBy{"d", "DESC"},
		Limit{10},
		Offset{20},
		Distinct{true},
		GroupBy{[]string{"e", "f"}},
		AndHavingOpen{},
		AndHaving{"g", "=", 4},
		OrHaving{"h", "!=", 5},
		AndHavingClose{},
		OrHavingOpen{},
		OrHavingClose{},
		Param{":x", 6},
		Cached{time.Minute},
		Join{"roles", "LEFT"},
		On{"users.role_id", "=", "roles.id"},
		Using{[]string{"role_id"}},
	}
	for _, c := range calls {
		p.Add(c)
	}

	rec := &recorder{}
	require.NoError(t, p.Replay(rec))
	require.Len(t, rec.calls, len(calls))
	for i, c := range calls {
		assert.Equal(t, fmt.Sprintf("%s%v", c.Name(), c.Args()), rec.calls[i], "call %d", i)
	}
}

func TestReplayIsRepeatable(t *testing.T) {
	var p Pending
	p.Add(Where{"a", "=", 1})
	p.Add(Limit{1})

	first, second := &recorder{}, &recorder{}
	require.NoError(t, p.Replay(first))
	require.NoError(t, p.Replay(second))
	assert.Equal(t, first.calls, second.calls)
	assert.Equal(t, 2, p.Len())
}

func TestCallsReturnsCopy(t *testing.T) {
	var p Pending
	p.Add(Limit{1})
	calls := p.Calls()
	calls[0] = Limit{99}
	assert.Equal(t, Limit{1}, p.Calls()[0])
}

func TestRowMap(t *testing.T) {
	r := Row{Columns: []string{"id", "name"}, Values: []any{int64(1), "x"}}
	assert.Equal(t, map[string]any{"id": int64(1), "name": "x"}, r.Map())
}

func TestParamReplaysKeyAndValue(t *testing.T) {
	var p Pending
	p.Add(Param{Key: ":min", Value: 18})

	rec := &recorder{}
	require.NoError(t, p.Replay(rec))
	assert.Equal(t, []string{"param[:min 18]"}, rec.calls)
	assert.Equal(t, "param", p.Calls()[0].Name())
	assert.Equal(t, []any{":min", 18}, p.Calls()[0].Args())
}
