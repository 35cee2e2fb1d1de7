package query

import "time"

// Call is one recorded builder invocation. The set of variants is closed;
// Replay switches over them.
type Call interface {
	// Name returns the operation name, e.g. "and_where".
	Name() string
	// Args returns the recorded arguments in call order.
	Args() []any
	isCall()
}

type (
	Where struct {
		Column string
		Op     string
		Value  any
	}
	AndWhere struct {
		Column string
		Op     string
		Value  any
	}
	OrWhere struct {
		Column string
		Op     string
		Value  any
	}
	AndWhereOpen  struct{}
	OrWhereOpen   struct{}
	AndWhereClose struct{}
	OrWhereClose  struct{}
	OrderBy       struct {
		Column    string
		Direction string
	}
	Limit    struct{ N int }
	Offset   struct{ N int }
	Distinct struct{ Enabled bool }
	GroupBy  struct{ Columns []string }
	AndHaving struct {
		Column string
		Op     string
		Value  any
	}
	OrHaving struct {
		Column string
		Op     string
		Value  any
	}
	AndHavingOpen  struct{}
	OrHavingOpen   struct{}
	AndHavingClose struct{}
	OrHavingClose  struct{}
	Param          struct {
		Key   string
		Value any
	}
	Cached struct{ Lifetime time.Duration }
	Join   struct {
		Table string
		Kind  string
	}
	On struct {
		Left  string
		Op    string
		Right string
	}
	Using struct{ Columns []string }
)

func (Where) Name() string          { return "where" }
func (AndWhere) Name() string       { return "and_where" }
func (OrWhere) Name() string        { return "or_where" }
func (AndWhereOpen) Name() string   { return "and_where_open" }
func (OrWhereOpen) Name() string    { return "or_where_open" }
func (AndWhereClose) Name() string  { return "and_where_close" }
func (OrWhereClose) Name() string   { return "or_where_close" }
func (OrderBy) Name() string        { return "order_by" }
func (Limit) Name() string          { return "limit" }
func (Offset) Name() string         { return "offset" }
func (Distinct) Name() string       { return "distinct" }
func (GroupBy) Name() string        { return "group_by" }
func (AndHaving) Name() string      { return "and_having" }
func (OrHaving) Name() string       { return "or_having" }
func (AndHavingOpen) Name() string  { return "and_having_open" }
func (OrHavingOpen) Name() string   { return "or_having_open" }
func (AndHavingClose) Name() string { return "and_having_close" }
func (OrHavingClose) Name() string  { return "or_having_close" }
func (Param) Name() string          { return "param" }
func (Cached) Name() string         { return "cached" }
func (Join) Name() string           { return "join" }
func (On) Name() string             { return "on" }
func (Using) Name() string          { return "using" }

func (c Where) Args() []any        { return []any{c.Column, c.Op, c.Value} }
func (c AndWhere) Args() []any     { return []any{c.Column, c.Op, c.Value} }
func (c OrWhere) Args() []any      { return []any{c.Column, c.Op, c.Value} }
func (AndWhereOpen) Args() []any   { return nil }
func (OrWhereOpen) Args() []any    { return nil }
func (AndWhereClose) Args() []any  { return nil }
func (OrWhereClose) Args() []any   { return nil }
func (c OrderBy) Args() []any      { return []any{c.Column, c.Direction} }
func (c Limit) Args() []any        { return []any{c.N} }
func (c Offset) Args() []any       { return []any{c.N} }
func (c Distinct) Args() []any     { return []any{c.Enabled} }
func (c GroupBy) Args() []any      { return stringArgs(c.Columns) }
func (c AndHaving) Args() []any    { return []any{c.Column, c.Op, c.Value} }
func (c OrHaving) Args() []any     { return []any{c.Column, c.Op, c.Value} }
func (AndHavingOpen) Args() []any  { return nil }
func (OrHavingOpen) Args() []any   { return nil }
func (AndHavingClose) Args() []any { return nil }
func (OrHavingClose) Args() []any  { return nil }
func (c Param) Args() []any        { return []any{c.Key, c.Value} }
func (c Cached) Args() []any       { return []any{c.Lifetime} }
func (c Join) Args() []any         { return []any{c.Table, c.Kind} }
func (c On) Args() []any           { return []any{c.Left, c.Op, c.Right} }
func (c Using) Args() []any        { return stringArgs(c.Columns) }

func (Where) isCall()          {}
func (AndWhere) isCall()       {}
func (OrWhere) isCall()        {}
func (AndWhereOpen) isCall()   {}
func (OrWhereOpen) isCall()    {}
func (AndWhereClose) isCall()  {}
func (OrWhereClose) isCall()   {}
func (OrderBy) isCall()        {}
func (Limit) isCall()          {}
func (Offset) isCall()         {}
func (Distinct) isCall()       {}
func (GroupBy) isCall()        {}
func (AndHaving) isCall()      {}
func (OrHaving) isCall()       {}
func (AndHavingOpen) isCall()  {}
func (OrHavingOpen) isCall()   {}
func (AndHavingClose) isCall() {}
func (OrHavingClose) isCall()  {}
func (Param) isCall()          {}
func (Cached) isCall()         {}
func (Join) isCall()           {}
func (On) isCall()             {}
func (Using) isCall()          {}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
