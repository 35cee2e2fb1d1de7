package query

import (
	"fmt"
	"slices"
)

// Pending is an ordered list of recorded calls. The zero value is ready to
// use. Insertion order is replay order, which fixes clause order in the
// compiled SQL.
type Pending struct {
	calls []Call
}

// Add appends a call.
func (p *Pending) Add(c Call) {
	p.calls = append(p.calls, c)
}

// Len returns the number of recorded calls.
func (p *Pending) Len() int { return len(p.calls) }

// Calls returns a copy of the recorded calls.
func (p *Pending) Calls() []Call {
	return slices.Clone(p.calls)
}

// Replay invokes every recorded call on b in recorded order. Grouping
// balance is not checked here; b reports unbalanced groups when it compiles.
func (p *Pending) Replay(b Builder) error {
	for i, call := range p.calls {
		switch c := call.(type) {
		case Where:
			b.Where(c.Column, c.Op, c.Value)
		case AndWhere:
			b.AndWhere(c.Column, c.Op, c.Value)
		case OrWhere:
			b.OrWhere(c.Column, c.Op, c.Value)
		case AndWhereOpen:
			b.AndWhereOpen()
		case OrWhereOpen:
			b.OrWhereOpen()
		case AndWhereClose:
			b.AndWhereClose()
		case OrWhereClose:
			b.OrWhereClose()
		case OrderBy:
			b.OrderBy(c.Column, c.Direction)
		case Limit:
			b.Limit(c.N)
		case Offset:
			b.Offset(c.N)
		case Distinct:
			b.Distinct(c.Enabled)
		case GroupBy:
			b.GroupBy(c.Columns...)
		case AndHaving:
			b.AndHaving(c.Column, c.Op, c.Value)
		case OrHaving:
			b.OrHaving(c.Column, c.Op, c.Value)
		case AndHavingOpen:
			b.AndHavingOpen()
		case OrHavingOpen:
			b.OrHavingOpen()
		case AndHavingClose:
			b.AndHavingClose()
		case OrHavingClose:
			b.OrHavingClose()
		case Param:
			b.Param(c.Key, c.Value)
		case Cached:
			b.Cached(c.Lifetime)
		case Join:
			b.Join(c.Table, c.Kind)
		case On:
			b.On(c.Left, c.Op, c.Right)
		case Using:
			b.Using(c.Columns...)
		default:
			return fmt.Errorf("replay call %d: unsupported call %T", i, call)
		}
	}
	return nil
}
