package orm

import (
	"context"
	"fmt"
	"time"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Count projection used by CountAll.
const (
	countColumn = types.IDField
	countAlias  = "records_found"
)

// Repository builds a SELECT for one entity type. Builder calls are recorded
// and replayed onto a fresh query on every fetch, so pending calls are never
// reset: calling several fetch methods runs the same conditions again.
type Repository struct {
	conn     Conn
	registry *types.Registry
	etype    *types.EntityType
	columns  []string
	pending  query.Pending
	logf     func(format string, args ...any)
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets the function fetches are logged through.
func WithRepositoryLogger(logf func(format string, args ...any)) RepositoryOption {
	return func(r *Repository) {
		if logf != nil {
			r.logf = logf
		}
	}
}

// NewRepository returns a repository for the named entity type.
// Returns types.ErrUnknownEntityType if the name is not registered.
func NewRepository(conn Conn, registry *types.Registry, name string, opts ...RepositoryOption) (*Repository, error) {
	t, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	r := &Repository{conn: conn, registry: registry, etype: t, logf: nopLogf}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// TypeName returns the entity type the repository loads.
func (r *Repository) TypeName() string { return r.etype.Name }

// Pending returns a copy of the recorded builder calls.
func (r *Repository) Pending() []query.Call { return r.pending.Calls() }

func (r *Repository) add(c query.Call) *Repository {
	r.pending.Add(c)
	return r
}

// Columns restricts the projection of Find and FindAll. CountAll uses it
// only for distinct or grouped queries.
func (r *Repository) Columns(columns ...string) *Repository {
	r.columns = append(r.columns, columns...)
	return r
}

func (r *Repository) Where(column, op string, value any) *Repository {
	return r.add(query.Where{Column: column, Op: op, Value: value})
}

func (r *Repository) AndWhere(column, op string, value any) *Repository {
	return r.add(query.AndWhere{Column: column, Op: op, Value: value})
}

func (r *Repository) OrWhere(column, op string, value any) *Repository {
	return r.add(query.OrWhere{Column: column, Op: op, Value: value})
}

// WhereOpen is AndWhereOpen.
func (r *Repository) WhereOpen() *Repository { return r.AndWhereOpen() }

func (r *Repository) AndWhereOpen() *Repository { return r.add(query.AndWhereOpen{}) }

func (r *Repository) OrWhereOpen() *Repository { return r.add(query.OrWhereOpen{}) }

// WhereClose is AndWhereClose.
func (r *Repository) WhereClose() *Repository { return r.AndWhereClose() }

func (r *Repository) AndWhereClose() *Repository { return r.add(query.AndWhereClose{}) }

func (r *Repository) OrWhereClose() *Repository { return r.add(query.OrWhereClose{}) }

// OrderBy sorts by column. Direction is ASC, DESC, or empty.
func (r *Repository) OrderBy(column, direction string) *Repository {
	return r.add(query.OrderBy{Column: column, Direction: direction})
}

func (r *Repository) Limit(n int) *Repository { return r.add(query.Limit{N: n}) }

func (r *Repository) Offset(n int) *Repository { return r.add(query.Offset{N: n}) }

func (r *Repository) Distinct(enabled bool) *Repository {
	return r.add(query.Distinct{Enabled: enabled})
}

func (r *Repository) GroupBy(columns ...string) *Repository {
	return r.add(query.GroupBy{Columns: columns})
}

// Having is AndHaving.
func (r *Repository) Having(column, op string, value any) *Repository {
	return r.AndHaving(column, op, value)
}

func (r *Repository) AndHaving(column, op string, value any) *Repository {
	return r.add(query.AndHaving{Column: column, Op: op, Value: value})
}

func (r *Repository) OrHaving(column, op string, value any) *Repository {
	return r.add(query.OrHaving{Column: column, Op: op, Value: value})
}

// HavingOpen is AndHavingOpen.
func (r *Repository) HavingOpen() *Repository { return r.AndHavingOpen() }

func (r *Repository) AndHavingOpen() *Repository { return r.add(query.AndHavingOpen{}) }

func (r *Repository) OrHavingOpen() *Repository { return r.add(query.OrHavingOpen{}) }

// HavingClose is AndHavingClose.
func (r *Repository) HavingClose() *Repository { return r.AndHavingClose() }

func (r *Repository) AndHavingClose() *Repository { return r.add(query.AndHavingClose{}) }

func (r *Repository) OrHavingClose() *Repository { return r.add(query.OrHavingClose{}) }

// Param binds a named parameter referenced by condition values.
func (r *Repository) Param(name string, value any) *Repository {
	return r.add(query.Param{Key: name, Value: value})
}

func (r *Repository) Cached(lifetime time.Duration) *Repository {
	return r.add(query.Cached{Lifetime: lifetime})
}

func (r *Repository) Join(table, kind string) *Repository {
	return r.add(query.Join{Table: table, Kind: kind})
}

func (r *Repository) On(left, op, right string) *Repository {
	return r.add(query.On{Left: left, Op: op, Right: right})
}

func (r *Repository) Using(columns ...string) *Repository {
	return r.add(query.Using{Columns: columns})
}

// compile replays the pending calls onto a fresh SELECT.
func (r *Repository) compile() (query.Select, error) {
	sel := r.conn.Select(r.etype.Table)
	if len(r.columns) > 0 {
		sel.Columns(r.columns...)
	}
	if err := r.pending.Replay(sel); err != nil {
		return nil, fmt.Errorf("compile %s query: %w", r.etype.Name, err)
	}
	return sel, nil
}

// Find returns the first matching row as a loaded entity. When nothing
// matches it returns a fresh entity of the type in StateNotExists, never nil.
func (r *Repository) Find(ctx context.Context) (*types.Entity, error) {
	sel, err := r.compile()
	if err != nil {
		return nil, err
	}
	row, ok, err := sel.First(ctx)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", r.etype.Name, err)
	}
	e, err := r.registry.Create(r.etype.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logf("orm: find %s: no match", r.etype.Name)
		return e, nil
	}
	return e.Load(row.Columns, row.Values), nil
}

// FindAll returns every matching row as a loaded entity. The slice is empty,
// not nil, when nothing matches.
func (r *Repository) FindAll(ctx context.Context) ([]*types.Entity, error) {
	sel, err := r.compile()
	if err != nil {
		return nil, err
	}
	rows, err := sel.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("find all %s: %w", r.etype.Name, err)
	}
	out := make([]*types.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := r.registry.Create(r.etype.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, e.Load(row.Columns, row.Values))
	}
	r.logf("orm: find all %s: %d rows", r.etype.Name, len(out))
	return out, nil
}

// CountAll returns the number of rows matching the pending conditions.
func (r *Repository) CountAll(ctx context.Context) (int64, error) {
	sel, err := r.compile()
	if err != nil {
		return 0, err
	}
	n, err := sel.Count(ctx, countColumn, countAlias)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.etype.Name, err)
	}
	return n, nil
}

// Get records a condition on the id field and runs Find.
func (r *Repository) Get(ctx context.Context, id any) (*types.Entity, error) {
	r.Where(types.IDField, "=", id)
	return r.Find(ctx)
}
