// Package larder is the public entry point. Open connects to a backend and
// returns a Session that wires the SQL layer, the built-in rule and filter
// engines, and metrics, while keeping those implementations internal.
//
// Example:
//
//	reg := types.NewRegistry().MustRegister(types.EntityType{Name: "group", Table: "groups"})
//	s, err := larder.Open(types.Config{Backend: types.BackendSQLite, DataDir: ".larder-db"}, reg)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	m, err := s.Manager()
//	g, _ := reg.Create("group")
//	ok, err := m.Persist(g.Set("name", "admins")).Flush(ctx)
package larder

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/larder/internal/filter"
	"github.com/mesh-intelligence/larder/internal/metrics"
	"github.com/mesh-intelligence/larder/internal/sqldb"
	"github.com/mesh-intelligence/larder/internal/validation"
	"github.com/mesh-intelligence/larder/pkg/orm"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Session owns one connection and hands out repositories and managers bound
// to it. Repositories and managers share the connection, so a transactional
// flush sees its own writes.
type Session struct {
	db        *sqldb.DB
	registry  *types.Registry
	validator *validation.Engine
	filters   *filter.Engine
	recorder  *metrics.Recorder
	logf      func(format string, args ...any)
}

type options struct {
	logf       func(format string, args ...any)
	registerer prometheus.Registerer
	rules      map[string]validation.Rule
	filters    map[string]filter.Func
}

// Option configures Open.
type Option func(*options)

// WithLogger logs SQL statements and flush progress through logf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(o *options) { o.logf = logf }
}

// WithRegisterer registers the session metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRule adds a custom validation rule. The first argument passed to fn
// is the field value unless the rule declaration binds other arguments.
func WithRule(name string, fn func(args ...any) bool) Option {
	return func(o *options) { o.rules[name] = fn }
}

// WithFilter adds a custom filter.
func WithFilter(name string, fn func(args ...any) (any, error)) Option {
	return func(o *options) { o.filters[name] = fn }
}

// Open connects to the backend described by cfg.
func Open(cfg types.Config, registry *types.Registry, opts ...Option) (*Session, error) {
	o := options{
		logf:    func(string, ...any) {},
		rules:   map[string]validation.Rule{},
		filters: map[string]filter.Func{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		registry:  registry,
		validator: validation.New(),
		filters:   filter.New(),
		logf:      o.logf,
	}
	for name, fn := range o.rules {
		if err := s.validator.Register(name, fn); err != nil {
			return nil, err
		}
	}
	for name, fn := range o.filters {
		if err := s.filters.Register(name, fn); err != nil {
			return nil, err
		}
	}
	rec, err := metrics.NewRecorder(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	s.recorder = rec

	db, err := sqldb.Open(cfg, sqldb.WithLogger(o.logf))
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// Close releases the connection.
func (s *Session) Close() error { return s.db.Close() }

// Registry returns the entity types the session serves.
func (s *Session) Registry() *types.Registry { return s.registry }

// Backend returns the backend name.
func (s *Session) Backend() string { return s.db.Backend() }

// ExecScript runs semicolon-separated DDL or data statements.
func (s *Session) ExecScript(ctx context.Context, script string) error {
	return s.db.ExecScript(ctx, script)
}

// Create returns a new entity of the named type.
func (s *Session) Create(name string) (*types.Entity, error) {
	return s.registry.Create(name)
}

// Repository returns a repository for the named entity type.
func (s *Session) Repository(name string) (*orm.Repository, error) {
	return orm.NewRepository(s.db, s.registry, name, orm.WithRepositoryLogger(s.logf))
}

// Manager returns a new unit of work. Rule and filter names declared by the
// registry are resolved here.
func (s *Session) Manager() (*orm.Manager, error) {
	return orm.NewManager(s.db, s.registry,
		orm.WithValidator(s.validator),
		orm.WithFilters(s.filters),
		orm.WithObserver(s.recorder),
		orm.WithLogger(s.logf),
	)
}
