package orm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Manager is a unit of work. Entities queued with Persist and Remove are
// written by Flush in queue order, each according to its state:
//
//	StateNotExists  error, no SQL
//	StateCreated    check, filter, INSERT, then StateLoaded with the new id
//	StateUpdated    check, filter, UPDATE by id, then StateLoaded
//	StateDeleted    DELETE by id, then StateNotExists
//	StateLoaded     nothing
//
// The queue is never cleared; flushing again revisits every entity, which
// is a no-op for those already loaded. A Manager is not safe for concurrent
// use.
type Manager struct {
	conn          Conn
	registry      *types.Registry
	validator     Validator
	filters       FilterRunner
	observer      Observer
	logf          func(format string, args ...any)
	transactional bool
	persisters    []*types.Entity
}

// Option configures a Manager.
type Option func(*Manager)

// WithValidator sets the rule engine used by Check.
func WithValidator(v Validator) Option {
	return func(m *Manager) { m.validator = v }
}

// WithFilters sets the filter engine used by Filter.
func WithFilters(f FilterRunner) Option {
	return func(m *Manager) { m.filters = f }
}

// WithObserver sets the recorder for flush metrics.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the function flush progress is logged through.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(m *Manager) {
		if logf != nil {
			m.logf = logf
		}
	}
}

// NewManager returns a manager writing through conn. Every rule and filter
// declared by a registered type must be known to the configured engines;
// otherwise NewManager fails with ErrUnknownRule or ErrUnknownFilter.
func NewManager(conn Conn, registry *types.Registry, opts ...Option) (*Manager, error) {
	m := &Manager{
		conn:     conn,
		registry: registry,
		observer: noopObserver{},
		logf:     nopLogf,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.resolve(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) resolve() error {
	for _, name := range m.registry.Names() {
		t, err := m.registry.Lookup(name)
		if err != nil {
			return err
		}
		for field, specs := range t.Rules {
			for _, s := range specs {
				if m.validator == nil || !m.validator.HasRule(s.Name) {
					return fmt.Errorf("%w: %s on %s.%s", ErrUnknownRule, s.Name, name, field)
				}
			}
		}
		for field, specs := range t.Filters {
			for _, s := range specs {
				if m.filters == nil || !m.filters.HasFilter(s.Name) {
					return fmt.Errorf("%w: %s on %s.%s", ErrUnknownFilter, s.Name, name, field)
				}
			}
		}
	}
	return nil
}

// Persist queues entities for the next flush.
func (m *Manager) Persist(entities ...*types.Entity) *Manager {
	m.persisters = append(m.persisters, entities...)
	return m
}

// Remove marks entities deleted and queues them.
func (m *Manager) Remove(entities ...*types.Entity) *Manager {
	for _, e := range entities {
		e.SetState(types.StateDeleted)
	}
	return m.Persist(entities...)
}

// Transactional makes Flush run inside one transaction.
func (m *Manager) Transactional() *Manager {
	m.transactional = true
	return m
}

// Persisters returns a copy of the queue.
func (m *Manager) Persisters() []*types.Entity {
	return slices.Clone(m.persisters)
}

// Flush writes every queued entity in order and stops at the first failure.
// It reports true only when every entity was written. In transactional mode
// the writes are committed together, or rolled back and the original error
// returned; a rollback also restores every queued entity to its state,
// fields, and change set from before the flush. Without a transaction,
// entities written before the failure stay written and loaded.
func (m *Manager) Flush(ctx context.Context) (bool, error) {
	flushID := uuid.Must(uuid.NewV7()).String()
	start := time.Now()
	m.logf("orm: flush %s: %d entities, transactional=%t", flushID, len(m.persisters), m.transactional)

	err := m.flush(ctx, flushID)
	m.observer.Observe(ctx, "flush", err == nil, time.Since(start))
	if err != nil {
		m.logf("orm: flush %s failed: %v", flushID, err)
		return false, err
	}
	m.logf("orm: flush %s done in %s", flushID, time.Since(start))
	return true, nil
}

func (m *Manager) flush(ctx context.Context, flushID string) error {
	if !m.transactional {
		return m.writeAll(ctx, flushID)
	}
	if err := m.conn.Begin(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", flushID, err)
	}
	snapshots := make([]types.Snapshot, len(m.persisters))
	for i, e := range m.persisters {
		snapshots[i] = e.Snapshot()
	}
	err := m.writeAll(ctx, flushID)
	if err == nil {
		if err = m.conn.Commit(ctx); err == nil {
			return nil
		}
		err = fmt.Errorf("flush %s: %w", flushID, err)
	}
	m.rollback(ctx, flushID)
	// Restore in reverse so an entity queued twice ends at its first capture.
	for i := len(snapshots) - 1; i >= 0; i-- {
		m.persisters[i].Restore(snapshots[i])
	}
	return err
}

// rollback aborts the flush transaction. Its error is logged and never
// replaces the failure that caused it.
func (m *Manager) rollback(ctx context.Context, flushID string) {
	start := time.Now()
	err := m.conn.Rollback(ctx)
	m.observer.Observe(ctx, "rollback", err == nil, time.Since(start))
	if err != nil {
		m.logf("orm: flush %s: rollback failed: %v", flushID, err)
	}
}

func (m *Manager) writeAll(ctx context.Context, flushID string) error {
	for i, e := range m.persisters {
		if err := m.write(ctx, e); err != nil {
			return fmt.Errorf("flush %s: unit %d (%s): %w", flushID, i, e, err)
		}
	}
	return nil
}

// write runs the unit of work for one entity.
func (m *Manager) write(ctx context.Context, e *types.Entity) error {
	from := e.State()
	switch from {
	case types.StateNotExists:
		return types.ErrEntityNotPersistable
	case types.StateLoaded:
		return nil
	case types.StateCreated:
		return m.insert(ctx, e)
	case types.StateUpdated:
		return m.update(ctx, e)
	case types.StateDeleted:
		return m.delete(ctx, e)
	default:
		return fmt.Errorf("unexpected state %s", from)
	}
}

func (m *Manager) prepare(e *types.Entity) error {
	if err := m.Check(e); err != nil {
		return err
	}
	return m.Filter(e)
}

func (m *Manager) insert(ctx context.Context, e *types.Entity) error {
	if err := m.prepare(e); err != nil {
		return err
	}
	start := time.Now()
	id, err := m.conn.Insert(ctx, e.TableName(), e.Columns(), e.Values())
	m.observer.Observe(ctx, "insert", err == nil, time.Since(start))
	if err != nil {
		return err
	}
	e.Set(types.IDField, id)
	e.MarkClean()
	e.SetState(types.StateLoaded)
	m.logf("orm: %s created id=%v", e, id)
	return nil
}

func (m *Manager) update(ctx context.Context, e *types.Entity) error {
	if err := m.prepare(e); err != nil {
		return err
	}
	id, _ := e.ID()
	start := time.Now()
	_, err := m.conn.Update(ctx, e.TableName(), e.Columns(), e.Values(), byID(id))
	m.observer.Observe(ctx, "update", err == nil, time.Since(start))
	if err != nil {
		return err
	}
	e.MarkClean()
	e.SetState(types.StateLoaded)
	m.logf("orm: %s updated id=%v", e, id)
	return nil
}

func (m *Manager) delete(ctx context.Context, e *types.Entity) error {
	id, ok := e.ID()
	if !ok {
		return fmt.Errorf("delete %s: %w", e, types.ErrFieldNotSet)
	}
	start := time.Now()
	_, err := m.conn.Delete(ctx, e.TableName(), byID(id))
	m.observer.Observe(ctx, "delete", err == nil, time.Since(start))
	if err != nil {
		return err
	}
	e.MarkClean()
	e.SetState(types.StateNotExists)
	m.logf("orm: %s deleted id=%v", e, id)
	return nil
}

func byID(id any) query.Condition {
	return query.Condition{Column: types.IDField, Op: "=", Value: id}
}

// Check validates the entity's data against its type's declared field kinds
// and rules. It does nothing when the entity has no data or the type
// declares neither. Failures are returned as *types.ValidationError.
func (m *Manager) Check(e *types.Entity) error {
	t, err := m.registry.Lookup(e.TypeName())
	if err != nil {
		return err
	}
	data := e.Data()
	if len(data) == 0 || (len(t.Rules) == 0 && len(t.Fields) == 0) {
		return nil
	}

	errs := checkKinds(t, data)
	if len(t.Rules) > 0 && m.validator != nil {
		for field, fe := range m.validator.Check(data, t.Rules) {
			if _, seen := errs[field]; seen {
				continue
			}
			if errs == nil {
				errs = make(types.FieldErrors)
			}
			errs[field] = fe
		}
	}
	if len(errs) > 0 {
		return &types.ValidationError{Alias: t.Name, Errors: errs}
	}
	return nil
}

// checkKinds reports fields whose values do not fit the declared kind.
// Fields not declared in the schema are not checked.
func checkKinds(t *types.EntityType, data map[string]any) types.FieldErrors {
	var errs types.FieldErrors
	for _, f := range t.Fields {
		v, ok := data[f.Name]
		if !ok || f.Kind.Accepts(v) {
			continue
		}
		if errs == nil {
			errs = make(types.FieldErrors)
		}
		errs[f.Name] = types.FieldError{Rule: "kind", Params: []any{string(f.Kind)}}
	}
	return errs
}

// Filter runs the declared filter chains over every changed field: the
// wildcard chain first, then the field's own chain. Each filter receives
// the running value and the result is written back with Set.
func (m *Manager) Filter(e *types.Entity) error {
	t, err := m.registry.Lookup(e.TypeName())
	if err != nil {
		return err
	}
	if len(t.Filters) == 0 {
		return nil
	}
	if m.filters == nil {
		return fmt.Errorf("%w: no filter engine configured", ErrUnknownFilter)
	}
	wildcard := t.Filters[types.WildcardField]
	for _, field := range e.ChangedFields() {
		chain := append(slices.Clone(wildcard), t.Filters[field]...)
		if len(chain) == 0 {
			continue
		}
		value := e.Value(field)
		for _, spec := range chain {
			value, err = m.filters.RunFilter(spec.Name, bindArgs(spec.Args, field, value))
			if err != nil {
				return fmt.Errorf("filter %s.%s: %w", t.Name, field, err)
			}
		}
		e.Set(field, value)
	}
	return nil
}

// bindArgs substitutes placeholders in a copy of args. A nil list binds the
// value alone.
func bindArgs(args []any, field string, value any) []any {
	if args == nil {
		return []any{value}
	}
	out := make([]any, len(args))
	for i, a := range args {
		switch a {
		case types.PlaceholderValue:
			out[i] = value
		case types.PlaceholderField:
			out[i] = field
		default:
			out[i] = a
		}
	}
	return out
}

// IsValidation reports whether err carries a validation failure and returns
// it.
func IsValidation(err error) (*types.ValidationError, bool) {
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
