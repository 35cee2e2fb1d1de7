package types

import (
	"fmt"
	"maps"
	"slices"
)

// IDField is the column that identifies a persisted entity.
const IDField = "id"

// State is the persistence lifecycle state of an entity.
type State int

// Entity states. The numeric values are stable and appear in logs.
const (
	StateNotExists State = 0
	StateCreated   State = 10
	StateLoaded    State = 20
	StateUpdated   State = 30
	StateDeleted   State = 40
)

var stateNames = map[State]string{
	StateNotExists: "not_exists",
	StateCreated:   "created",
	StateLoaded:    "loaded",
	StateUpdated:   "updated",
	StateDeleted:   "deleted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Entity is a mutable bag of named field values bound to one table.
// Field insertion order is kept so column lists are deterministic.
//
// Set recomputes the state: an entity carrying an id field becomes
// StateUpdated, any other becomes StateCreated. Every other transition is
// explicit through SetState and is made by the unit of work.
type Entity struct {
	typeName  string
	tableName string
	keys      []string
	fields    map[string]any
	changed   map[string]bool
	state     State
}

// newEntity returns an empty entity in StateNotExists. Entities are built by
// Registry.Create so the table binding always matches the type.
func newEntity(typeName, tableName string) *Entity {
	return &Entity{
		typeName:  typeName,
		tableName: tableName,
		fields:    make(map[string]any),
		changed:   make(map[string]bool),
		state:     StateNotExists,
	}
}

// TypeName returns the registered entity type name.
func (e *Entity) TypeName() string { return e.typeName }

// TableName returns the table the entity is bound to.
func (e *Entity) TableName() string { return e.tableName }

// String returns the entity type name.
func (e *Entity) String() string { return e.typeName }

// Get returns the value bound to key.
// Returns ErrFieldNotSet if the field was never assigned.
func (e *Entity) Get(key string) (any, error) {
	v, ok := e.fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotSet, e.typeName, key)
	}
	return v, nil
}

// Set stores value under key, marks the field changed, and recomputes the
// state from the presence of the id field. Returns the entity for chaining.
func (e *Entity) Set(key string, value any) *Entity {
	e.assign(key, value)
	e.changed[key] = true
	if e.Has(IDField) {
		e.state = StateUpdated
	} else {
		e.state = StateCreated
	}
	return e
}

func (e *Entity) assign(key string, value any) {
	if _, ok := e.fields[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.fields[key] = value
}

// Value returns the value of key, or nil when the field is unset.
func (e *Entity) Value(key string) any {
	return e.fields[key]
}

// Has reports whether key has been assigned.
func (e *Entity) Has(key string) bool {
	_, ok := e.fields[key]
	return ok
}

// Data returns a copy of all field values.
// Returns an empty map (not nil) when no field is set.
func (e *Entity) Data() map[string]any {
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Columns returns field names in insertion order.
func (e *Entity) Columns() []string {
	return slices.Clone(e.keys)
}

// Values returns field values in the order of Columns.
func (e *Entity) Values() []any {
	out := make([]any, len(e.keys))
	for i, k := range e.keys {
		out[i] = e.fields[k]
	}
	return out
}

// ID returns the identifier and whether it is set.
func (e *Entity) ID() (any, bool) {
	v, ok := e.fields[IDField]
	return v, ok
}

// State returns the current lifecycle state.
func (e *Entity) State() State { return e.state }

// SetState overrides the lifecycle state. Used by the unit of work.
func (e *Entity) SetState(s State) *Entity {
	e.state = s
	return e
}

// Changed reports whether key was assigned through Set since the entity was
// loaded or last written.
func (e *Entity) Changed(key string) bool {
	return e.changed[key]
}

// ChangedFields returns the changed field names in insertion order.
func (e *Entity) ChangedFields() []string {
	var out []string
	for _, k := range e.keys {
		if e.changed[k] {
			out = append(out, k)
		}
	}
	return out
}

// MarkClean forgets which fields changed. Called after a successful write.
func (e *Entity) MarkClean() {
	clear(e.changed)
}

// Load hydrates the entity from a result row. Fields are assigned without
// being marked changed and the state becomes StateLoaded.
func (e *Entity) Load(columns []string, values []any) *Entity {
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		e.assign(col, values[i])
	}
	e.MarkClean()
	e.state = StateLoaded
	return e
}

// Snapshot is a copy of an entity's fields, change set, and state.
type Snapshot struct {
	keys    []string
	fields  map[string]any
	changed map[string]bool
	state   State
}

// Snapshot captures the entity so it can later be put back with Restore.
func (e *Entity) Snapshot() Snapshot {
	return Snapshot{
		keys:    slices.Clone(e.keys),
		fields:  maps.Clone(e.fields),
		changed: maps.Clone(e.changed),
		state:   e.state,
	}
}

// Restore puts the entity back to the captured fields, change set, and
// state. Fields assigned after the snapshot are dropped.
func (e *Entity) Restore(s Snapshot) {
	e.keys = slices.Clone(s.keys)
	e.fields = maps.Clone(s.fields)
	e.changed = maps.Clone(s.changed)
	e.state = s.state
}
