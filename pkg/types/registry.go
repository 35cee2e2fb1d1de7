package types

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind describes the value kind of a declared field.
type Kind string

// Field kinds accepted in an entity schema.
const (
	KindAny    Kind = "any"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindBytes  Kind = "bytes"
)

var validKinds = map[Kind]bool{
	KindAny:    true,
	KindString: true,
	KindInt:    true,
	KindFloat:  true,
	KindBool:   true,
	KindTime:   true,
	KindBytes:  true,
}

// Accepts reports whether v can be stored in a field of this kind.
// nil is accepted by every kind.
func (k Kind) Accepts(v any) bool {
	if v == nil || k == KindAny {
		return true
	}
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInt:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			// JSON numbers decode to float64.
			return n == math.Trunc(n)
		}
		return false
	case KindFloat:
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, t)
			return err == nil
		}
		return false
	case KindBytes:
		switch v.(type) {
		case []byte, string:
			return true
		}
		return false
	}
	return false
}

// FieldSpec declares one column of an entity type.
type FieldSpec struct {
	Name string
	Kind Kind
}

// RuleSpec names a validation rule and its bound arguments. Arguments may
// contain the placeholders PlaceholderField and PlaceholderValue.
type RuleSpec struct {
	Name string
	Args []any
}

// FilterSpec names a filter and its bound arguments. A nil Args list means
// the filter receives the field value alone.
type FilterSpec struct {
	Name string
	Args []any
}

// Placeholders substituted in rule and filter arguments before invocation.
const (
	PlaceholderField = ":field"
	PlaceholderValue = ":value"
)

// WildcardField keys a filter chain applied to every changed field ahead of
// the field's own chain.
const WildcardField = "*"

// EntityType binds a type name to its table and declarations.
type EntityType struct {
	Name    string
	Table   string
	Fields  []FieldSpec
	Rules   map[string][]RuleSpec
	Filters map[string][]FilterSpec

	// Constructor, when set, runs on every entity created for this type.
	// It may assign defaults; state is reset to StateNotExists afterwards.
	Constructor func(*Entity)
}

// Field returns the declared spec for name.
func (t *EntityType) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func (t *EntityType) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidEntityType)
	}
	if t.Table == "" {
		return fmt.Errorf("%w: %s: table must not be empty", ErrInvalidEntityType, t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s: field name must not be empty", ErrInvalidEntityType, t.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidEntityType, t.Name, f.Name)
		}
		seen[f.Name] = true
		if !validKinds[f.Kind] {
			return fmt.Errorf("%w: %s.%s: unknown kind %q", ErrInvalidEntityType, t.Name, f.Name, f.Kind)
		}
	}
	return nil
}

// Registry maps entity type names to their table bindings and declarations.
// It replaces a process-wide entity factory: repositories and managers
// receive it explicitly.
type Registry struct {
	types map[string]*EntityType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*EntityType)}
}

// Register adds an entity type. Returns ErrInvalidEntityType when the type
// is malformed or the name is already registered.
func (r *Registry) Register(t EntityType) error {
	if err := t.validate(); err != nil {
		return err
	}
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("%w: %s already registered", ErrInvalidEntityType, t.Name)
	}
	if t.Fields != nil {
		t.Fields = append([]FieldSpec(nil), t.Fields...)
	}
	r.types[t.Name] = &t
	return nil
}

// MustRegister is Register that panics on error. For package-level setup.
func (r *Registry) MustRegister(t EntityType) *Registry {
	if err := r.Register(t); err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the entity type registered under name.
// Returns ErrUnknownEntityType if the name is not registered.
func (r *Registry) Lookup(name string) (*EntityType, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, name)
	}
	return t, nil
}

// Create returns a new, empty entity of the named type in StateNotExists.
// Returns ErrUnknownEntityType if the name is not registered.
func (r *Registry) Create(name string) (*Entity, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	e := newEntity(t.Name, t.Table)
	if t.Constructor != nil {
		t.Constructor(e)
		e.state = StateNotExists
	}
	return e, nil
}

// Names returns the registered type names sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
