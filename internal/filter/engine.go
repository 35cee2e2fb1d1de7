// Package filter normalizes entity field values before they are written.
// Filters are typed functions registered by name and chained per field.
package filter

import (
	"errors"
	"fmt"
)

// ErrUnknown is returned by RunFilter for a name that was never registered.
var ErrUnknown = errors.New("unknown filter")

// Func transforms its bound arguments into a new value. By convention the
// first argument is the current field value.
type Func func(args ...any) (any, error)

// Engine holds the named filters.
type Engine struct {
	filters map[string]Func
}

// New returns an engine with the built-in filters registered.
func New() *Engine {
	e := &Engine{filters: make(map[string]Func, len(builtins))}
	for name, f := range builtins {
		e.filters[name] = f
	}
	return e
}

// Register adds or replaces a named filter.
func (e *Engine) Register(name string, f Func) error {
	if name == "" || f == nil {
		return fmt.Errorf("register filter %q: name and func are required", name)
	}
	e.filters[name] = f
	return nil
}

// HasFilter reports whether name is registered.
func (e *Engine) HasFilter(name string) bool {
	_, ok := e.filters[name]
	return ok
}

// RunFilter calls the named filter with args.
func (e *Engine) RunFilter(name string, args []any) (any, error) {
	f, ok := e.filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	v, err := f(args...)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", name, err)
	}
	return v, nil
}
