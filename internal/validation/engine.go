// Package validation checks entity field data against declared rules.
// Rules are typed functions registered by name; entity declarations refer to
// them by that name and bind their arguments, with ":value" and ":field"
// substituted before each call.
package validation

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Rule reports whether its bound arguments satisfy the rule. By convention
// the first argument is the field value.
type Rule func(args ...any) bool

// emptyRules run even when the field value is empty. Every other rule is
// skipped for empty values so optional fields only need not_empty when they
// are required.
var emptyRules = map[string]bool{
	"not_empty": true,
}

// Engine holds the named rules.
type Engine struct {
	rules map[string]Rule
}

// New returns an engine with the built-in rules registered.
func New() *Engine {
	e := &Engine{rules: make(map[string]Rule, len(builtins))}
	for name, r := range builtins {
		e.rules[name] = r
	}
	return e
}

// Register adds or replaces a named rule.
func (e *Engine) Register(name string, r Rule) error {
	if name == "" || r == nil {
		return fmt.Errorf("register rule %q: name and func are required", name)
	}
	e.rules[name] = r
	return nil
}

// HasRule reports whether name is registered.
func (e *Engine) HasRule(name string) bool {
	_, ok := e.rules[name]
	return ok
}

// Check runs rules against data and returns the first failure per field.
// A nil result means the data is valid.
func (e *Engine) Check(data map[string]any, rules map[string][]types.RuleSpec) types.FieldErrors {
	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var errs types.FieldErrors
	for _, field := range fields {
		value := data[field]
		for _, spec := range rules[field] {
			if !emptyRules[spec.Name] && isEmpty(value) {
				continue
			}
			args := bind(spec.Args, field, value)
			r, ok := e.rules[spec.Name]
			if ok && r(args...) {
				continue
			}
			if errs == nil {
				errs = make(types.FieldErrors)
			}
			errs[field] = types.FieldError{Rule: spec.Name, Params: args}
			break
		}
	}
	return errs
}

// bind substitutes placeholders in a copy of args. A nil list binds the
// value alone.
func bind(args []any, field string, value any) []any {
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
