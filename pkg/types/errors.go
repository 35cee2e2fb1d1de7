package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Entity and registry errors.
var (
	ErrFieldNotSet          = errors.New("entity field is not set")
	ErrUnknownEntityType    = errors.New("unknown entity type")
	ErrInvalidEntityType    = errors.New("invalid entity type")
	ErrEntityNotPersistable = errors.New("entity not exists")
	ErrEntityValidation     = errors.New("failed to validate entity")
)

// FieldError records the first rule a field failed.
type FieldError struct {
	Rule   string `json:"rule" yaml:"rule"`
	Params []any  `json:"params,omitempty" yaml:"params,omitempty"`
}

// FieldErrors maps a field name to its failure.
type FieldErrors map[string]FieldError

// Fields returns the failing field names sorted.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for k := range fe {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidationError carries the entity type alias and per-field failures.
// errors.Is(err, ErrEntityValidation) matches it.
type ValidationError struct {
	Alias  string
	Errors FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, field := range e.Errors.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Errors[field].Rule))
	}
	return fmt.Sprintf("%s %s (%s)", ErrEntityValidation, e.Alias, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrEntityValidation
}
