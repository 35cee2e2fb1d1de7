// Package orm provides the read and write paths over registered entity
// types: Repository builds deferred SELECTs and hydrates entities, Manager
// queues entities and flushes them as a unit of work.
package orm

import (
	"context"
	"errors"
	"time"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Configuration errors returned by NewManager.
var (
	ErrUnknownRule   = errors.New("unknown validation rule")
	ErrUnknownFilter = errors.New("unknown filter")
)

// Conn is the SQL execution layer. It holds at most one transaction; every
// statement issued while one is open runs inside it.
type Conn interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Insert writes one row and returns the generated identifier.
	Insert(ctx context.Context, table string, columns []string, values []any) (any, error)
	// Update and Delete return the number of affected rows.
	Update(ctx context.Context, table string, columns []string, values []any, where query.Condition) (int64, error)
	Delete(ctx context.Context, table string, where query.Condition) (int64, error)

	// Select starts a SELECT on table.
	Select(table string) query.Select
}

// Validator checks field data against named rules. A nil or empty result
// means the data is valid.
type Validator interface {
	HasRule(name string) bool
	Check(data map[string]any, rules map[string][]types.RuleSpec) types.FieldErrors
}

// FilterRunner invokes named filters with bound arguments.
type FilterRunner interface {
	HasFilter(name string) bool
	RunFilter(name string, args []any) (any, error)
}

// Observer records the outcome and duration of flush operations. The
// operation is one of "flush", "insert", "update", "delete", "rollback".
type Observer interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) Observe(context.Context, string, bool, time.Duration) {}

func nopLogf(string, ...any) {}
