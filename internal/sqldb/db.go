// Package sqldb executes larder statements against a database/sql
// connection. It renders INSERT, UPDATE, DELETE, and SELECT statements for
// the SQLite (modernc.org/sqlite) and Postgres (pgx) dialects and holds at
// most one transaction at a time.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// DatabaseFile is the SQLite file created inside the data directory.
const DatabaseFile = "larder.db"

// Connection errors.
var (
	ErrTxActive        = errors.New("transaction already active")
	ErrNoTx            = errors.New("no active transaction")
	ErrUnknownDialect  = errors.New("unknown sql dialect")
	ErrUnbalancedGroup = errors.New("unbalanced condition group")
	ErrInvalidOperator = errors.New("invalid condition operator")
	ErrInvalidQuery    = errors.New("invalid query")
)

// executor is the subset shared by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a database/sql handle with a dialect and an optional active
// transaction. Statements run inside the transaction while one is open.
type DB struct {
	db      *sql.DB
	dialect dialect
	tx      *sql.Tx
	logf    func(format string, args ...any)
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the function statements are logged through.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(d *DB) {
		if logf != nil {
			d.logf = logf
		}
	}
}

var sqlOpen = sql.Open

// Open connects to the backend described by cfg. For SQLite the DSN
// defaults to DatabaseFile inside cfg.DataDir, which is created if missing.
func Open(cfg types.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if cfg.Backend == types.BackendSQLite && dsn == "" {
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, DatabaseFile)
	}

	d, ok := dialects[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, cfg.Backend)
	}
	sqlDB, err := sqlOpen(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Backend, err)
	}
	if cfg.Backend == types.BackendSQLite {
		// One connection keeps the transaction and plain statements on the
		// same SQLite handle.
		sqlDB.SetMaxOpenConns(1)
	}
	return New(sqlDB, cfg.Backend, opts...)
}

// New wraps an existing handle for the named backend dialect.
func New(sqlDB *sql.DB, backend string, opts ...Option) (*DB, error) {
	d, ok := dialects[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, backend)
	}
	db := &DB{db: sqlDB, dialect: d, logf: func(string, ...any) {}}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close releases the connection, rolling back any open transaction.
func (d *DB) Close() error {
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	return d.db.Close()
}

// Backend returns the dialect name.
func (d *DB) Backend() string { return d.dialect.name }

// SQL exposes the underlying handle.
func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) exec() executor {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// Exec runs a raw statement on the current executor.
func (d *DB) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	d.logf("sql: %s %v", stmt, args)
	return d.exec().ExecContext(ctx, stmt, args...)
}

// ExecScript runs every semicolon-terminated statement in script in order.
func (d *DB) ExecScript(ctx context.Context, script string) error {
	for _, stmt := range splitStatements(script) {
		if _, err := d.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute script: %w", err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Begin opens a transaction. Returns ErrTxActive if one is already open.
func (d *DB) Begin(ctx context.Context) error {
	if d.tx != nil {
		return ErrTxActive
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	d.logf("sql: BEGIN")
	d.tx = tx
	return nil
}

// Commit commits the open transaction. Returns ErrNoTx if none is open.
// The transaction is released whether or not the commit succeeds.
func (d *DB) Commit(ctx context.Context) error {
	if d.tx == nil {
		return ErrNoTx
	}
	tx := d.tx
	d.tx = nil
	d.logf("sql: COMMIT")
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the open transaction. Returns ErrNoTx if none is open.
func (d *DB) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return ErrNoTx
	}
	tx := d.tx
	d.tx = nil
	d.logf("sql: ROLLBACK")
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (d *DB) InTransaction() bool { return d.tx != nil }

// Insert writes one row and returns the generated identifier.
func (d *DB) Insert(ctx context.Context, table string, columns []string, values []any) (any, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%w: %d columns, %d values", ErrInvalidQuery, len(columns), len(values))
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(table))
	if len(columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		ph := make([]string, len(values))
		for i := range values {
			ph[i] = d.dialect.placeholder(i + 1)
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)",
			strings.Join(quoteIdents(columns), ", "), strings.Join(ph, ", "))
	}

	if d.dialect.returning {
		b.WriteString(" RETURNING ")
		b.WriteString(quoteIdent(types.IDField))
		stmt := b.String()
		d.logf("sql: %s %v", stmt, values)
		var id any
		if err := d.exec().QueryRowContext(ctx, stmt, values...).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", table, err)
		}
		return id, nil
	}

	stmt := b.String()
	d.logf("sql: %s %v", stmt, values)
	res, err := d.exec().ExecContext(ctx, stmt, values...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert into %s: last insert id: %w", table, err)
	}
	return id, nil
}

// Update sets columns on the rows matching where and returns the number of
// affected rows.
func (d *DB) Update(ctx context.Context, table string, columns []string, values []any, where query.Condition) (int64, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return 0, fmt.Errorf("%w: %d columns, %d values", ErrInvalidQuery, len(columns), len(values))
	}
	args := append([]any(nil), values...)
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = quoteIdent(c) + " = " + d.dialect.placeholder(i+1)
	}
	cond, args, err := d.condition(where, args)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quoteIdent(table), strings.Join(sets, ", "), cond)
	return d.affected(ctx, "update "+table, stmt, args)
}

// Delete removes the rows matching where and returns the number of
// affected rows.
func (d *DB) Delete(ctx context.Context, table string, where query.Condition) (int64, error) {
	cond, args, err := d.condition(where, nil)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), cond)
	return d.affected(ctx, "delete from "+table, stmt, args)
}

func (d *DB) condition(c query.Condition, args []any) (string, []any, error) {
	var cb condBuilder
	cb.dialect = d.dialect
	cb.args = args
	s, err := cb.render(c.Column, c.Op, c.Value)
	if err != nil {
		return "", nil, err
	}
	return s, cb.args, nil
}

func (d *DB) affected(ctx context.Context, what, stmt string, args []any) (int64, error) {
	d.logf("sql: %s %v", stmt, args)
	res, err := d.exec().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", what, err)
	}
	return n, nil
}

// Select starts a SELECT on table.
func (d *DB) Select(table string) query.Select {
	return d.NewSelect(table)
}

// NewSelect is Select returning the concrete builder.
func (d *DB) NewSelect(table string) *Select {
	return &Select{db: d, table: table, limit: -1, offset: -1}
}
