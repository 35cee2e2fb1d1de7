package sqldb

import (
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// dialect captures the SQL differences between supported backends.
type dialect struct {
	name   string
	driver string

	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
	// INSERT ... RETURNING id instead of LastInsertId.
	returning bool
	// OFFSET requires a LIMIT clause.
	offsetNeedsLimit bool
}

var dialects = map[string]dialect{
	types.BackendSQLite: {
		name:             types.BackendSQLite,
		driver:           "sqlite",
		offsetNeedsLimit: true,
	},
	types.BackendPostgres: {
		name:      types.BackendPostgres,
		driver:    "pgx",
		numbered:  true,
		returning: true,
	},
}

func (d dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// quoteIdent quotes a column or table reference. Dotted references are
// quoted per part; anything that looks like an expression is passed through.
func quoteIdent(name string) string {
	if name == "*" || strings.ContainsAny(name, "() ") {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

// operators accepted in WHERE and HAVING conditions.
var operators = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "NOT LIKE": true, "IN": true, "NOT IN": true,
	"IS": true, "IS NOT": true, "BETWEEN": true,
}

// joinKinds accepted by Join.
var joinKinds = map[string]bool{
	"": true, "INNER": true, "LEFT": true, "LEFT OUTER": true,
	"RIGHT": true, "RIGHT OUTER": true, "FULL": true, "FULL OUTER": true, "CROSS": true,
}
