// Package sqlstore implements C2 against database/sql for two drivers sharing one
// SQL layer: Postgres (github.com/lib/pq) for production and a pure-Go SQLite
// (modernc.org/sqlite) for local development and the test suite. Grounded on the
// teacher's sqlite package (internal/storage/sqlite), which defines a small execer
// interface satisfied by both *sql.DB and *sql.Tx so every query works unchanged
// inside or outside an explicit transaction.
package sqlstore

import "fmt"

// Dialect abstracts the syntax differences between the two backends: bind-variable
// style here, and boolean literals (falseLiteral/trueLiteral in assets.go). Both
// accept ON CONFLICT DO NOTHING, so the conflict clause is shared; the schema
// uses TEXT primary keys on both.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// ph returns the ith (1-based) bind placeholder for the dialect.
func (d Dialect) ph(i int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// phList returns n placeholders starting at offset+1, comma-joined, e.g. for an
// `IN (...)` clause.
func (d Dialect) phList(offset, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = d.ph(offset + i + 1)
	}
	return out
}

// rowPlaceholders returns "(<ph>,<ph>,...)" for one row of n columns, with bind
// numbering starting at paramStart+1 (used only for Postgres; ignored for SQLite's
// positional "?").
func (d Dialect) rowPlaceholders(paramStart, n int) string {
	parts := d.phList(paramStart, n)
	out := "("
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out + ")"
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}
