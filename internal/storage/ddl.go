package storage

import (
	"context"
	"fmt"
	"strings"

	"ingest/internal/reconcile"
)

// Dialect names the SQL flavor DDL is rendered for. Its values match the
// registered backend kinds.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	MSSQL    Dialect = "mssql"
	MySQL    Dialect = "mysql"
)

// ColumnDef is one rendered column.
type ColumnDef struct {
	Name    string
	SQLType string
}

// TableDef is a table ready to render.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// TableFor maps reconciled columns onto d's types. Every column is nullable.
func TableFor(d Dialect, table string, cols []reconcile.Column) (TableDef, error) {
	if _, ok := sqlTypes[d]; !ok {
		return TableDef{}, fmt.Errorf("storage: no DDL for dialect %q", d)
	}
	td := TableDef{Name: table, Columns: make([]ColumnDef, len(cols))}
	for i, c := range cols {
		td.Columns[i] = ColumnDef{Name: c.Name, SQLType: SQLType(d, c.Type)}
	}
	return td, nil
}

// CreateTableSQL renders an idempotent CREATE TABLE for a reconciled schema.
func CreateTableSQL(d Dialect, table string, cols []reconcile.Column) (string, error) {
	td, err := TableFor(d, table, cols)
	if err != nil {
		return "", err
	}
	return BuildCreateTableSQL(d, td)
}

// BuildCreateTableSQL renders td with d's quoting and existence guard.
func BuildCreateTableSQL(d Dialect, td TableDef) (string, error) {
	name := strings.TrimSpace(td.Name)
	if name == "" {
		return "", fmt.Errorf("storage: table name must not be empty")
	}
	if len(td.Columns) == 0 {
		return "", fmt.Errorf("storage: table %s has no columns", name)
	}
	defs := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("storage: column %d of %s has no name", i, name)
		}
		if strings.TrimSpace(c.SQLType) == "" {
			return "", fmt.Errorf("storage: column %s missing SQL type", c.Name)
		}
		defs[i] = QuoteIdent(d, c.Name) + " " + c.SQLType
	}
	body := strings.Join(defs, ",\n  ")
	fqn := QuoteFQN(d, name)

	if d == MSSQL {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n  %s\n);",
			strings.ReplaceAll(name, "'", "''"), fqn, body), nil
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", fqn, body), nil
}

// EnsureTable creates the table for cols if it does not exist yet.
func EnsureTable(ctx context.Context, repo Repository, d Dialect, table string, cols []reconcile.Column) error {
	stmt, err := CreateTableSQL(d, table, cols)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("storage: create %s: %w", table, err)
	}
	return nil
}

// QuoteIdent quotes one identifier for d, doubling embedded quote runes.
func QuoteIdent(d Dialect, name string) string {
	switch d {
	case MSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QuoteFQN quotes each dot-separated part of a possibly schema-qualified name.
func QuoteFQN(d Dialect, fqn string) string {
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(d, strings.TrimSpace(p))
	}
	return strings.Join(parts, ".")
}

// QuoteAll quotes each name for d.
func QuoteAll(d Dialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdent(d, n)
	}
	return out
}

// sqlTypes maps kinds per dialect. A kind missing from a dialect's map is
// stored as that dialect's string type.
var sqlTypes = map[Dialect]map[reconcile.Kind]string{
	Postgres: {
		reconcile.String:    "TEXT",
		reconcile.TinyInt:   "SMALLINT",
		reconcile.SmallInt:  "SMALLINT",
		reconcile.Int:       "INTEGER",
		reconcile.BigInt:    "BIGINT",
		reconcile.Float:     "REAL",
		reconcile.Double:    "DOUBLE PRECISION",
		reconcile.Boolean:   "BOOLEAN",
		reconcile.Date:      "DATE",
		reconcile.Timestamp: "TIMESTAMPTZ",
		reconcile.Binary:    "BYTEA",
		reconcile.Array:     "JSONB",
		reconcile.Map:       "JSONB",
		reconcile.Struct:    "JSONB",
	},
	SQLite: {
		reconcile.String:    "TEXT",
		reconcile.TinyInt:   "INTEGER",
		reconcile.SmallInt:  "INTEGER",
		reconcile.Int:       "INTEGER",
		reconcile.BigInt:    "INTEGER",
		reconcile.Float:     "REAL",
		reconcile.Double:    "REAL",
		reconcile.Decimal:   "NUMERIC",
		reconcile.Boolean:   "INTEGER",
		reconcile.Date:      "TEXT",
		reconcile.Timestamp: "TEXT",
		reconcile.Binary:    "BLOB",
	},
	MSSQL: {
		reconcile.String:    "NVARCHAR(MAX)",
		reconcile.TinyInt:   "TINYINT",
		reconcile.SmallInt:  "SMALLINT",
		reconcile.Int:       "INT",
		reconcile.BigInt:    "BIGINT",
		reconcile.Float:     "REAL",
		reconcile.Double:    "FLOAT",
		reconcile.Boolean:   "BIT",
		reconcile.Date:      "DATE",
		reconcile.Timestamp: "DATETIME2",
		reconcile.Binary:    "VARBINARY(MAX)",
	},
	MySQL: {
		reconcile.String:    "LONGTEXT",
		reconcile.TinyInt:   "TINYINT",
		reconcile.SmallInt:  "SMALLINT",
		reconcile.Int:       "INT",
		reconcile.BigInt:    "BIGINT",
		reconcile.Float:     "FLOAT",
		reconcile.Double:    "DOUBLE",
		reconcile.Boolean:   "BOOLEAN",
		reconcile.Date:      "DATE",
		reconcile.Timestamp: "DATETIME(3)",
		reconcile.Binary:    "LONGBLOB",
		reconcile.Array:     "JSON",
		reconcile.Map:       "JSON",
		reconcile.Struct:    "JSON",
	},
}

// SQLType renders t as a column type of d.
func SQLType(d Dialect, t reconcile.Type) string {
	types := sqlTypes[d]
	if t.Kind == reconcile.Decimal {
		switch d {
		case Postgres:
			return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
		case MSSQL, MySQL:
			return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
		}
	}
	if s, ok := types[t.Kind]; ok {
		return s
	}
	return types[reconcile.String]
}
