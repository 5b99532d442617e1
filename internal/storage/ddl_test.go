package storage

import (
	"context"
	"strings"
	"testing"

	"ingest/internal/reconcile"
)

func cols(t *testing.T, pairs ...string) []reconcile.Column {
	t.Helper()
	out := make([]reconcile.Column, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, reconcile.Column{Name: pairs[i], Type: reconcile.MustParseType(pairs[i+1])})
	}
	return out
}

func TestSQLType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    Dialect
		typ  string
		want string
	}{
		{Postgres, "bigint", "BIGINT"},
		{Postgres, "double", "DOUBLE PRECISION"},
		{Postgres, "timestamp", "TIMESTAMPTZ"},
		{Postgres, "decimal(12,2)", "NUMERIC(12,2)"},
		{Postgres, "array<int>", "JSONB"},
		{SQLite, "decimal(12,2)", "NUMERIC"},
		{SQLite, "struct<a:int>", "TEXT"},
		{MSSQL, "string", "NVARCHAR(MAX)"},
		{MSSQL, "map<string,int>", "NVARCHAR(MAX)"},
		{MSSQL, "decimal(38,4)", "DECIMAL(38,4)"},
		{MySQL, "timestamp", "DATETIME(3)"},
		{MySQL, "boolean", "BOOLEAN"},
	}
	for _, tc := range tests {
		if got := SQLType(tc.d, reconcile.MustParseType(tc.typ)); got != tc.want {
			t.Errorf("SQLType(%s, %s)=%q, want %q", tc.d, tc.typ, got, tc.want)
		}
	}
}

// TestSQLType_Conflict checks an irreconcilable merge lands on the string type.
func TestSQLType_Conflict(t *testing.T) {
	t.Parallel()

	merged := reconcile.Merge(reconcile.MustParseType("array<int>"), reconcile.MustParseType("int"))
	if got := SQLType(Postgres, merged); got != "TEXT" {
		t.Fatalf("got %q", got)
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	c := cols(t, "id", "bigint", "amount", "double", "seen_at", "timestamp")

	pg, err := CreateTableSQL(Postgres, "public.icg_a_b_dev", c)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"public\".\"icg_a_b_dev\" (\n" +
		"  \"id\" BIGINT,\n  \"amount\" DOUBLE PRECISION,\n  \"seen_at\" TIMESTAMPTZ\n);"
	if pg != want {
		t.Fatalf("postgres:\n%s\nwant:\n%s", pg, want)
	}

	ms, err := CreateTableSQL(MSSQL, "dbo.t", c)
	if err != nil {
		t.Fatalf("mssql: %v", err)
	}
	if !strings.HasPrefix(ms, "IF OBJECT_ID(N'dbo.t', N'U') IS NULL") || !strings.Contains(ms, "[dbo].[t]") ||
		!strings.Contains(ms, "[seen_at] DATETIME2") {
		t.Fatalf("mssql:\n%s", ms)
	}

	my, err := CreateTableSQL(MySQL, "t", c)
	if err != nil {
		t.Fatalf("mysql: %v", err)
	}
	if !strings.Contains(my, "`amount` DOUBLE") {
		t.Fatalf("mysql:\n%s", my)
	}
}

func TestCreateTableSQL_Errors(t *testing.T) {
	t.Parallel()

	if _, err := CreateTableSQL("oracle", "t", cols(t, "a", "int")); err == nil {
		t.Error("unknown dialect: expected error")
	}
	if _, err := CreateTableSQL(Postgres, " ", cols(t, "a", "int")); err == nil {
		t.Error("empty name: expected error")
	}
	if _, err := CreateTableSQL(Postgres, "t", nil); err == nil {
		t.Error("no columns: expected error")
	}
	if _, err := BuildCreateTableSQL(SQLite, TableDef{Name: "t", Columns: []ColumnDef{{Name: "a"}}}); err == nil {
		t.Error("missing type: expected error")
	}
}

func TestQuoteIdent_Escapes(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent(Postgres, `we"ird`); got != `"we""ird"` {
		t.Errorf("postgres: %s", got)
	}
	if got := QuoteIdent(MSSQL, "a]b"); got != "[a]]b]" {
		t.Errorf("mssql: %s", got)
	}
	if got := QuoteIdent(MySQL, "a`b"); got != "`a``b`" {
		t.Errorf("mysql: %s", got)
	}
}

func TestEnsureTable_Execs(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	if err := EnsureTable(context.Background(), repo, SQLite, "t", cols(t, "a", "int")); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if len(repo.stmts) != 1 || !strings.Contains(repo.stmts[0], `"a" INTEGER`) {
		t.Fatalf("stmts=%v", repo.stmts)
	}
}
