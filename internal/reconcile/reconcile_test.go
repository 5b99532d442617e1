package reconcile

import (
	"encoding/json"
	"errors"
	"testing"

	"ingest/internal/report"
	"ingest/internal/schema"
)

func TestParseType_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"bigint",
		"decimal(12,2)",
		"array<double>",
		"map<string,array<int>>",
		"struct<id:bigint,tags:map<string,string>>",
		"array<struct<a:timestamp,b:struct<c:boolean>>>",
		"struct<>",
	} {
		got, err := ParseType(s)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", s, err)
		}
		if got.String() != s {
			t.Errorf("ParseType(%q).String()=%q", s, got.String())
		}
	}
}

func TestParseType_Leniency(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"  BIGINT ":                "bigint",
		"varchar(255)":             "string",
		"geometry":                 "string",
		"decimal":                  "decimal(10,0)",
		"Array< Struct<x : int> >": "array<struct<x:int>>",
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil || got.String() != want {
			t.Errorf("ParseType(%q)=%q,%v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "array<int", "map<int>", "decimal(50,2)", "struct<a:int,a:int>", "int>"} {
		if _, err := ParseType(bad); err == nil {
			t.Errorf("ParseType(%q): expected error", bad)
		}
	}
}

func TestMerge_Rules(t *testing.T) {
	t.Parallel()

	cases := []struct{ a, b, want string }{
		{"int", "double", "double"},
		{"bigint", "float", "float"},
		{"int", "bigint", "bigint"},
		{"tinyint", "smallint", "int"},
		{"tinyint", "tinyint", "tinyint"},
		{"decimal(10,2)", "decimal(5,4)", "decimal(12,4)"},
		{"decimal(38,10)", "decimal(38,20)", "decimal(38,20)"},
		{"decimal(10,2)", "bigint", "bigint"},
		{"timestamp", "string", "timestamp"},
		{"date", "timestamp", "string"},
		{"boolean", "int", "string"},
		{"array<int>", "array<double>", "array<double>"},
		{"map<string,int>", "map<string,bigint>", "map<string,bigint>"},
		{"array<int>", "map<int,int>", "string"},
		{"struct<a:int,b:string>", "struct<b:timestamp,c:date>", "struct<a:int,b:timestamp,c:date>"},
	}
	for _, tc := range cases {
		got := Merge(MustParseType(tc.a), MustParseType(tc.b))
		if got.String() != tc.want {
			t.Errorf("Merge(%s,%s)=%s; want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

// pool covers every merge rule, including nested and conflicting types.
var pool = []string{
	"tinyint", "smallint", "int", "bigint", "float", "double",
	"decimal(10,2)", "decimal(20,8)", "decimal(38,30)",
	"boolean", "date", "timestamp", "string", "binary",
	"array<int>", "array<string>", "array<timestamp>",
	"map<string,int>", "map<string,double>",
	"struct<a:int>", "struct<a:string,b:date>", "struct<b:timestamp>",
}

func TestMerge_CommutativeAndAssociative(t *testing.T) {
	t.Parallel()

	types := make([]Type, len(pool))
	for i, s := range pool {
		types[i] = MustParseType(s)
	}
	for _, a := range types {
		for _, b := range types {
			if ab, ba := Merge(a, b), Merge(b, a); !Equal(ab, ba) {
				t.Fatalf("Merge(%s,%s)=%s but Merge(%s,%s)=%s", a, b, ab, b, a, ba)
			}
			for _, c := range types {
				left := Merge(Merge(a, b), c)
				right := Merge(a, Merge(b, c))
				if !Equal(left, right) {
					t.Fatalf("(%s∨%s)∨%s=%s but %s∨(%s∨%s)=%s", a, b, c, left, a, b, c, right)
				}
			}
		}
	}
}

func TestMerge_DoesNotMutateOperands(t *testing.T) {
	t.Parallel()

	a := MustParseType("struct<x:int>")
	b := MustParseType("struct<x:double,y:string>")
	_ = Merge(a, b)
	if a.String() != "struct<x:int>" || b.String() != "struct<x:double,y:string>" {
		t.Fatalf("operands changed: %s %s", a, b)
	}
}

//
// ---- MergeSchemas -----------------------------------------------------------
//

// TestMergeSchemas_IntAndDouble is the two-file amt case: int and double
// merge to double.
func TestMergeSchemas_IntAndDouble(t *testing.T) {
	t.Parallel()

	out, err := MergeSchemas([]Schema{
		ParseSchemaJSON("a.parquet", []byte(`{"amt":"int"}`)),
		ParseSchemaJSON("b.parquet", []byte(`{"amt":"double"}`)),
	})
	if err != nil {
		t.Fatalf("MergeSchemas: %v", err)
	}
	if got := out.Map()["amt"]; got != "double" || out.Status != report.Success || out.Files != 2 {
		t.Fatalf("out=%+v", out)
	}
}

func TestMergeSchemas_OrderAndUnmatched(t *testing.T) {
	t.Parallel()

	out, err := MergeSchemas([]Schema{
		ParseSchemaJSON("1", []byte(`{"id":"bigint","when":"string"}`)),
		ParseSchemaJSON("2", []byte(`[{"name":"extra","type":"boolean"},{"name":"when","type":"timestamp"}]`)),
	})
	if err != nil {
		t.Fatalf("MergeSchemas: %v", err)
	}
	names := []string{}
	for _, c := range out.Columns {
		names = append(names, c.Name)
	}
	if len(names) != 3 || names[0] != "id" || names[1] != "when" || names[2] != "extra" {
		t.Fatalf("names=%v", names)
	}
	if w, _ := out.Lookup("when"); w.Kind != Timestamp {
		t.Fatalf("when=%s", w)
	}
}

func TestMergeSchemas_OrderIndependent(t *testing.T) {
	t.Parallel()

	s1 := ParseSchemaJSON("1", []byte(`{"a":"int","b":"string"}`))
	s2 := ParseSchemaJSON("2", []byte(`{"b":"timestamp","c":"date"}`))
	s3 := ParseSchemaJSON("3", []byte(`{"a":"double","c":"int"}`))
	perms := [][]Schema{{s1, s2, s3}, {s3, s2, s1}, {s2, s1, s3}, {s2, s3, s1}}

	first, err := MergeSchemas(perms[0])
	if err != nil {
		t.Fatalf("MergeSchemas: %v", err)
	}
	for _, p := range perms[1:] {
		got, err := MergeSchemas(p)
		if err != nil {
			t.Fatalf("MergeSchemas: %v", err)
		}
		if !EqualColumns(first.Columns, got.Columns) {
			t.Fatalf("%v != %v", first.Map(), got.Map())
		}
	}
}

func TestMergeSchemas_Unreadable(t *testing.T) {
	t.Parallel()

	bad := ParseSchemaJSON("broken.parquet", []byte(`{"a":`))
	if bad.Err == nil {
		t.Fatalf("expected parse error")
	}
	out, err := MergeSchemas([]Schema{bad, ParseSchemaJSON("ok", []byte(`{"a":"int"}`))})
	if err != nil || out.Status != report.Warning || len(out.Skipped) != 1 || out.Files != 1 {
		t.Fatalf("out=%+v err=%v", out, err)
	}

	out, err = MergeSchemas([]Schema{bad})
	if !errors.Is(err, ErrNoReadableSchema) || out.Status != report.Failed {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if _, err := MergeSchemas(nil); !errors.Is(err, ErrNoReadableSchema) {
		t.Fatalf("nil input err=%v", err)
	}
}

func TestFromInferred(t *testing.T) {
	t.Parallel()

	s := schema.MustNew(
		schema.Column{Name: "n", Type: schema.Int},
		schema.Column{Name: "x", Type: schema.Float},
		schema.Column{Name: "t", Type: schema.Datetime},
		schema.Column{Name: "s", Type: schema.String},
	)
	got := FromInferred("f", s)
	want := []string{"bigint", "double", "timestamp", "string"}
	for i, c := range got.Columns {
		if c.Type.String() != want[i] {
			t.Errorf("column %s=%s; want %s", c.Name, c.Type, want[i])
		}
	}
}

func TestReconciledSchema_JSON(t *testing.T) {
	t.Parallel()

	out, err := MergeSchemas([]Schema{ParseSchemaJSON("1", []byte(`{"tags":"array<int>"}`))})
	if err != nil {
		t.Fatalf("MergeSchemas: %v", err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"columns":[{"name":"tags","type":"array<int>"}],"files":1,"status":"success","reason":"merged 1 schemas"}`
	if string(b) != want {
		t.Fatalf("json=%s", b)
	}
}
