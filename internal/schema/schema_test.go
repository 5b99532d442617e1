package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestParseType_Synonyms checks that declared storage names collapse onto the
// four semantic types and that unknown names fall back to string.
func TestParseType_Synonyms(t *testing.T) {
	t.Parallel()

	cases := map[string]Type{
		"int":       Int,
		"INTEGER":   Int,
		" bigint ":  Int,
		"smallint":  Int,
		"float":     Float,
		"Double":    Float,
		"decimal":   Float,
		"real":      Float,
		"datetime":  Datetime,
		"timestamp": Datetime,
		"date":      Datetime,
		"string":    String,
		"varchar":   String,
		"":          String,
		"geometry":  String,
	}
	for in, want := range cases {
		if got := ParseType(in); got != want {
			t.Errorf("ParseType(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestNormalizeColumnName(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"  Order ID ", "order_id"},
		{"Amount", "amount"},
		{"first   name", "first_name"},
		{"tab\tsep", "tab_sep"},
		{"Café", "café"},
		{"already_ok", "already_ok"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeColumnName(tc.in); got != tc.want {
			t.Errorf("NormalizeColumnName(%q)=%q; want %q", tc.in, got, tc.want)
		}
	}
}

// TestNormalizeNames_Collision ensures colliding headers are reported, not
// silently renamed.
func TestNormalizeNames_Collision(t *testing.T) {
	t.Parallel()

	names, err := NormalizeNames([]string{"Name", "name ", "Age"})
	if err == nil {
		t.Fatalf("expected collision error")
	}
	var ce *CollisionError
	if !errors.As(err, &ce) {
		t.Fatalf("error type %T; want *CollisionError", err)
	}
	if got := ce.Collisions["name"]; len(got) != 2 {
		t.Fatalf("collisions[name]=%v; want two origins", got)
	}
	if names[0] != "name" || names[1] != "name" || names[2] != "age" {
		t.Fatalf("names=%v", names)
	}

	if _, err := NormalizeNames([]string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIdentifier(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"Žluťoučký kůň", "zlutoucky_kun"},
		{"sales-2024.v2", "sales_2024_v2"},
		{"***", "col"},
	}
	for _, tc := range cases {
		if got := Identifier(tc.in); got != tc.want {
			t.Errorf("Identifier(%q)=%q; want %q", tc.in, got, tc.want)
		}
	}
	long := ""
	for i := 0; i < 80; i++ {
		long += "a"
	}
	if got := Identifier(long); len(got) != 63 {
		t.Fatalf("len(Identifier(long))=%d; want 63", len(got))
	}
}

func TestSchema_OrderAndJSON(t *testing.T) {
	t.Parallel()

	s := MustNew(Column{"b", Int}, Column{"a", Datetime})
	if err := s.Add("b", String); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if got := s.Names(); got[0] != "b" || got[1] != "a" {
		t.Fatalf("order=%v", got)
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `[{"name":"b","type":"int"},{"name":"a","type":"datetime"}]`; string(b) != want {
		t.Fatalf("json=%s; want %s", b, want)
	}

	var fromObj Schema
	if err := json.Unmarshal([]byte(`{"amt":"bigint","ts":"timestamp"}`), &fromObj); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if typ, _ := fromObj.Lookup("amt"); typ != Int {
		t.Fatalf("amt=%q; want int", typ)
	}
	if typ, _ := fromObj.Lookup("ts"); typ != Datetime {
		t.Fatalf("ts=%q; want datetime", typ)
	}
}

func TestSchema_UnmarshalObjectKeepsOrder(t *testing.T) {
	t.Parallel()

	var s Schema
	if err := json.Unmarshal([]byte(`{"b":"int", "a":"string", "c":"date"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := strings.Join(s.Names(), ","); got != "b,a,c" {
		t.Fatalf("order=%s; want b,a,c", got)
	}

	for _, bad := range []string{`{"a":"int","a":"string"}`, `{"a":1}`, `"a"`} {
		var s Schema
		if err := json.Unmarshal([]byte(bad), &s); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}
