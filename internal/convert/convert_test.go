package convert

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	"ingest/internal/parser"
	"ingest/internal/probe"
)

const payload = "id,amt\n1,2\n3,4\n"

// compressors build a compressed copy of payload per suffix.
var compressors = map[string]func(w io.Writer) (io.WriteCloser, error){
	".gz": func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
	".zst": func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	},
	".xz": func(w io.Writer) (io.WriteCloser, error) { return xz.NewWriter(w) },
}

func TestDecompress_Formats(t *testing.T) {
	t.Parallel()

	for suffix, mk := range compressors {
		var buf bytes.Buffer
		zw, err := mk(&buf)
		if err != nil {
			t.Fatalf("%s writer: %v", suffix, err)
		}
		if _, err := zw.Write([]byte(payload)); err != nil {
			t.Fatalf("%s write: %v", suffix, err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("%s close: %v", suffix, err)
		}

		got, err := ReadAll("sales_orders.csv"+suffix, &buf, 0)
		if err != nil {
			t.Fatalf("%s ReadAll: %v", suffix, err)
		}
		if string(got) != payload {
			t.Fatalf("%s payload=%q", suffix, got)
		}
	}
}

func TestDecompress_PlainAndLimit(t *testing.T) {
	t.Parallel()

	got, err := ReadAll("x_y.csv", strings.NewReader(payload), 0)
	if err != nil || string(got) != payload {
		t.Fatalf("plain=%q err=%v", got, err)
	}
	if _, err := ReadAll("x_y.csv", strings.NewReader(payload), 4); err == nil {
		t.Fatalf("expected size limit error")
	}
	if _, err := ReadAll("x_y.csv.gz", strings.NewReader("not gzip"), 0); err == nil {
		t.Fatalf("expected gzip header error")
	}
}

func TestJSONToNDJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
		err      bool
	}{
		{`[ {"a": 1}, {"a": 2, "b": {"c": [1, 2]}} ]`, "{\"a\":1}\n{\"a\":2,\"b\":{\"c\":[1,2]}}\n", false},
		{`{ "a" : "x" }`, "{\"a\":\"x\"}\n", false},
		{`[]`, "", false},
		{`[1, 2]`, "", true},
		{`"text"`, "", true},
		{`[{"a":1},`, "", true},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		err := JSONToNDJSON(&buf, []byte(tc.in))
		if (err != nil) != tc.err {
			t.Fatalf("JSONToNDJSON(%s) err=%v", tc.in, err)
		}
		if !tc.err && buf.String() != tc.want {
			t.Fatalf("JSONToNDJSON(%s)=%q; want %q", tc.in, buf.String(), tc.want)
		}
	}
}

func TestDelimitedToCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := DelimitedToCSV(&buf, strings.NewReader("a;b\n1,5;x\n"), ';'); err != nil {
		t.Fatalf("DelimitedToCSV: %v", err)
	}
	if buf.String() != "a,b\n\"1,5\",x\n" {
		t.Fatalf("csv=%q", buf.String())
	}
}

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{{"id", "name", "note"}, {1, "x"}, {2, "y", "z"}}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

// TestXLSXToCSV skips the two blank leading rows and pads the short row.
func TestXLSXToCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := XLSXToCSV(&buf, workbook(t), ""); err != nil {
		t.Fatalf("XLSXToCSV: %v", err)
	}
	if buf.String() != "id,name,note\n1,x,\n2,y,z\n" {
		t.Fatalf("csv=%q", buf.String())
	}
	if err := XLSXToCSV(io.Discard, workbook(t), "Missing"); err == nil {
		t.Fatalf("expected unknown sheet error")
	}
}

func TestConverter_Dispatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		file, body string
		format     parser.Format
		want       string
	}{
		{"s_o.csv", "a,b\n1,2\n", parser.CSV, "a,b\n1,2\n"},
		{"s_o.txt", "a|b\n1|2\n", parser.CSV, "a,b\n1,2\n"},
		{"s_o.ndjson", "{\"a\":1}\n", parser.NDJSON, "{\"a\":1}\n"},
		{"s_o.json", `[{"a":1},{"a":2}]`, parser.NDJSON, "{\"a\":1}\n{\"a\":2}\n"},
	}
	for _, tc := range cases {
		res := probe.Classify([]byte(tc.body), tc.file)
		out, err := Converter{}.Convert(res, []byte(tc.body))
		if err != nil {
			t.Fatalf("%s: Convert: %v", tc.file, err)
		}
		if out.Format != tc.format || string(out.Body) != tc.want {
			t.Fatalf("%s: got %s %q", tc.file, out.Format, out.Body)
		}
	}

	xl := workbook(t)
	out, err := Converter{}.Convert(probe.Classify(xl, "hr_people.xlsx"), xl)
	if err != nil || out.Format != parser.CSV || !strings.HasPrefix(string(out.Body), "id,name,note\n") {
		t.Fatalf("excel: %s %q %v", out.Format, out.Body, err)
	}

	empty := probe.Classify([]byte("[]"), "s_o.json")
	if _, err := (Converter{}).Convert(empty, []byte("[]")); !errors.Is(err, ErrNotConvertible) {
		t.Fatalf("empty array err=%v", err)
	}
}
