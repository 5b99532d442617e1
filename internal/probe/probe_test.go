// Package probe contains unit tests for file classification: delimiter
// sniffing, file-name routing metadata, JSON shape detection and readiness.
package probe

import (
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

//
// ---- SniffDelimiter ---------------------------------------------------------
//

func TestSniffDelimiter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		want  rune
		found bool
	}{
		{"a,b,c\n1,2,3\n", ',', true},
		{"a;b;c\n1;2;3\n", ';', true},
		{"a\tb\n1\t2\n", '\t', true},
		{"a|b|c\n", '|', true},
		{"a,b;c;d\n", ';', true},
		{"a,b;c\n", ',', true}, // tie keeps the earlier candidate
		{"plain words\n", ',', false},
	}
	for _, tc := range cases {
		got, found := SniffDelimiter([]byte(tc.in))
		if got != tc.want || found != tc.found {
			t.Errorf("SniffDelimiter(%q)=%q,%v; want %q,%v", tc.in, got, found, tc.want, tc.found)
		}
	}
}

// TestSniffDelimiter_BoundedSample ensures delimiters beyond the first
// SniffBytes do not influence the vote.
func TestSniffDelimiter_BoundedSample(t *testing.T) {
	t.Parallel()

	head := strings.Repeat("a;b\n", SniffBytes/4)
	tail := strings.Repeat(",,,,,,,,", 5000)
	got, _ := SniffDelimiter([]byte(head + tail))
	if got != ';' {
		t.Fatalf("got %q; want ';'", got)
	}
}

func TestDecodeDelimiter(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]rune{"": ',', ";": ';', `\t`: '\t', "tab": '\t', "|x": '|'} {
		if got := DecodeDelimiter(in); got != want {
			t.Errorf("DecodeDelimiter(%q)=%q; want %q", in, got, want)
		}
	}
}

//
// ---- NameParts -------------------------------------------------------------
//

func TestNameParts(t *testing.T) {
	t.Parallel()

	str := func(p *string) string {
		if p == nil {
			return "<nil>"
		}
		return *p
	}
	cases := []struct {
		in                   string
		domain, dataset, opt string
	}{
		{"sales.csv", "<nil>", "<nil>", "<nil>"},
		{"sales_orders.csv", "sales", "orders", "<nil>"},
		{"in/sales_orders_2024_q1.csv.gz", "sales", "orders", "2024_q1"},
		{"HR_people.xlsx", "HR", "people", "<nil>"},
		{"sales_.csv", "<nil>", "<nil>", "<nil>"},
	}
	for _, tc := range cases {
		d, s, q := NameParts(tc.in)
		if str(d) != tc.domain || str(s) != tc.dataset || str(q) != tc.opt {
			t.Errorf("NameParts(%q)=(%s,%s,%s); want (%s,%s,%s)", tc.in, str(d), str(s), str(q), tc.domain, tc.dataset, tc.opt)
		}
	}
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	stem, ext, comp := SplitName(`dir\Sales_Orders.CSV.zst`)
	if stem != "Sales_Orders" || ext != ".csv" || comp != ".zst" {
		t.Fatalf("SplitName=(%q,%q,%q)", stem, ext, comp)
	}
}

//
// ---- Classify ---------------------------------------------------------------
//

/*
TestClassify_Table covers every documented outcome:
  - delimited text with comma vs other delimiters, and forced tab for .tsv,
  - NDJSON valid vs invalid,
  - JSON object, array of objects, empty array, array of scalars, broken JSON,
  - unsupported extension and empty content,
  - readiness gated on both file-name parts.
*/
func TestClassify_Table(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		file     string
		body     string
		status   Status
		fileType FileType
		ready    bool
	}{
		{"csv comma", "sales_orders.csv", "id,amt\n1,2\n", StatusSuccess, FileCSV, true},
		{"csv semicolon", "sales_orders.csv", "id;amt\n1;2\n", StatusSuccess, FileDelimitedText, true},
		{"tsv forced", "sales_orders.tsv", "id,x\tamt\n1,y\t2\n", StatusSuccess, FileDelimitedText, true},
		{"txt pipe", "sales_orders.txt", "id|amt\n1|2\n", StatusSuccess, FileDelimitedText, true},
		{"txt prose", "sales_orders.txt", "just some words\n", StatusFailed, FileTextUnstructured, false},
		{"csv one segment", "sales.csv", "id,amt\n1,2\n", StatusWarning, FileCSV, false},
		{"ndjson ok", "web_events.ndjson", "{\"a\":1}\n{\"a\":2,\"b\":3}\n", StatusSuccess, FileJSONL, true},
		{"ndjson bad", "web_events.ndjson", "{\"a\":1}\nnope\n", StatusFailed, FileJSONLInvalid, false},
		{"json object", "crm_account.json", `{"id":1,"name":"x"}`, StatusSuccess, FileJSONObject, true},
		{"json array", "crm_accounts.json", `[{"id":1},{"id":2,"n":"x"}]`, StatusWarning, FileJSONArray, true},
		{"json empty array", "crm_accounts.json", `[]`, StatusWarning, FileJSONArrayEmpty, false},
		{"json scalars", "crm_accounts.json", `[1,2,3]`, StatusFailed, FileJSONUnstructuredArray, false},
		{"json broken", "crm_accounts.json", `{"id":`, StatusFailed, FileJSONInvalid, false},
		{"unsupported", "crm_accounts.parquet", "PAR1", StatusFailed, FileUnsupported, false},
		{"legacy workbook", "hr_people.xls", "\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1", StatusFailed, FileUnsupported, false},
		{"empty", "crm_accounts.csv", "  \n", StatusFailed, "", false},
		{"bad utf8", "crm_accounts.csv", "a,b\n\xff\xfe,1\n", StatusFailed, FileTextUnstructured, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := Classify([]byte(tc.body), tc.file)
			if res.Status != tc.status || res.FileType != tc.fileType || res.Ready != tc.ready {
				t.Fatalf("Classify=%s/%s ready=%v (reason %q); want %s/%s ready=%v",
					res.Status, res.FileType, res.Ready, res.Reason, tc.status, tc.fileType, tc.ready)
			}
			if res.Reason == "" {
				t.Fatalf("reason must always be set")
			}
		})
	}
}

func TestClassify_ColumnsAndFormat(t *testing.T) {
	t.Parallel()

	res := Classify([]byte("\uFEFFId, Amount\n1,2\n3,4\n"), "sales_orders_2024.csv")
	if got := strings.Join(res.Columns, "|"); got != "Id|Amount" {
		t.Fatalf("columns=%q", got)
	}
	if res.SampleRows != 2 || res.Format != "csv" || res.Delimiter != "," {
		t.Fatalf("res=%+v", res)
	}
	if res.Qualifier == nil || *res.Qualifier != "2024" {
		t.Fatalf("qualifier=%v", res.Qualifier)
	}

	arr := Classify([]byte(`[{"b":1,"a":2},{"c":3}]`), "x_y.json")
	if got := strings.Join(arr.Columns, ","); got != "b,a,c" || !arr.Convertible || arr.Format != "json_array" {
		t.Fatalf("array result=%+v", arr)
	}
}

// TestClassify_Excel builds a small workbook in memory and checks the sheet
// list and header row are reported.
func TestClassify_Excel(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"id", "name"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{1, "x"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	res := Classify(buf.Bytes(), "hr_people.xlsx")
	if res.Status != StatusSuccess || res.FileType != FileExcel || !res.Ready || !res.Convertible {
		t.Fatalf("res=%+v", res)
	}
	if len(res.Sheets) != 1 || strings.Join(res.Columns, ",") != "id,name" || res.SampleRows != 1 {
		t.Fatalf("sheets=%v columns=%v rows=%d", res.Sheets, res.Columns, res.SampleRows)
	}

	broken := Classify([]byte("not a zip"), "hr_people.xlsx")
	if broken.Status != StatusFailed {
		t.Fatalf("broken workbook status=%s", broken.Status)
	}
}
