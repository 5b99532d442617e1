// Package probe classifies an input payload by name and content: its file
// type, delimiter, whether it is tabular, and the routing metadata carried
// in the file name.
//
// Classify never panics and never returns an error. Every outcome, including
// undecodable bytes and broken JSON, is a Result with a status and a reason.
package probe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	csvparser "ingest/internal/parser/csv"
	jsonparser "ingest/internal/parser/json"
	"ingest/internal/report"
)

// Status is the shared outcome discriminator.
type Status = report.Status

const (
	StatusSuccess = report.Success
	StatusWarning = report.Warning
	StatusFailed  = report.Failed
)

// Tabularity buckets a payload by how much work stands between it and a
// delimited table.
type Tabularity string

const (
	Tabular     Tabularity = "tabular"
	SemiTabular Tabularity = "semi_tabular"
	NonTabular  Tabularity = "non_tabular"
)

// FileType is the detected content shape.
type FileType string

const (
	FileCSV                   FileType = "csv"
	FileDelimitedText         FileType = "delimited_text"
	FileTextUnstructured      FileType = "text_unstructured"
	FileJSONL                 FileType = "jsonl"
	FileJSONLInvalid          FileType = "jsonl_invalid"
	FileJSONObject            FileType = "json_object"
	FileJSONArray             FileType = "json_array"
	FileJSONArrayEmpty        FileType = "json_array_empty"
	FileJSONUnstructuredArray FileType = "json_unstructured_array"
	FileJSONInvalid           FileType = "json_invalid"
	FileExcel                 FileType = "excel"
	FileUnsupported           FileType = "unsupported"
)

// sampleRows caps how many data rows are read to report columns.
const sampleRows = 50

// Result is the classification record.
type Result struct {
	Status      Status     `json:"status"`
	Reason      string     `json:"reason"`
	Filename    string     `json:"file_name"`
	Extension   string     `json:"extension"`
	Compression string     `json:"compression,omitempty"`
	FileType    FileType   `json:"file_type"`
	Tabularity  Tabularity `json:"tabularity"`

	// Format is the engine input tag once any conversion is done:
	// csv, tsv, txt, ndjson or json_array. Empty for non-tabular input.
	Format string `json:"format,omitempty"`
	// Convertible marks semi-tabular input that the conversion
	// collaborator must turn into delimited or line-delimited text.
	Convertible bool     `json:"convertible"`
	Delimiter   string   `json:"delimiter,omitempty"`
	Sheets      []string `json:"sheets,omitempty"`

	Domain    *string `json:"domain"`
	Dataset   *string `json:"dataset"`
	Qualifier *string `json:"name_optional"`

	Columns    []string `json:"columns,omitempty"`
	SampleRows int      `json:"sample_rows"`
	Summary    string   `json:"content_summary,omitempty"`
	Ready      bool     `json:"ready_for_ingestion"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Classify inspects content, which must already be decompressed, under
// filename. A compression suffix on the name is recorded and ignored.
func Classify(content []byte, filename string) (res Result) {
	stem, ext, comp := SplitName(filename)
	res = Result{
		Filename:    filename,
		Extension:   strings.TrimPrefix(ext, "."),
		Compression: strings.TrimPrefix(comp, "."),
		Tabularity:  NonTabular,
	}
	res.Domain, res.Dataset, res.Qualifier = NameParts(filename)

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Reason = fmt.Sprintf("classifier fault: %v", r)
			res.Ready = false
		}
	}()

	if len(bytes.TrimSpace(content)) == 0 {
		res.fail(res.FileType, "empty file")
		return res
	}

	switch ext {
	case ".csv", ".tsv", ".txt":
		classifyDelimited(&res, content, ext)
	case ".ndjson", ".jsonl":
		classifyNDJSON(&res, content)
	case ".json":
		classifyJSON(&res, content)
	case ".xlsx", ".xlsm":
		classifyExcel(&res, content)
	case ".xls":
		res.fail(FileUnsupported, "legacy .xls workbooks are not readable; convert to .xlsx first")
		return res
	default:
		res.fail(FileUnsupported, fmt.Sprintf("unsupported extension %q", ext))
		return res
	}

	if res.Status == StatusFailed {
		return res
	}
	res.Ready = res.Tabularity != NonTabular && res.Domain != nil && res.Dataset != nil
	if res.Domain == nil || res.Dataset == nil {
		res.warn(fmt.Sprintf("file name %q lacks <domain>_<dataset>; supply both before ingestion", stem))
	}
	return res
}

func (r *Result) fail(ft FileType, reason string) {
	if ft != "" {
		r.FileType = ft
	}
	r.Status = StatusFailed
	r.Reason = reason
	r.Tabularity = NonTabular
	r.Ready = false
}

func (r *Result) succeed(reason string) {
	r.Status = StatusSuccess
	r.Reason = reason
}

// warn keeps failed results failed and otherwise downgrades to warning.
func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
	if r.Status == StatusSuccess {
		r.Status = StatusWarning
	}
}

func classifyDelimited(res *Result, content []byte, ext string) {
	if !utf8.Valid(content) {
		res.fail(FileTextUnstructured, "content is not valid UTF-8 text")
		return
	}
	var (
		delim rune
		found bool
	)
	if ext == ".tsv" {
		delim, found = '\t', true
	} else {
		delim, found = SniffDelimiter(content)
	}
	if !found && ext == ".txt" {
		res.fail(FileTextUnstructured, "no delimiter found; text is not tabular")
		return
	}

	ds, st, err := csvparser.NewParser(csvparser.Options{
		Comma:     delim,
		TrimSpace: true,
		MaxRows:   sampleRows,
	}).Parse(bytes.NewReader(content))
	if err != nil {
		res.fail(FileTextUnstructured, fmt.Sprintf("not tabular or invalid delimiter: %v", err))
		return
	}

	res.Delimiter = string(delim)
	res.Tabularity = Tabular
	res.Format = strings.TrimPrefix(ext, ".")
	if delim == ',' {
		res.FileType = FileCSV
	} else {
		res.FileType = FileDelimitedText
	}
	res.Columns = ds.Columns
	res.SampleRows = ds.Len()
	res.Summary = fmt.Sprintf("tabular file with %d columns", len(ds.Columns))
	res.succeed("delimited text")
	if ds.Len() == 0 {
		res.warn("header only; no data rows")
	}
	if n := st.Skipped(); n > 0 {
		res.warn(fmt.Sprintf("%d sampled rows were malformed or misaligned", n))
	}
}

func classifyNDJSON(res *Result, content []byte) {
	if !utf8.Valid(content) {
		res.fail(FileJSONLInvalid, "content is not valid UTF-8 text")
		return
	}
	d := jsonparser.NewDecoder(bytes.NewReader(content), jsonparser.Options{})
	seen := map[string]bool{}
	for res.SampleRows < sampleRows {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.fail(FileJSONLInvalid, err.Error())
			return
		}
		res.SampleRows++
		for _, k := range rec.Keys {
			if !seen[k] {
				seen[k] = true
				res.Columns = append(res.Columns, k)
			}
		}
	}
	if res.SampleRows == 0 {
		res.fail(FileJSONLInvalid, "no JSON objects found")
		return
	}
	res.FileType = FileJSONL
	res.Tabularity = Tabular
	res.Format = "ndjson"
	res.Summary = fmt.Sprintf("line-delimited records with %d fields", len(res.Columns))
	res.succeed("one JSON object per line")
}

func classifyJSON(res *Result, content []byte) {
	if !utf8.Valid(content) {
		res.fail(FileJSONInvalid, "content is not valid UTF-8 text")
		return
	}
	trimmed := bytes.TrimSpace(content)
	if !json.Valid(trimmed) {
		res.fail(FileJSONInvalid, "content does not parse as JSON")
		return
	}
	switch trimmed[0] {
	case '{':
		keys, err := jsonparser.KeysInOrder(trimmed)
		if err != nil {
			res.fail(FileJSONInvalid, err.Error())
			return
		}
		res.FileType = FileJSONObject
		res.Tabularity = SemiTabular
		res.Convertible = true
		res.Format = "ndjson"
		res.Columns = keys
		res.SampleRows = 1
		res.Summary = fmt.Sprintf("JSON object with %d top-level fields", len(keys))
		res.succeed("single-record structured JSON")
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			res.fail(FileJSONInvalid, err.Error())
			return
		}
		if len(items) == 0 {
			res.FileType = FileJSONArrayEmpty
			res.Tabularity = NonTabular
			res.Status = StatusWarning
			res.Reason = "empty JSON array; nothing to ingest"
			return
		}
		seen := map[string]bool{}
		for i, it := range items {
			keys, err := jsonparser.KeysInOrder(it)
			if err != nil {
				res.fail(FileJSONUnstructuredArray, fmt.Sprintf("array element %d is not an object", i))
				return
			}
			if i < sampleRows {
				for _, k := range keys {
					if !seen[k] {
						seen[k] = true
						res.Columns = append(res.Columns, k)
					}
				}
			}
		}
		res.FileType = FileJSONArray
		res.Tabularity = SemiTabular
		res.Convertible = true
		res.Format = "json_array"
		res.SampleRows = len(items)
		res.Summary = fmt.Sprintf("JSON array of %d objects with %d fields", len(items), len(res.Columns))
		res.Status = StatusWarning
		res.Reason = "array of records; convert to line-delimited JSON before ingestion"
	default:
		res.fail(FileJSONUnstructuredArray, "top-level JSON value is not an object or array")
	}
}

func classifyExcel(res *Result, content []byte) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		res.fail(FileExcel, fmt.Sprintf("cannot open workbook: %v", err))
		return
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		res.fail(FileExcel, "workbook has no sheets")
		return
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		res.fail(FileExcel, fmt.Sprintf("read sheet %q: %v", sheets[0], err))
		return
	}
	for len(rows) > 0 && len(rows[0]) == 0 {
		rows = rows[1:]
	}
	res.FileType = FileExcel
	res.Tabularity = SemiTabular
	res.Convertible = true
	res.Format = "csv"
	res.Sheets = sheets
	if len(rows) > 0 {
		res.Columns = rows[0]
		res.SampleRows = len(rows) - 1
	}
	res.Summary = fmt.Sprintf("workbook with %d sheets; first sheet has %d columns", len(sheets), len(res.Columns))
	res.succeed("spreadsheet; convert a sheet to CSV before ingestion")
}
