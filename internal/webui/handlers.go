package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ingest/internal/config"
	"ingest/internal/convert"
	"ingest/internal/ingest"
	"ingest/internal/logging"
	"ingest/internal/probe"
	"ingest/internal/reconcile"
	"ingest/internal/report"
	"ingest/internal/schema"
	"ingest/internal/storage"
	"ingest/internal/transformer/builtin"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// fileRequest carries one file and its per-request settings. Text goes in
// content; binary payloads (workbooks, compressed files) in content_base64.
type fileRequest struct {
	FileName      string         `json:"file_name"`
	Content       string         `json:"content"`
	ContentBase64 []byte         `json:"content_base64"`
	Schema        *schema.Schema `json:"schema"`
	Domain        string         `json:"domain"`
	Dataset       string         `json:"dataset"`
	Options       config.Options `json:"options"`
}

func (f fileRequest) bytes() []byte {
	if len(f.ContentBase64) > 0 {
		return f.ContentBase64
	}
	return []byte(f.Content)
}

type reconcileRequest struct {
	Schemas []struct {
		Source string          `json:"source"`
		Schema json.RawMessage `json:"schema"`
	} `json:"schemas"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": storage.ListKinds(),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_name", errors.New("query parameter name is required"))
		return
	}
	content, err := convert.ReadAll(name, s.body(w, r), s.cfg.Convert.MaxInputBytes)
	if err != nil {
		s.respondReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, probe.Classify(content, name))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFile(w, r)
	if !ok {
		return
	}
	if req.Schema == nil || req.Schema.Len() == 0 {
		s.respondError(w, r, http.StatusBadRequest, "missing_schema", errors.New("a declared schema is required"))
		return
	}
	fr, ok := s.readDataset(w, r, req)
	if !ok {
		return
	}
	v := ingest.ValidatorFor(s.cfg, *req.Schema)
	v.MaxSamples = req.Options.Int("max_samples", v.MaxSamples)
	v.MaxIssueRows = req.Options.Int("max_issue_rows", v.MaxIssueRows)
	writeJSON(w, http.StatusOK, struct {
		ingest.Prepared
		Report builtin.ValidationReport `json:"report"`
	}{fr, v.Validate(fr.Dataset)})
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFile(w, r)
	if !ok {
		return
	}
	cfg := *s.cfg
	cfg.Normalize.Mode = req.Options.String("mode", cfg.Normalize.Mode)
	cfg.Normalize.Missing = req.Options.String("missing", cfg.Normalize.Missing)
	cfg.Normalize.PreviewRows = req.Options.Int("preview_rows", cfg.Normalize.PreviewRows)
	cfg.Inference.Threshold = req.Options.Float("threshold", cfg.Inference.Threshold)
	n, err := ingest.NormalizerFor(&cfg)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "bad_options", err)
		return
	}
	n.Logger = logging.FromContext(r.Context())

	fr, ok := s.readDataset(w, r, req)
	if !ok {
		return
	}
	res, err := n.Normalize(fr.Dataset)
	if err != nil {
		s.respondError(w, r, http.StatusUnprocessableEntity, "normalize_failed", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		if res.Status == report.Failed {
			s.respondError(w, r, http.StatusUnprocessableEntity, "normalize_failed", errors.New(res.Reason))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := builtin.WriteCSV(w, res); err != nil {
			logging.FromContext(r.Context()).Error("write csv", "err", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ingest.Prepared
		Normalization builtin.NormalizationResult `json:"normalization"`
	}{fr, res})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(s.body(w, r)).Decode(&req); err != nil {
		s.respondReadError(w, r, err)
		return
	}
	inputs := make([]reconcile.Schema, len(req.Schemas))
	for i, in := range req.Schemas {
		src := in.Source
		if src == "" {
			src = fmt.Sprintf("schema[%d]", i)
		}
		inputs[i] = reconcile.ParseSchemaJSON(src, in.Schema)
	}
	merged, err := reconcile.MergeSchemas(inputs)
	if err != nil {
		s.respondError(w, r, http.StatusUnprocessableEntity, "no_readable_schema", err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFile(w, r)
	if !ok {
		return
	}
	rep := s.pipeline.ProcessFile(r.Context(), ingest.Input{
		Name:     req.FileName,
		Content:  req.bytes(),
		Domain:   req.Domain,
		Dataset:  req.Dataset,
		Declared: req.Schema,
	})
	writeJSON(w, http.StatusOK, rep)
}

// decodeFile reads a fileRequest body. It writes the error reply itself.
func (s *Server) decodeFile(w http.ResponseWriter, r *http.Request) (fileRequest, bool) {
	var req fileRequest
	if err := json.NewDecoder(s.body(w, r)).Decode(&req); err != nil {
		s.respondReadError(w, r, err)
		return req, false
	}
	req.FileName = strings.TrimSpace(req.FileName)
	if req.FileName == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_name", errors.New("file_name is required"))
		return req, false
	}
	return req, true
}

// readDataset prepares the request file. A file that fails classification
// is answered with 422 and its classification.
func (s *Server) readDataset(w http.ResponseWriter, r *http.Request, req fileRequest) (ingest.Prepared, bool) {
	conv := convert.Converter{Sheet: req.Options.String("sheet", s.cfg.Convert.Sheet)}
	p, err := ingest.Prepare(req.FileName, req.bytes(), conv, s.cfg.Convert.MaxInputBytes)
	if err == nil {
		return p, true
	}
	var se *ingest.StepError
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		s.respondReadError(w, r, err)
	case errors.As(err, &se) && se.Step == ingest.StepClassify && p.Classification.Status != "":
		writeJSON(w, http.StatusUnprocessableEntity, p)
	case errors.As(err, &se):
		s.respondError(w, r, http.StatusUnprocessableEntity, se.Step+"_failed", err)
	default:
		s.respondError(w, r, http.StatusUnprocessableEntity, "read_failed", err)
	}
	return p, false
}

// body caps the request body at cfg.HTTP.MaxBodyBytes when set.
func (s *Server) body(w http.ResponseWriter, r *http.Request) io.Reader {
	if s.cfg.HTTP.MaxBodyBytes <= 0 {
		return r.Body
	}
	return http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBodyBytes)
}

func (s *Server) respondReadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		s.respondError(w, r, http.StatusRequestEntityTooLarge, "too_large", err)
		return
	}
	s.respondError(w, r, http.StatusBadRequest, "bad_request", err)
}

// respondError logs err with the request id and writes an ErrorResponse.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"status", status,
		"code", code,
		"err", err,
	)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
