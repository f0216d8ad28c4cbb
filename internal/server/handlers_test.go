package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/insightlab/analyst/internal/analyst"
	"github.com/insightlab/analyst/internal/chart"
	"github.com/insightlab/analyst/internal/store"
)

func TestAnalysisError_Mapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"no context", fmt.Errorf("wrapped: %w", analyst.ErrNoContext), http.StatusUnprocessableEntity},
		{"raw output", &analyst.RawOutputError{Op: "swot", Raw: "prose", Err: errors.New("no JSON")}, http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		he, ok := analysisError(tc.err).(*echo.HTTPError)
		if !ok {
			t.Fatalf("%s: expected HTTPError", tc.name)
		}
		if he.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.code, he.Code)
		}
	}
}

func TestAnalysisError_RawOutputPayload(t *testing.T) {
	err := analysisError(&analyst.RawOutputError{Op: "memo", Raw: "I decline.", Err: errors.New("no JSON object in response")})
	he := err.(*echo.HTTPError)
	payload, ok := he.Message.(map[string]string)
	if !ok {
		t.Fatalf("expected structured payload, got %T", he.Message)
	}
	if payload["raw_output"] != "I decline." {
		t.Fatalf("raw output not surfaced: %v", payload)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	ingestedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, origin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "origin", "kind", "title", "content_hash", "status", "chunk_count", "refresh_cron", "ingested_at"}).
			AddRow("src-1", "https://example.com/a", "url", "Example", "abc", "ingested", 12, "@daily", ingestedAt))

	h := &AnalysisHandler{Store: &store.Store{DB: db}}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.sources(c); err != nil {
		t.Fatalf("sources: %v", err)
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0]["origin"] != "https://example.com/a" {
		t.Fatalf("unexpected response: %v", out)
	}
	if out[0]["chunk_count"] != float64(12) {
		t.Fatalf("unexpected chunk count: %v", out[0]["chunk_count"])
	}
}

func TestSourcesEndpoint_EmptyIsArray(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, origin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "origin", "kind", "title", "content_hash", "status", "chunk_count", "refresh_cron", "ingested_at"}))

	h := &AnalysisHandler{Store: &store.Store{DB: db}}
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/sources", nil), rec)

	if err := h.sources(c); err != nil {
		t.Fatalf("sources: %v", err)
	}
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("expected empty array, got %s", got)
	}
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("hello"))
	_ = w.Close()

	h := &AnalysisHandler{Uploads: t.TempDir()}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	c := e.NewContext(req, httptest.NewRecorder())

	err = h.upload(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-pdf upload, got %v", err)
	}
}

func TestUpload_StoresPDF(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 fake"))
	_ = w.Close()

	dir := t.TempDir()
	h := &AnalysisHandler{Uploads: dir}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.upload(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["file"] != "report.pdf" {
		t.Fatalf("unexpected response: %v", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.pdf")); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
}

func TestChartFile_RequiresAuth(t *testing.T) {
	e := echo.New()
	h := &AnalysisHandler{Charts: chart.Renderer{OutputDir: t.TempDir()}}
	h.Register(e.Group("/api"), testSecret)

	req := httptest.NewRequest(http.MethodGet, "/api/charts/chart-x.png", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestResolvePDFPath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"uploaded id", "report.pdf", filepath.Join("uploads", "report.pdf")},
		{"absolute server path", "/data/report.pdf", "/data/report.pdf"},
		{"relative server path", "data/report.pdf", "data/report.pdf"},
	}
	for _, tc := range cases {
		if got := resolvePDFPath("uploads", tc.in); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestChartFile_TraversalBlocked(t *testing.T) {
	h := &AnalysisHandler{Charts: chart.Renderer{OutputDir: t.TempDir()}}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/charts/x", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("file")
	c.SetParamValues("../../etc/passwd")

	err := h.chartFile(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
