package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/insightlab/analyst/internal/analyst"
	"github.com/insightlab/analyst/internal/chart"
	"github.com/insightlab/analyst/internal/ingest"
	"github.com/insightlab/analyst/internal/session"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/models"
)

const sessionTTL = 2 * time.Hour

// AnalysisHandler exposes ingestion and analysis operations over HTTP.
type AnalysisHandler struct {
	Analyst  *analyst.Analyst
	Ingest   *ingest.Service
	Store    *store.Store
	Sessions session.Store
	Charts   chart.Renderer
	Uploads  string
}

type IngestRequest struct {
	URLs []string `json:"urls"`
	PDFs []string `json:"pdfs"`
}

type QnARequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type QnAResponse struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id"`
}

type TopicRequest struct {
	Topic string `json:"topic"`
}

type CompareRequest struct {
	Topic   string `json:"topic"`
	Source1 string `json:"source1"`
	Source2 string `json:"source2"`
}

type ContextRequest struct {
	Company     string   `json:"company"`
	Competitors []string `json:"competitors"`
	Industry    string   `json:"industry"`
}

type ChartRequest struct {
	Topic      string   `json:"topic"`
	DataPoints []string `json:"data_points"`
}

type ChartResponse struct {
	ChartURL string   `json:"chart_url"`
	Sources  []string `json:"sources"`
}

func (h *AnalysisHandler) Register(api *echo.Group, secret []byte) {
	guard := func(fn echo.HandlerFunc) echo.HandlerFunc { return withAuth(fn, secret) }

	api.POST("/ingest", guard(h.ingest))
	api.POST("/upload", guard(h.upload))
	api.GET("/sources", guard(h.sources))

	api.POST("/qna", guard(h.qna))
	api.POST("/swot", guard(h.swot))
	api.POST("/compare", guard(h.compare))
	api.POST("/memo", guard(h.memo))
	api.POST("/context", guard(h.marketContext))
	api.POST("/chart", guard(h.chart))
	api.GET("/charts/:file", guard(h.chartFile))
}

func (h *AnalysisHandler) ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.URLs) == 0 && len(req.PDFs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to ingest")
	}
	ctx := c.Request().Context()
	reports := h.Ingest.IngestURLs(ctx, req.URLs)
	if len(req.PDFs) > 0 {
		paths := make([]string, 0, len(req.PDFs))
		for _, name := range req.PDFs {
			paths = append(paths, resolvePDFPath(h.Uploads, name))
		}
		reports = append(reports, h.Ingest.IngestPDFs(ctx, paths)...)
	}
	return c.JSON(http.StatusOK, reports)
}

// resolvePDFPath maps a request entry onto a filesystem path. Entries with
// a directory component are server paths and used as given; a bare filename
// refers to a previously uploaded file.
func resolvePDFPath(uploads, name string) string {
	if filepath.Base(name) != name {
		return name
	}
	return filepath.Join(uploads, name)
}

func (h *AnalysisHandler) upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file")
	}
	name := filepath.Base(file.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return echo.NewHTTPError(http.StatusBadRequest, "only pdf uploads are supported")
	}
	if err := os.MkdirAll(h.Uploads, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(h.Uploads, name))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"file": name})
}

func (h *AnalysisHandler) sources(c echo.Context) error {
	srcs, err := h.Store.ListSources(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if srcs == nil {
		srcs = []models.Source{}
	}
	return c.JSON(http.StatusOK, srcs)
}

func (h *AnalysisHandler) qna(c echo.Context) error {
	var req QnARequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	sess, err := h.Sessions.EnsureSession(req.SessionID, sessionTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	history, err := sess.History()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	ans, err := h.Analyst.Ask(c.Request().Context(), req.Question, history)
	if err != nil {
		return analysisError(err)
	}
	now := time.Now()
	_ = sess.Append(models.Message{Role: "user", Content: req.Question, At: now})
	_ = sess.Append(models.Message{Role: "assistant", Content: ans.Answer, At: now})
	return c.JSON(http.StatusOK, QnAResponse{Answer: ans.Answer, Sources: ans.Sources, SessionID: sess.ID()})
}

func (h *AnalysisHandler) swot(c echo.Context) error {
	var req TopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	report, err := h.Analyst.SWOT(c.Request().Context(), req.Topic)
	if err != nil {
		return analysisError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *AnalysisHandler) compare(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Topic == "" || req.Source1 == "" || req.Source2 == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic, source1 and source2 are required")
	}
	report, err := h.Analyst.NarrativeEvolution(c.Request().Context(), req.Topic, req.Source1, req.Source2)
	if err != nil {
		return analysisError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *AnalysisHandler) memo(c echo.Context) error {
	var req TopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	report, err := h.Analyst.InvestmentMemo(c.Request().Context(), req.Topic)
	if err != nil {
		return analysisError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *AnalysisHandler) marketContext(c echo.Context) error {
	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Company == "" || (len(req.Competitors) == 0 && req.Industry == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "company plus competitors or industry are required")
	}
	report, err := h.Analyst.MarketContext(c.Request().Context(), req.Company, req.Competitors, req.Industry)
	if err != nil {
		return analysisError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *AnalysisHandler) chart(c echo.Context) error {
	var req ChartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Topic == "" || len(req.DataPoints) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "topic and data_points are required")
	}
	series, sources, err := h.Analyst.ExtractSeries(c.Request().Context(), req.Topic, req.DataPoints)
	if err != nil {
		return analysisError(err)
	}
	file, err := h.Charts.Render(req.Topic, series)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChartResponse{ChartURL: "/api/charts/" + file, Sources: sources})
}

func (h *AnalysisHandler) chartFile(c echo.Context) error {
	name := filepath.Base(c.Param("file"))
	path := filepath.Join(h.Charts.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "chart not found")
	}
	return c.File(path)
}

// analysisError maps analyst failures onto HTTP status codes: refusals for
// missing context are the caller's problem, malformed model output is an
// upstream failure and the raw output is surfaced for debugging.
func analysisError(err error) error {
	var rawErr *analyst.RawOutputError
	if errors.As(err, &rawErr) {
		return echo.NewHTTPError(http.StatusBadGateway, map[string]string{
			"error":      rawErr.Error(),
			"raw_output": rawErr.Raw,
		})
	}
	if errors.Is(err, analyst.ErrNoContext) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
