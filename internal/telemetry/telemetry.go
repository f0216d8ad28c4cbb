package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyst_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	llmRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_llm_requests_total",
		Help: "LLM calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	llmDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyst_llm_request_duration_seconds",
		Help:    "LLM call latency by operation.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"operation"})

	ingestedSources = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_ingested_sources_total",
		Help: "Sources ingested by kind.",
	}, []string{"kind"})

	ingestedChunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_ingested_chunks_total",
		Help: "Chunks ingested by source kind.",
	}, []string{"kind"})

	retrievalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyst_retrieval_duration_seconds",
		Help:    "End to end retrieval latency (embed + search + fuse).",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		httpRequests, httpDuration,
		llmRequests, llmDuration,
		ingestedSources, ingestedChunks,
		retrievalDuration,
	)
}

// ObserveLLM records one LLM call.
func ObserveLLM(operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	llmRequests.WithLabelValues(operation, outcome).Inc()
	llmDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveIngest records one ingested source and its chunk count.
func ObserveIngest(kind string, chunks int) {
	ingestedSources.WithLabelValues(kind).Inc()
	ingestedChunks.WithLabelValues(kind).Add(float64(chunks))
}

// ObserveRetrieval records one retrieval round trip.
func ObserveRetrieval(duration time.Duration) {
	retrievalDuration.Observe(duration.Seconds())
}

// EchoMiddleware instruments HTTP requests on the echo router.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				// the error handler has not written the response yet
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			httpRequests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
