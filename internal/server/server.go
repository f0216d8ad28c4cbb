package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/insightlab/analyst/config"
	analystpkg "github.com/insightlab/analyst/internal/analyst"
	"github.com/insightlab/analyst/internal/chart"
	"github.com/insightlab/analyst/internal/ingest"
	"github.com/insightlab/analyst/internal/retrieval"
	"github.com/insightlab/analyst/internal/session"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/internal/telemetry"
	"github.com/insightlab/analyst/news/newsapi"
	"github.com/insightlab/analyst/provider"
)

// Run wires all dependencies and starts the HTTP API.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var payload map[string]string
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			switch m := he.Message.(type) {
			case map[string]string:
				payload = m
			case string:
				msg = m
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			if payload != nil {
				_ = c.JSON(code, payload)
			} else {
				_ = c.JSON(code, map[string]interface{}{"error": msg})
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))
	if cfg.Telemetry.Enabled {
		e.Use(telemetry.EchoMiddleware())
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	llm, err := provider.NewProvider(provider.OpenAI, cfg.Providers.OpenAI)
	if err != nil {
		return err
	}

	// BM25 side of hybrid retrieval is in-process; rebuild it from the
	// stored corpus so restarts don't lose it.
	var index *retrieval.Index
	if cfg.Retrieval.HybridBM25 {
		index, err = retrieval.NewIndex()
		if err != nil {
			return err
		}
		chunks, err := st.ListChunks(ctx)
		if err != nil {
			return err
		}
		if err := index.IndexChunks(chunks); err != nil {
			return err
		}
		baseLogger.Printf("bm25 index rebuilt with %d chunks", len(chunks))
	}

	fetcher, err := ingest.NewFetcher(ingest.FetcherType(cfg.Ingest.Fetcher), cfg.Ingest.FetchTimeout, cfg.Ingest.MaxArticleChars)
	if err != nil {
		return err
	}
	var sink ingest.ChunkSink
	if index != nil {
		sink = index
	}
	ingestSvc := ingest.NewService(cfg.Ingest, st, llm, fetcher, sink)

	retriever := &retrieval.Retriever{Store: st, Embedder: llm, Index: index, TopK: cfg.Retrieval.TopK}
	newsClient := newsapi.NewsAPI{APIKey: cfg.NewsAPI.APIKey, Endpoint: cfg.NewsAPI.Endpoint, PageSize: cfg.NewsAPI.PageSize}
	an := analystpkg.New(retriever, llm, newsClient, cfg.Retrieval.TopK)

	// Conversation sessions: Redis when configured, process-local otherwise.
	var sessions session.Store
	var rdb *redis.Client
	if cfg.Databases.Redis.Host != "" && cfg.Databases.Redis.Port != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Databases.Redis.Addr(), Password: cfg.Databases.Redis.Pass, DB: cfg.Databases.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
		}
		sessions, err = session.NewStore(session.RedisStore, cfg.Databases.Redis)
	} else {
		sessions, err = session.NewStore(session.InMemoryStore, cfg.Databases.Redis)
	}
	if err != nil {
		return err
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	ah := &AnalysisHandler{
		Analyst:  an,
		Ingest:   ingestSvc,
		Store:    st,
		Sessions: sessions,
		Charts:   chart.Renderer{OutputDir: cfg.Charts.OutputDir},
		Uploads:  cfg.Ingest.UploadDir,
	}
	ah.Register(api, []byte(secret))

	sched := &Scheduler{Store: st, Ingest: ingestSvc, Rdb: rdb, Stop: make(chan struct{})}
	sched.Start()
	defer sched.Shutdown()

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":10010"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
