package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/insightlab/analyst/config"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/internal/telemetry"
	"github.com/insightlab/analyst/models"
)

// Embedder turns texts into vectors. Satisfied by provider.Provider.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkSink receives freshly stored chunks, e.g. the in-process BM25 index.
// A source's previous chunks are removed before the replacements arrive.
type ChunkSink interface {
	IndexChunks(chunks []models.Chunk) error
	RemoveSourceChunks(sourceID string) error
}

// Report summarises the outcome of ingesting one source.
type Report struct {
	Origin string `json:"origin"`
	Status string `json:"status"` // ingested, skipped or failed
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Service runs the ingestion pipeline: fetch/extract, chunk, embed, store.
type Service struct {
	cfg      config.IngestConfig
	store    *store.Store
	embedder Embedder
	fetcher  Fetcher
	sink     ChunkSink
	logger   *log.Logger
}

func NewService(cfg config.IngestConfig, st *store.Store, embedder Embedder, fetcher Fetcher, sink ChunkSink) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		fetcher:  fetcher,
		sink:     sink,
		logger:   log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// IngestURLs ingests each URL, skipping those already in the manifest.
func (s *Service) IngestURLs(ctx context.Context, urls []string) []Report {
	reports := make([]Report, 0, len(urls))
	for _, u := range urls {
		if skip := s.alreadyIngested(ctx, u); skip {
			reports = append(reports, Report{Origin: u, Status: "skipped"})
			continue
		}
		article, err := s.fetcher.Fetch(ctx, u)
		if err != nil {
			s.logger.Printf("fetch %s: %v", u, err)
			_ = s.store.MarkSourceFailed(ctx, u, models.SourceKindURL)
			reports = append(reports, Report{Origin: u, Status: "failed", Error: err.Error()})
			continue
		}
		reports = append(reports, s.ingestText(ctx, u, models.SourceKindURL, article.Title, article.Text))
	}
	return reports
}

// IngestPDFs ingests each PDF path, skipping those already in the manifest.
func (s *Service) IngestPDFs(ctx context.Context, paths []string) []Report {
	reports := make([]Report, 0, len(paths))
	for _, p := range paths {
		if skip := s.alreadyIngested(ctx, p); skip {
			reports = append(reports, Report{Origin: p, Status: "skipped"})
			continue
		}
		text, err := ExtractPDFText(p)
		if err != nil {
			s.logger.Printf("extract %s: %v", p, err)
			_ = s.store.MarkSourceFailed(ctx, p, models.SourceKindPDF)
			reports = append(reports, Report{Origin: p, Status: "failed", Error: err.Error()})
			continue
		}
		title := filepath.Base(p)
		reports = append(reports, s.ingestText(ctx, p, models.SourceKindPDF, title, text))
	}
	return reports
}

// Refresh re-fetches a URL source and re-ingests it when the content hash
// changed. Returns whether new content was stored.
func (s *Service) Refresh(ctx context.Context, src models.Source) (bool, error) {
	if src.Kind != models.SourceKindURL {
		return false, fmt.Errorf("refresh only applies to url sources, got %s", src.Kind)
	}
	article, err := s.fetcher.Fetch(ctx, src.Origin)
	if err != nil {
		return false, err
	}
	if ContentHash(article.Text) == src.ContentHash {
		_ = s.store.TouchSource(ctx, src.Origin, time.Now())
		return false, nil
	}
	rep := s.ingestText(ctx, src.Origin, models.SourceKindURL, article.Title, article.Text)
	if rep.Status == "failed" {
		return false, fmt.Errorf("re-ingest %s: %s", src.Origin, rep.Error)
	}
	return true, nil
}

func (s *Service) alreadyIngested(ctx context.Context, origin string) bool {
	src, err := s.store.GetSourceByOrigin(ctx, origin)
	if err != nil {
		return false
	}
	return src.Status == models.SourceStatusIngested
}

func (s *Service) ingestText(ctx context.Context, origin string, kind models.SourceKind, title, text string) Report {
	chunks := SplitText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		_ = s.store.MarkSourceFailed(ctx, origin, kind)
		return Report{Origin: origin, Status: "failed", Error: "no text to ingest"}
	}

	vectors, err := s.embedder.CreateEmbedding(ctx, chunks)
	if err != nil {
		s.logger.Printf("embed %s: %v", origin, err)
		_ = s.store.MarkSourceFailed(ctx, origin, kind)
		return Report{Origin: origin, Status: "failed", Error: err.Error()}
	}

	src := models.Source{
		Origin:      origin,
		Kind:        kind,
		Title:       title,
		ContentHash: ContentHash(text),
		RefreshCron: s.cfg.RefreshCron,
	}
	sourceID, err := s.store.ReplaceSourceChunks(ctx, src, chunks, vectors)
	if err != nil {
		s.logger.Printf("store %s: %v", origin, err)
		return Report{Origin: origin, Status: "failed", Error: err.Error()}
	}

	if s.sink != nil {
		if err := s.sink.RemoveSourceChunks(sourceID); err != nil {
			s.logger.Printf("bm25 purge %s: %v", origin, err)
		}
		stored := make([]models.Chunk, len(chunks))
		for i, content := range chunks {
			stored[i] = models.Chunk{
				ID:       models.ChunkKey(sourceID, i),
				SourceID: sourceID,
				Origin:   origin,
				Title:    title,
				Ord:      i,
				Content:  content,
			}
		}
		if err := s.sink.IndexChunks(stored); err != nil {
			s.logger.Printf("bm25 index %s: %v", origin, err)
		}
	}

	telemetry.ObserveIngest(string(kind), len(chunks))
	s.logger.Printf("ingested %s (%d chunks)", origin, len(chunks))
	return Report{Origin: origin, Status: "ingested", Chunks: len(chunks)}
}
