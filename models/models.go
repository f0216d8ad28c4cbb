package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrSourceNotFound is returned when a source is not present in the manifest
var ErrSourceNotFound = errors.New("source not found")

// SourceKind distinguishes how a source document was obtained.
type SourceKind string

const (
	SourceKindURL SourceKind = "url"
	SourceKindPDF SourceKind = "pdf"
)

// SourceStatus tracks a source through the ingestion pipeline.
type SourceStatus string

const (
	SourceStatusPending  SourceStatus = "pending"
	SourceStatusIngested SourceStatus = "ingested"
	SourceStatusFailed   SourceStatus = "failed"
)

// Source is a document the analyst has been pointed at: a URL or an
// uploaded PDF. Origin is the identity used by the manifest to skip
// re-ingestion.
type Source struct {
	ID          string       `json:"id"`
	Origin      string       `json:"origin"`
	Kind        SourceKind   `json:"kind"`
	Title       string       `json:"title,omitempty"`
	ContentHash string       `json:"content_hash,omitempty"`
	Status      SourceStatus `json:"status"`
	ChunkCount  int          `json:"chunk_count"`
	RefreshCron string       `json:"refresh_cron,omitempty"`
	IngestedAt  time.Time    `json:"ingested_at"`
}

// Chunk is a contiguous span of a source's text together with its
// embedding. A chunk belongs to exactly one source.
type Chunk struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Origin    string    `json:"origin"`
	Title     string    `json:"title,omitempty"`
	Ord       int       `json:"ord"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// ChunkKey builds the retrieval identity of a chunk, stable across the
// vector store and the BM25 index.
func ChunkKey(sourceID string, ord int) string {
	return fmt.Sprintf("%s#%03d", sourceID, ord)
}

// SearchHit is a retrieval result: one chunk plus its relevance score.
type SearchHit struct {
	ChunkID string  `json:"chunk_id"`
	Origin  string  `json:"origin"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Answer is the retrieval-QA result with citations.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// SWOTReport is the structured SWOT analysis output.
type SWOTReport struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
	Sources       []string `json:"sources,omitempty"`
}

// EvolutionReport compares how a narrative changed between two sources.
type EvolutionReport struct {
	SentimentChange    string   `json:"sentiment_change"`
	NewInformation     []string `json:"new_information"`
	DroppedPoints      []string `json:"dropped_points"`
	SummaryOfEvolution string   `json:"summary_of_evolution"`
	Sources            []string `json:"sources,omitempty"`
}

// MemoReport is a one-page investment memo.
type MemoReport struct {
	InvestmentThesis  string   `json:"investment_thesis"`
	PositiveCatalysts []string `json:"positive_catalysts"`
	KeyRisks          []string `json:"key_risks"`
	Conclusion        string   `json:"conclusion"`
	Sources           []string `json:"sources,omitempty"`
}

// MarketContextReport synthesises recent market and competitor news.
type MarketContextReport struct {
	OverallSentiment    string   `json:"overall_sentiment"`
	KeyCompetitorMoves  []string `json:"key_competitor_moves"`
	MajorIndustryTrends []string `json:"major_industry_trends"`
	Sources             []string `json:"sources,omitempty"`
}

// Series maps a time period to named numeric data points, e.g.
// {"Q1 2024": {"Sales": 10000}, "Q2 2024": {"Sales": 12000}}.
type Series map[string]map[string]float64

// Message is one turn in a QA conversation session.
type Message struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}
