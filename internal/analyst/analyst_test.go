package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/insightlab/analyst/internal/retrieval"
	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/models"
	"github.com/insightlab/analyst/news/newsapi"
)

type fakeCompleter struct {
	response string
	err      error
	lastUser string
}

func (f *fakeCompleter) Completion(_ context.Context, system, user string) (string, error) {
	f.lastUser = user
	return f.response, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

var searchQuery = regexp.QuoteMeta(`
SELECT c.source_id, c.ord, s.origin, s.title, c.content, c.embedding <=> $1::vector AS distance
FROM chunks c
JOIN sources s ON s.id = c.source_id
WHERE ($2 = '' OR s.origin = $2)
ORDER BY c.embedding <=> $1::vector
LIMIT $3`)

func newTestRetriever(t *testing.T) (*retrieval.Retriever, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := &store.Store{DB: db}
	return &retrieval.Retriever{Store: st, Embedder: fakeEmbedder{}, TopK: 4}, mock
}

func contextRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"source_id", "ord", "origin", "title", "content", "distance"}).
		AddRow("src-1", 0, "https://example.com/a", "Annual Report", "revenue grew 20% year over year", 0.2)
}

func TestAsk_CitesSources(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "", 4).
		WillReturnRows(contextRows())

	llm := &fakeCompleter{response: "Revenue grew 20%."}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	ans, err := a.Ask(context.Background(), "How did revenue develop?", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Answer != "Revenue grew 20%." {
		t.Fatalf("unexpected answer: %q", ans.Answer)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "https://example.com/a" {
		t.Fatalf("unexpected sources: %v", ans.Sources)
	}
	if !strings.Contains(llm.lastUser, "revenue grew 20% year over year") {
		t.Fatal("retrieved context not folded into the prompt")
	}
}

func TestAsk_HistoryInPrompt(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "", 4).
		WillReturnRows(contextRows())

	llm := &fakeCompleter{response: "It doubled."}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	history := []models.Message{
		{Role: "user", Content: "What company is this about?"},
		{Role: "assistant", Content: "Acme Corp."},
	}
	if _, err := a.Ask(context.Background(), "And its revenue?", history); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(llm.lastUser, "Acme Corp.") {
		t.Fatal("conversation history not folded into the prompt")
	}
}

func TestSWOT_ParsesReport(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "", 4).
		WillReturnRows(contextRows())

	llm := &fakeCompleter{response: "```json\n" + `{
  "strengths": ["strong revenue growth"],
  "weaknesses": [],
  "opportunities": ["new markets"],
  "threats": ["competition"]
}` + "\n```"}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	report, err := a.SWOT(context.Background(), "Acme")
	if err != nil {
		t.Fatalf("SWOT: %v", err)
	}
	if len(report.Strengths) != 1 || report.Strengths[0] != "strong revenue growth" {
		t.Fatalf("unexpected strengths: %v", report.Strengths)
	}
	if len(report.Sources) != 1 {
		t.Fatalf("expected 1 source, got %v", report.Sources)
	}
}

func TestSWOT_MalformedOutput(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "", 4).
		WillReturnRows(contextRows())

	llm := &fakeCompleter{response: "I'd rather write prose."}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	_, err := a.SWOT(context.Background(), "Acme")
	var rawErr *RawOutputError
	if !errors.As(err, &rawErr) {
		t.Fatalf("expected RawOutputError, got %v", err)
	}
	if rawErr.Raw != "I'd rather write prose." {
		t.Fatalf("raw output not preserved: %q", rawErr.Raw)
	}
}

func TestNarrativeEvolution_RefusesWithoutContext(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	// older source yields context, newer source yields nothing
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "https://example.com/old", 5).
		WillReturnRows(contextRows())
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "https://example.com/new", 5).
		WillReturnRows(sqlmock.NewRows([]string{"source_id", "ord", "origin", "title", "content", "distance"}))

	llm := &fakeCompleter{response: `{"sentiment_change": "n/a"}`}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	_, err := a.NarrativeEvolution(context.Background(), "Acme", "https://example.com/old", "https://example.com/new")
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
	if llm.lastUser != "" {
		t.Fatal("LLM must not be called when context is missing")
	}
}

func TestMarketContext_FetchesNewsPerTerm(t *testing.T) {
	var queries []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"articles": []map[string]interface{}{
				{"title": "Rival ships new product", "url": "https://news.example.com/1"},
			},
		})
	}))
	defer ts.Close()

	llm := &fakeCompleter{response: `{
  "overall_sentiment": "competitive pressure rising",
  "key_competitor_moves": ["Rival ships new product"],
  "major_industry_trends": ["consolidation"]
}`}
	news := newsapi.NewsAPI{APIKey: "k", Endpoint: ts.URL, PageSize: 2}
	a := New(nil, llm, news, 4)

	report, err := a.MarketContext(context.Background(), "Acme", []string{"Rival"}, "widgets")
	if err != nil {
		t.Fatalf("MarketContext: %v", err)
	}
	if len(queries) != 2 || queries[0] != "Rival" || queries[1] != "widgets" {
		t.Fatalf("unexpected news queries: %v", queries)
	}
	if report.OverallSentiment != "competitive pressure rising" {
		t.Fatalf("unexpected report: %+v", report)
	}
	// headline URLs become the citation list
	if len(report.Sources) != 2 || report.Sources[0] != "https://news.example.com/1" {
		t.Fatalf("unexpected sources: %v", report.Sources)
	}
	if !strings.Contains(llm.lastUser, "Rival ships new product") {
		t.Fatal("headlines not folded into the prompt")
	}
}

func TestMarketContext_NewsFailureAborts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	llm := &fakeCompleter{response: "{}"}
	news := newsapi.NewsAPI{APIKey: "k", Endpoint: ts.URL}
	a := New(nil, llm, news, 4)

	_, err := a.MarketContext(context.Background(), "Acme", []string{"Rival"}, "widgets")
	if err == nil {
		t.Fatal("expected error when the news fetch fails")
	}
	if llm.lastUser != "" {
		t.Fatal("LLM must not be called when the news fetch fails")
	}
}

func TestExtractSeries(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "", 4).
		WillReturnRows(contextRows())

	llm := &fakeCompleter{response: `{"2023": {"Revenue": 10.5}, "2024": {"Revenue": 12.0}}`}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	series, sources, err := a.ExtractSeries(context.Background(), "Acme", []string{"Revenue"})
	if err != nil {
		t.Fatalf("ExtractSeries: %v", err)
	}
	if series["2024"]["Revenue"] != 12.0 {
		t.Fatalf("unexpected series: %v", series)
	}
	if len(sources) != 1 {
		t.Fatalf("unexpected sources: %v", sources)
	}
}

func TestExtractSeries_EmptyRefused(t *testing.T) {
	retriever, mock := newTestRetriever(t)
	mock.ExpectQuery(searchQuery).
		WithArgs("[0.1,0.2]", "", 4).
		WillReturnRows(contextRows())

	llm := &fakeCompleter{response: `{}`}
	a := New(retriever, llm, newsapi.NewsAPI{}, 4)

	_, _, err := a.ExtractSeries(context.Background(), "Acme", []string{"Revenue"})
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}
