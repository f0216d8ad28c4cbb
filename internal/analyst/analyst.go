// Package analyst orchestrates retrieval, prompt construction and LLM calls
// for the canned analyses and retrieval QA.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/insightlab/analyst/internal/retrieval"
	"github.com/insightlab/analyst/internal/telemetry"
	"github.com/insightlab/analyst/models"
	"github.com/insightlab/analyst/news/newsapi"
)

// ErrNoContext is returned when retrieval found nothing relevant for a
// request that requires context.
var ErrNoContext = errors.New("no relevant context found in the ingested corpus")

// Completer is the LLM surface the analyst needs. Satisfied by
// provider.Provider.
type Completer interface {
	Completion(ctx context.Context, system, user string) (string, error)
}

// Analyst runs retrieval-augmented analyses over the ingested corpus.
type Analyst struct {
	Retriever *retrieval.Retriever
	LLM       Completer
	News      newsapi.NewsAPI
	TopK      int

	logger *log.Logger
}

func New(retriever *retrieval.Retriever, llm Completer, news newsapi.NewsAPI, topK int) *Analyst {
	if topK <= 0 {
		topK = 4
	}
	return &Analyst{
		Retriever: retriever,
		LLM:       llm,
		News:      news,
		TopK:      topK,
		logger:    log.New(log.Writer(), "[ANALYST] ", log.LstdFlags),
	}
}

func (a *Analyst) complete(ctx context.Context, op, system, user string) (string, error) {
	start := time.Now()
	raw, err := a.LLM.Completion(ctx, system, user)
	telemetry.ObserveLLM(op, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

// Ask answers a free-form question against the corpus, citing the source
// origins of the retrieved chunks. History is folded into the prompt so a
// session can ask follow-ups.
func (a *Analyst) Ask(ctx context.Context, question string, history []models.Message) (models.Answer, error) {
	hits, err := a.Retriever.Retrieve(ctx, question, a.TopK, "")
	if err != nil {
		return models.Answer{}, err
	}
	raw, err := a.complete(ctx, "qna", qaSystemPrompt, qaUserPrompt(question, joinContext(hits), history))
	if err != nil {
		return models.Answer{}, err
	}
	return models.Answer{Answer: strings.TrimSpace(raw), Sources: dedupeOrigins(hits)}, nil
}

// SWOT generates a SWOT analysis for the topic from retrieved context.
func (a *Analyst) SWOT(ctx context.Context, topic string) (models.SWOTReport, error) {
	hits, err := a.Retriever.Retrieve(ctx, topic, a.TopK, "")
	if err != nil {
		return models.SWOTReport{}, err
	}
	raw, err := a.complete(ctx, "swot", "", swotPrompt(topic, joinContext(hits)))
	if err != nil {
		return models.SWOTReport{}, err
	}
	var report models.SWOTReport
	if err := decodeJSON("swot", raw, &report); err != nil {
		return models.SWOTReport{}, err
	}
	report.Sources = dedupeOrigins(hits)
	return report, nil
}

// NarrativeEvolution compares how the narrative on topic changed between an
// older and a newer source. Retrieval is restricted to each origin; both
// sides must yield context or the comparison is refused.
func (a *Analyst) NarrativeEvolution(ctx context.Context, topic, olderOrigin, newerOrigin string) (models.EvolutionReport, error) {
	const perSide = 5
	olderHits, err := a.Retriever.Retrieve(ctx, topic, perSide, olderOrigin)
	if err != nil {
		return models.EvolutionReport{}, err
	}
	newerHits, err := a.Retriever.Retrieve(ctx, topic, perSide, newerOrigin)
	if err != nil {
		return models.EvolutionReport{}, err
	}
	if len(olderHits) == 0 || len(newerHits) == 0 {
		return models.EvolutionReport{}, fmt.Errorf("%w for topic %q in one or both sources", ErrNoContext, topic)
	}

	prompt := evolutionPrompt(topic, joinContext(olderHits), joinContext(newerHits))
	raw, err := a.complete(ctx, "compare", "", prompt)
	if err != nil {
		return models.EvolutionReport{}, err
	}
	var report models.EvolutionReport
	if err := decodeJSON("compare", raw, &report); err != nil {
		return models.EvolutionReport{}, err
	}
	report.Sources = []string{olderOrigin, newerOrigin}
	return report, nil
}

// InvestmentMemo generates a one-page investment memo for the topic.
func (a *Analyst) InvestmentMemo(ctx context.Context, topic string) (models.MemoReport, error) {
	hits, err := a.Retriever.Retrieve(ctx, topic, a.TopK, "")
	if err != nil {
		return models.MemoReport{}, err
	}
	raw, err := a.complete(ctx, "memo", "", memoPrompt(topic, joinContext(hits)))
	if err != nil {
		return models.MemoReport{}, err
	}
	var report models.MemoReport
	if err := decodeJSON("memo", raw, &report); err != nil {
		return models.MemoReport{}, err
	}
	report.Sources = dedupeOrigins(hits)
	return report, nil
}

// MarketContext fetches recent headlines for each competitor and the
// industry, then asks the model for a market context report. Headline URLs
// become the citation list.
func (a *Analyst) MarketContext(ctx context.Context, company string, competitors []string, industry string) (models.MarketContextReport, error) {
	terms := append(append([]string{}, competitors...), industry)

	var news strings.Builder
	var sources []string
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		articles, err := a.News.Everything(ctx, term, "en", "relevancy", 0)
		if err != nil {
			return models.MarketContextReport{}, fmt.Errorf("failed to fetch market news for %q: %w", term, err)
		}
		fmt.Fprintf(&news, "\n--- News about %s ---\n", term)
		for _, art := range articles {
			news.WriteString(art.Title)
			news.WriteString("\n")
			if art.URL != "" {
				sources = append(sources, art.URL)
			}
		}
	}

	raw, err := a.complete(ctx, "context", "", marketContextPrompt(company, news.String()))
	if err != nil {
		return models.MarketContextReport{}, err
	}
	var report models.MarketContextReport
	if err := decodeJSON("context", raw, &report); err != nil {
		return models.MarketContextReport{}, err
	}
	report.Sources = sources
	return report, nil
}

// ExtractSeries asks the model to pull the named numeric data points out of
// retrieved context, keyed by time period.
func (a *Analyst) ExtractSeries(ctx context.Context, topic string, dataPoints []string) (models.Series, []string, error) {
	query := fmt.Sprintf("Extract %s for %s", strings.Join(dataPoints, ", "), topic)
	hits, err := a.Retriever.Retrieve(ctx, query, a.TopK, "")
	if err != nil {
		return nil, nil, err
	}
	raw, err := a.complete(ctx, "chart", "", seriesPrompt(topic, dataPoints, joinContext(hits)))
	if err != nil {
		return nil, nil, err
	}
	var series models.Series
	if err := decodeJSON("chart", raw, &series); err != nil {
		return nil, nil, err
	}
	if len(series) == 0 {
		return nil, nil, fmt.Errorf("%w: no data points extracted for %q", ErrNoContext, topic)
	}
	return series, dedupeOrigins(hits), nil
}
