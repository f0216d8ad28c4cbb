package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/insightlab/analyst/internal/store"
	"github.com/insightlab/analyst/internal/telemetry"
	"github.com/insightlab/analyst/models"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Embedder turns a query into a vector. Satisfied by provider.Provider.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is an in-process BM25 index over all stored chunks. It is mem-only
// and rebuilt from the store at startup; ingestion feeds it incrementally.
type Index struct {
	bleve bleve.Index
	meta  map[string]models.Chunk
	mu    sync.RWMutex
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{bleve: idx, meta: make(map[string]models.Chunk)}, nil
}

// IndexChunks adds chunks to the BM25 index keyed by their chunk key.
func (i *Index) IndexChunks(chunks []models.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, ch := range chunks {
		if err := i.bleve.Index(ch.ID, map[string]string{"content": ch.Content}); err != nil {
			return fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
		i.meta[ch.ID] = ch
	}
	return nil
}

// RemoveSourceChunks drops all of a source's entries from the index, so a
// re-ingest that yields fewer chunks leaves no stale keys behind.
func (i *Index) RemoveSourceChunks(sourceID string) error {
	prefix := sourceID + "#"
	i.mu.Lock()
	defer i.mu.Unlock()
	for id := range i.meta {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if err := i.bleve.Delete(id); err != nil {
			return fmt.Errorf("delete chunk %s: %w", id, err)
		}
		delete(i.meta, id)
	}
	return nil
}

// Search runs a BM25 query and returns up to k ranked hits.
func (i *Index) Search(q string, k int) ([]models.SearchHit, error) {
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := i.bleve.Search(searchReq)
	if err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []models.SearchHit
	for idx, hit := range res.Hits {
		ch := i.meta[hit.ID]
		out = append(out, models.SearchHit{
			ChunkID: hit.ID,
			Origin:  ch.Origin,
			Title:   ch.Title,
			Content: ch.Content,
			Score:   hit.Score,
			Rank:    idx + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// FuseRRF merges two ranked lists with reciprocal-rank fusion.
func FuseRRF(a, b []models.SearchHit, k int) []models.SearchHit {
	type agg struct {
		item  models.SearchHit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []models.SearchHit) {
		for _, h := range list {
			x, ok := m[h.ChunkID]
			if !ok {
				m[h.ChunkID] = &agg{item: h}
				x = m[h.ChunkID]
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)

	items := make([]agg, 0, len(m))
	for _, v := range m {
		items = append(items, *v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score > items[j].score })

	if k > len(items) {
		k = len(items)
	}
	out := make([]models.SearchHit, 0, k)
	for i := 0; i < k; i++ {
		hit := items[i].item
		hit.Score = items[i].score
		hit.Rank = i + 1
		out = append(out, hit)
	}
	return out
}

// Retriever combines pgvector similarity search with the optional BM25 index.
type Retriever struct {
	Store    *store.Store
	Embedder Embedder
	Index    *Index // nil disables hybrid fusion
	TopK     int
}

// Retrieve returns the most relevant chunks for the query. An origin filter
// restricts results to one source and disables BM25 fusion (the in-process
// index is corpus-wide).
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, origin string) ([]models.SearchHit, error) {
	if k <= 0 {
		k = r.TopK
	}
	if k <= 0 {
		k = 4
	}
	start := time.Now()

	vecs, err := r.Embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}
	hits, err := r.Store.SearchChunks(ctx, vecs[0], k, origin)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.Index != nil && origin == "" {
		bmHits, err := r.Index.Search(query, k)
		if err == nil && len(bmHits) > 0 {
			hits = FuseRRF(hits, bmHits, k)
		}
	}

	telemetry.ObserveRetrieval(time.Since(start))
	return hits, nil
}
