package retrieval

import (
	"testing"

	"github.com/insightlab/analyst/models"
)

func TestFuseRRF_SharedHitRanksFirst(t *testing.T) {
	a := []models.SearchHit{
		{ChunkID: "s1#000", Rank: 1},
		{ChunkID: "s1#001", Rank: 2},
	}
	b := []models.SearchHit{
		{ChunkID: "s2#000", Rank: 1},
		{ChunkID: "s1#000", Rank: 2},
	}
	fused := FuseRRF(a, b, 3)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(fused))
	}
	// s1#000 appears in both lists and must rank first
	if fused[0].ChunkID != "s1#000" {
		t.Fatalf("expected shared hit first, got %q", fused[0].ChunkID)
	}
	for i, h := range fused {
		if h.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, h.Rank)
		}
	}
}

func TestFuseRRF_TruncatesToK(t *testing.T) {
	a := []models.SearchHit{
		{ChunkID: "a", Rank: 1},
		{ChunkID: "b", Rank: 2},
		{ChunkID: "c", Rank: 3},
	}
	fused := FuseRRF(a, nil, 2)
	if len(fused) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(fused))
	}
}

func TestIndexRemoveSourceChunks(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	first := []models.Chunk{
		{ID: models.ChunkKey("s1", 0), Origin: "https://example.com/a", Content: "revenue grew in the first half"},
		{ID: models.ChunkKey("s1", 1), Origin: "https://example.com/a", Content: "margins collapsed in the second half"},
		{ID: models.ChunkKey("s2", 0), Origin: "https://example.com/b", Content: "unrelated industry survey"},
	}
	if err := idx.IndexChunks(first); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	// re-ingest of s1 yields a single chunk; ord 1 must disappear
	if err := idx.RemoveSourceChunks("s1"); err != nil {
		t.Fatalf("RemoveSourceChunks: %v", err)
	}
	if err := idx.IndexChunks([]models.Chunk{
		{ID: models.ChunkKey("s1", 0), Origin: "https://example.com/a", Content: "revenue grew all year"},
	}); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	hits, err := idx.Search("margins collapsed", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.ChunkID == models.ChunkKey("s1", 1) {
			t.Fatal("stale chunk still returned after re-ingest")
		}
	}
	if hits, err := idx.Search("survey", 5); err != nil || len(hits) != 1 {
		t.Fatalf("other sources must be untouched, got %v (%v)", hits, err)
	}
}

func TestIndexSearch(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	chunks := []models.Chunk{
		{ID: models.ChunkKey("s1", 0), Origin: "https://example.com/a", Title: "A", Content: "quarterly revenue grew strongly"},
		{ID: models.ChunkKey("s1", 1), Origin: "https://example.com/a", Title: "A", Content: "the weather was pleasant in June"},
	}
	if err := idx.IndexChunks(chunks); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	hits, err := idx.Search("revenue", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ChunkID != models.ChunkKey("s1", 0) {
		t.Fatalf("unexpected hit: %q", hits[0].ChunkID)
	}
	if hits[0].Origin != "https://example.com/a" {
		t.Fatalf("metadata not joined onto hit: %+v", hits[0])
	}
	if hits[0].Rank != 1 {
		t.Fatalf("expected rank 1, got %d", hits[0].Rank)
	}
}
