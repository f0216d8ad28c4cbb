package ingest

import (
	"strings"
	"testing"
)

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	got := SplitText("hello world", 1000, 200)
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("expected single chunk, got %v", got)
	}
}

func TestSplitText_Empty(t *testing.T) {
	if got := SplitText("   \n\t ", 1000, 200); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestSplitText_OverlapBetweenChunks(t *testing.T) {
	text := strings.Repeat("a", 90) + strings.Repeat("b", 90)
	chunks := SplitText(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// tail of each chunk must reappear at the head of the next
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-20:]
		if !strings.HasPrefix(chunks[i], prevTail) {
			t.Fatalf("chunk %d does not overlap with its predecessor", i)
		}
	}
}

func TestSplitText_CoversWholeText(t *testing.T) {
	text := strings.Repeat("x", 2500)
	chunks := SplitText(text, 1000, 200)
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Fatal("final chunk must end where the text ends")
	}
	total := 0
	for _, c := range chunks {
		if len(c) > 1000 {
			t.Fatalf("chunk exceeds size limit: %d", len(c))
		}
		total += len(c)
	}
	if total < len(text) {
		t.Fatalf("chunks cover %d of %d characters", total, len(text))
	}
}

func TestContentHash_IgnoresWhitespaceAndCase(t *testing.T) {
	a := ContentHash("The  Quick\n\tBrown Fox")
	b := ContentHash("the quick brown fox")
	if a != b {
		t.Fatal("hash should be stable across whitespace and case changes")
	}
	c := ContentHash("the quick brown fox jumps")
	if a == c {
		t.Fatal("different content should hash differently")
	}
}
