package corpus

import (
	"strings"
	"testing"
)

func TestChunkText_Empty(t *testing.T) {
	if got := ChunkText(""); got != nil {
		t.Errorf("expected no chunks, got %d", len(got))
	}
	if got := ChunkText("   \n\t "); got != nil {
		t.Errorf("expected no chunks for whitespace, got %d", len(got))
	}
}

func TestChunkText_DropsShortFragments(t *testing.T) {
	if got := ChunkText("squat depth and knee tracking"); got != nil {
		t.Errorf("fragments at or under %d chars must be dropped, got %v", minChunkChars, got)
	}
}

func TestChunkText_WindowsAndOverlap(t *testing.T) {
	words := make([]string, 1000)
	for i := range words {
		words[i] = "word" + strings.Repeat("x", i%5)
	}
	text := strings.Join(words, " ")

	chunks := ChunkText(text)
	// Stride 350: windows start at 0, 350, 700.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 1000 words, got %d", len(chunks))
	}

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if len(first) != chunkSizeWords {
		t.Errorf("expected %d words in first chunk, got %d", chunkSizeWords, len(first))
	}

	// The last overlap words of one window must open the next.
	tail := first[len(first)-chunkOverlapWords:]
	head := second[:chunkOverlapWords]
	for i := range tail {
		if tail[i] != head[i] {
			t.Fatalf("overlap mismatch at %d: %q vs %q", i, tail[i], head[i])
		}
	}
}

func TestChunkText_NormalizesWhitespace(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "tokenword"
	}
	text := strings.Join(words, "  \n\t ")

	chunks := ChunkText(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0], "  ") {
		t.Error("chunk should not contain collapsed whitespace runs")
	}
}
