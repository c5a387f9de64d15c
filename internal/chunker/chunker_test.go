package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// wordText generates n whitespace-separated tokens.
func wordText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i)
	}
	return strings.Join(words, " ")
}

func TestChunk_SizesWithOverlap(t *testing.T) {
	t.Parallel()

	c := New(Config{Budget: 1000, Overlap: 200})
	text := wordText(2400)

	chunks, err := c.Chunk("doc-1", text, nil)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	// step = 800, so windows start at tokens 0, 800, 1600.
	wantSizes := []int{1000, 1000, 800}
	if len(chunks) != len(wantSizes) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantSizes))
	}
	for i, want := range wantSizes {
		if got := CountTokens(chunks[i].Text); got != want {
			t.Errorf("chunk %d: %d tokens, want %d", i, got, want)
		}
	}
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	text := wordText(50)

	chunks, err := c.Chunk("doc-1", text, nil)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Error("single chunk should carry the whole text")
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 1 {
		t.Errorf("default page attribution: got [%d,%d], want [1,1]", chunks[0].PageStart, chunks[0].PageEnd)
	}
	if chunks[0].PageConfidence != 1.0 {
		t.Errorf("default page confidence: got %v, want 1.0", chunks[0].PageConfidence)
	}
}

func TestChunk_ContiguousIndices(t *testing.T) {
	t.Parallel()

	c := New(Config{Budget: 100, Overlap: 20})
	chunks, err := c.Chunk("doc-1", wordText(950), nil)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Fatalf("chunk %d has index %d", i, ch.Index)
		}
		if ch.DocumentID != "doc-1" {
			t.Fatalf("chunk %d has document id %q", i, ch.DocumentID)
		}
	}
}

func TestChunk_OverlapIsIdenticalSpan(t *testing.T) {
	t.Parallel()

	c := New(Config{Budget: 100, Overlap: 20})
	text := wordText(950)
	chunks, err := c.Chunk("doc-1", text, nil)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatal("expected multiple chunks")
	}

	for i := 0; i < len(chunks)-1; i++ {
		cur, next := chunks[i], chunks[i+1]
		if next.StartOffset >= cur.EndOffset {
			t.Fatalf("chunks %d and %d do not overlap", i, i+1)
		}
		overlap := text[next.StartOffset:cur.EndOffset]
		if !strings.HasSuffix(cur.Text, overlap) {
			t.Errorf("chunk %d does not end with the shared span", i)
		}
		if !strings.HasPrefix(next.Text, overlap) {
			t.Errorf("chunk %d does not start with the shared span", i+1)
		}
		if got := CountTokens(overlap); got != 20 {
			t.Errorf("overlap between %d and %d is %d tokens, want 20", i, i+1, got)
		}
	}
}

func TestChunk_ReconstructsText(t *testing.T) {
	t.Parallel()

	c := New(Config{Budget: 100, Overlap: 20})
	text := "  " + wordText(731) + "\n" // leading and trailing whitespace survive
	chunks, err := c.Chunk("doc-1", text, nil)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	// Concatenating each chunk's non-overlap prefix, plus the final chunk in
	// full, must reproduce the input byte for byte.
	var b strings.Builder
	for i, ch := range chunks {
		if text[ch.StartOffset:ch.EndOffset] != ch.Text {
			t.Fatalf("chunk %d text does not match its offsets", i)
		}
		if i == len(chunks)-1 {
			b.WriteString(ch.Text)
			break
		}
		b.WriteString(text[ch.StartOffset:chunks[i+1].StartOffset])
	}
	if b.String() != text {
		t.Error("chunks do not reconstruct the original text")
	}
}

func TestChunk_EmptyTextFails(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	for _, text := range []string{"", "   \n\t  "} {
		_, err := c.Chunk("doc-1", text, nil)
		var ce *ChunkingError
		if !errors.As(err, &ce) {
			t.Errorf("Chunk(%q): got %v, want ChunkingError", text, err)
		}
	}
}

func TestChunk_MalformedPageTableFails(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	text := wordText(100)

	tests := []struct {
		name  string
		pages []Page
	}{
		{"offset out of range", []Page{{Number: 1, Offset: len(text) + 5, Confidence: 1}}},
		{"negative offset", []Page{{Number: 1, Offset: -1, Confidence: 1}}},
		{"non-monotonic offsets", []Page{
			{Number: 1, Offset: 0, Confidence: 1},
			{Number: 2, Offset: 50, Confidence: 1},
			{Number: 3, Offset: 40, Confidence: 1},
		}},
		{"non-monotonic numbers", []Page{
			{Number: 2, Offset: 0, Confidence: 1},
			{Number: 1, Offset: 50, Confidence: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Chunk("doc-1", text, tt.pages)
			var ce *ChunkingError
			if !errors.As(err, &ce) {
				t.Errorf("got %v, want ChunkingError", err)
			}
		})
	}
}

func TestChunk_PageAttribution(t *testing.T) {
	t.Parallel()

	// 60 tokens across three pages of 20 tokens each; budget 25 forces
	// chunks that straddle page boundaries.
	text := wordText(60)
	perPage := len(wordText(20)) + 1 // tokens plus the separating space
	pages := []Page{
		{Number: 1, Offset: 0, Confidence: 1.0},
		{Number: 2, Offset: perPage, Confidence: 1.0},
		{Number: 3, Offset: 2 * perPage, Confidence: 0.9},
	}

	c := New(Config{Budget: 25, Overlap: 5})
	chunks, err := c.Chunk("doc-1", text, pages)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	// First chunk covers tokens 0–24: pages 1–2.
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 2 {
		t.Errorf("chunk 0 pages: got [%d,%d], want [1,2]", chunks[0].PageStart, chunks[0].PageEnd)
	}
	if chunks[0].PageConfidence != 1.0 {
		t.Errorf("chunk 0 confidence: got %v, want 1.0", chunks[0].PageConfidence)
	}

	// The last chunk reaches page 3 and must inherit its lower confidence.
	last := chunks[len(chunks)-1]
	if last.PageEnd != 3 {
		t.Errorf("last chunk PageEnd: got %d, want 3", last.PageEnd)
	}
	if last.PageConfidence != 0.9 {
		t.Errorf("last chunk confidence: got %v, want 0.9", last.PageConfidence)
	}

	// Page ranges never move backwards across the sequence.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].PageStart < chunks[i-1].PageStart {
			t.Errorf("chunk %d PageStart went backwards", i)
		}
	}
}

func TestNew_DegradesExcessiveOverlap(t *testing.T) {
	t.Parallel()

	c := New(Config{Budget: 100, Overlap: 150})
	if c.overlap != 20 {
		t.Errorf("overlap: got %d, want budget/5 = 20", c.overlap)
	}

	c = New(Config{})
	if c.budget != DefaultBudget || c.overlap != DefaultOverlap {
		t.Errorf("defaults: got (%d,%d), want (%d,%d)", c.budget, c.overlap, DefaultBudget, DefaultOverlap)
	}
}

func TestChunk_NegativeOverlapDisablesOverlap(t *testing.T) {
	t.Parallel()

	c := New(Config{Budget: 25, Overlap: -1})
	if c.overlap != 0 {
		t.Fatalf("overlap: got %d, want 0", c.overlap)
	}

	text := wordText(60)
	chunks, err := c.Chunk("doc-1", text, nil)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	// With no overlap, chunks partition the text: each chunk starts where
	// the previous one ended and no token appears twice.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartOffset != chunks[i-1].EndOffset {
			t.Errorf("chunk %d starts at %d, previous ended at %d",
				i, chunks[i].StartOffset, chunks[i-1].EndOffset)
		}
	}
	var rebuilt strings.Builder
	for _, ch := range chunks {
		rebuilt.WriteString(ch.Text)
	}
	if rebuilt.String() != text {
		t.Error("concatenated chunks do not reconstruct the text")
	}
	if got := len(tokenize(chunks[2].Text)); got != 10 {
		t.Errorf("final chunk: got %d tokens, want 10", got)
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two\tthree\nfour", 4},
		{"  leading and trailing  ", 3},
	}
	for _, tt := range tests {
		if got := CountTokens(tt.in); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
