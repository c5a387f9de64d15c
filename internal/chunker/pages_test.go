package chunker

import (
	"strings"
	"testing"
)

func TestAlignPages_ExactPages(t *testing.T) {
	t.Parallel()

	p1 := "The Byzantine generals problem concerns agreement under faults."
	p2 := "Paxos achieves consensus with a majority of non-faulty acceptors."
	p3 := "Raft decomposes consensus into leader election and log replication."
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	pages := AlignPages(text, []string{p1, p2, p3})
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	for i, p := range pages {
		if p.Number != i+1 {
			t.Errorf("page %d numbered %d", i, p.Number)
		}
		if p.Confidence < MatchThreshold {
			t.Errorf("page %d confidence %v below threshold", i+1, p.Confidence)
		}
	}
	if pages[0].Offset != 0 {
		t.Errorf("page 1 offset: got %d, want 0", pages[0].Offset)
	}
	if want := len(p1) + 2; pages[1].Offset != want {
		t.Errorf("page 2 offset: got %d, want %d", pages[1].Offset, want)
	}
}

func TestAlignPages_WhitespaceDrift(t *testing.T) {
	t.Parallel()

	// The page texts differ from the joined text in whitespace only, as
	// happens when an extractor re-wraps lines.
	p1 := "Distributed   snapshots record a\nconsistent global state."
	p2 := "Vector clocks  order events\nwithout synchronized time."
	text := "Distributed snapshots record a consistent global state. Vector clocks order events without synchronized time."

	pages := AlignPages(text, []string{p1, p2})
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	for i, p := range pages {
		if p.Confidence < MatchThreshold {
			t.Errorf("page %d confidence %v below threshold", i+1, p.Confidence)
		}
	}
	if pages[1].Offset <= pages[0].Offset {
		t.Error("page offsets must be strictly increasing")
	}
	if !strings.HasPrefix(text[pages[1].Offset:], "Vector clocks") {
		t.Errorf("page 2 offset %d does not land on its content", pages[1].Offset)
	}
}

func TestAlignPages_UnlocatablePage(t *testing.T) {
	t.Parallel()

	p1 := "Logical time and the ordering of events in a distributed system."
	missing := "Entirely unrelated content that appears nowhere in the text at all."
	text := p1 + " More discussion of happened-before follows here."

	pages := AlignPages(text, []string{p1, missing})
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].Confidence < MatchThreshold {
		t.Errorf("page 1 confidence %v below threshold", pages[0].Confidence)
	}
	if pages[1].Confidence >= MatchThreshold {
		t.Errorf("missing page confidence %v should be below threshold", pages[1].Confidence)
	}
	// The table must still be usable by Chunk.
	if _, err := normalizePages(pages, len(text)); err != nil {
		t.Errorf("aligned table failed validation: %v", err)
	}
}

func TestAlignPages_BlankPage(t *testing.T) {
	t.Parallel()

	p1 := "Quorum intersection guarantees at most one chosen value."
	p3 := "Reconfiguration changes the acceptor set between instances."
	text := p1 + " " + p3

	pages := AlignPages(text, []string{p1, "   \n ", p3})
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	if pages[1].Confidence != 1.0 {
		t.Errorf("blank page confidence: got %v, want 1.0", pages[1].Confidence)
	}
	if _, err := normalizePages(pages, len(text)); err != nil {
		t.Errorf("aligned table failed validation: %v", err)
	}
}

func TestAlignPages_Empty(t *testing.T) {
	t.Parallel()
	if got := AlignPages("some text", nil); got != nil {
		t.Errorf("expected nil for no pages, got %v", got)
	}
}

func TestDiceBigram(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want float64
	}{
		{"night", "night", 1.0},
		{"a", "b", 0.0},
		{"", "night", 0.0},
	}
	for _, tt := range tests {
		if got := diceBigram(tt.a, tt.b); got != tt.want {
			t.Errorf("diceBigram(%q,%q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	// Similar but not identical strings score strictly between 0 and 1.
	got := diceBigram("consensus protocol", "consensus protocols")
	if got <= 0.8 || got >= 1.0 {
		t.Errorf("diceBigram near-match = %v, want in (0.8,1.0)", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	norm, idx := normalize("  Hello\n\tWorld  ")
	if norm != "hello world" {
		t.Fatalf("normalize: got %q", norm)
	}
	if len(idx) != len(norm) {
		t.Fatalf("index map length %d, want %d", len(idx), len(norm))
	}
	// The normalized 'w' maps back to the original 'W'.
	if idx[6] != 9 {
		t.Errorf("origin of 'w': got %d, want 9", idx[6])
	}
}
