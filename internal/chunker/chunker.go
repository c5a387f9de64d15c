// Package chunker splits extracted document text into overlapping
// token-bounded chunks while preserving page and offset provenance, so every
// retrieval result can be traced back to its source location.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/rag"
)

// DefaultBudget is the default chunk size in tokens.
const DefaultBudget = 1000

// DefaultOverlap is the default number of tokens shared between consecutive
// chunks.
const DefaultOverlap = 200

// ChunkingError reports malformed chunker input: empty text or a broken
// page-boundary table. It is always permanent — retrying the same input
// cannot succeed.
type ChunkingError struct {
	// Reason describes what was wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *ChunkingError) Error() string { return "chunker: " + e.Reason }

// Page marks where a source page begins in the extracted text.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Offset is the byte offset in the extracted text where the page starts.
	Offset int

	// Confidence is the attribution confidence in [0,1]. Extraction paths
	// with exact offsets use 1.0; fuzzy alignment yields lower values.
	Confidence float64
}

// Config holds the chunking parameters.
type Config struct {
	// Budget is the maximum chunk size in tokens. Defaults to 1000 if zero.
	Budget int

	// Overlap is the number of tokens shared between consecutive chunks.
	// Defaults to 200 if zero; a negative value disables overlap entirely.
	Overlap int
}

// Chunker produces ordered chunk sequences from extracted text.
type Chunker struct {
	// budget and overlap are the resolved token parameters.
	budget  int
	overlap int
}

// New constructs a Chunker, applying defaults and degrading an overlap that
// meets or exceeds the budget to budget/5 rather than failing. A negative
// cfg.Overlap selects zero overlap; zero means unset and takes the default.
func New(cfg Config) *Chunker {
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if cfg.Overlap == 0 {
		overlap = DefaultOverlap
	}
	if overlap >= budget {
		overlap = budget / 5
	}
	return &Chunker{budget: budget, overlap: overlap}
}

// Chunk splits text into overlapping token-bounded chunks for the given
// document. pages maps byte offsets to page numbers; pass nil for a
// single-page document. The final chunk may be shorter than the budget but
// is never dropped.
//
// Invariants on the output: sequence indices are contiguous from 0; the
// overlap region between adjacent chunks is the identical text span; and
// concatenating each chunk's non-overlap prefix reconstructs text exactly.
func (c *Chunker) Chunk(documentID, text string, pages []Page) ([]rag.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ChunkingError{Reason: "input text is empty"}
	}
	pages, err := normalizePages(pages, len(text))
	if err != nil {
		return nil, err
	}

	toks := tokenize(text)
	step := c.budget - c.overlap

	var chunks []rag.Chunk
	for startTok := 0; ; startTok += step {
		endTok := startTok + c.budget
		last := endTok >= len(toks)
		if last {
			endTok = len(toks)
		}

		// Boundaries land on token starts so adjacent chunks share the
		// identical overlap span. The first chunk absorbs any leading
		// whitespace and the last chunk any trailing whitespace.
		start := 0
		if startTok > 0 {
			start = toks[startTok].start
		}
		end := len(text)
		if !last {
			end = toks[endTok].start
		}

		pageStart, pageEnd, conf := attribute(pages, start, end)
		chunks = append(chunks, rag.Chunk{
			ID:             uuid.New().String(),
			DocumentID:     documentID,
			Index:          len(chunks),
			Text:           text[start:end],
			PageStart:      pageStart,
			PageEnd:        pageEnd,
			StartOffset:    start,
			EndOffset:      end,
			PageConfidence: conf,
		})

		if last {
			break
		}
	}
	return chunks, nil
}

// normalizePages validates the page-boundary table and fills in the
// single-page default. Offsets must be strictly increasing, in range, and
// page numbers strictly increasing, otherwise the table is malformed.
func normalizePages(pages []Page, textLen int) ([]Page, error) {
	if len(pages) == 0 {
		return []Page{{Number: 1, Offset: 0, Confidence: 1.0}}, nil
	}
	for i, p := range pages {
		if p.Offset < 0 || p.Offset > textLen {
			return nil, &ChunkingError{Reason: fmt.Sprintf("page %d offset %d out of range [0,%d]", p.Number, p.Offset, textLen)}
		}
		if i > 0 {
			if p.Offset <= pages[i-1].Offset {
				return nil, &ChunkingError{Reason: fmt.Sprintf("page offsets not monotonic: %d after %d", p.Offset, pages[i-1].Offset)}
			}
			if p.Number <= pages[i-1].Number {
				return nil, &ChunkingError{Reason: fmt.Sprintf("page numbers not monotonic: %d after %d", p.Number, pages[i-1].Number)}
			}
		}
	}
	return pages, nil
}

// attribute maps a chunk's byte range to the page numbers it spans and
// returns the lowest attribution confidence among those pages.
func attribute(pages []Page, start, end int) (pageStart, pageEnd int, confidence float64) {
	// Index of the page containing a given offset: the last page whose
	// Offset is <= the target.
	locate := func(off int) int {
		i := sort.Search(len(pages), func(i int) bool { return pages[i].Offset > off })
		if i == 0 {
			return 0
		}
		return i - 1
	}

	first := locate(start)
	lastOff := end - 1
	if lastOff < start {
		lastOff = start
	}
	last := locate(lastOff)

	confidence = 1.0
	for i := first; i <= last; i++ {
		if pages[i].Confidence < confidence {
			confidence = pages[i].Confidence
		}
	}
	return pages[first].Number, pages[last].Number, confidence
}
