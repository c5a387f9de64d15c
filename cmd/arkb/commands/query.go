package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/embedder"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/rag"
)

// NewQueryCmd constructs the `arkb query` command, which runs a similarity
// search against the vector store and prints citation-bearing results.
func NewQueryCmd() *cobra.Command {
	var topK int
	var filterPairs []string

	cmd := &cobra.Command{
		Use:   "query TEXT",
		Short: "Search the knowledgebase and cite source pages",
		Long: `Embed the query text and return the most similar chunks.

Each result shows the similarity score, source document, and the page range
the chunk was drawn from. Filters restrict results to documents whose
metadata matches every given key=value pair exactly.

Examples:
  arkb query "consensus under partial synchrony"
  arkb query --top-k 10 --filter course=cs7210 "vector clocks"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("query: %w", err)
			}

			filter, err := parseMeta(filterPairs)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			batcher, err := newBatcher()
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			store, err := newVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("query: vector store: %w", err)
			}
			defer store.Close()

			if topK <= 0 {
				topK = getEnvInt("SEARCH_TOP_K", 5)
			}

			retriever, err := rag.NewRetriever(batcher, store, topK)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			chunks, err := retriever.Retrieve(ctx, args[0], topK, rag.Filter(filter))
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if len(chunks) == 0 {
				fmt.Println("no results")
				return nil
			}

			for i, c := range chunks {
				fmt.Printf("%d. [%.4f] %s %s\n", i+1, c.Score, c.DocumentID, citation(c))
				fmt.Printf("   %s\n\n", snippet(c.Text, 240))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to return (default: SEARCH_TOP_K or 5)")
	cmd.Flags().StringArrayVarP(&filterPairs, "filter", "f", nil, "Metadata filter as key=value (repeatable, all must match)")

	return cmd
}

// citation formats a chunk's page attribution for display. Low-confidence
// page alignment is marked so readers know the range is approximate.
func citation(c rag.Chunk) string {
	pages := fmt.Sprintf("p.%d", c.PageStart)
	if c.PageEnd > c.PageStart {
		pages = fmt.Sprintf("pp.%d-%d", c.PageStart, c.PageEnd)
	}
	if c.PageConfidence < 1.0 {
		return fmt.Sprintf("(%s, ~%.0f%% confidence)", pages, c.PageConfidence*100)
	}
	return fmt.Sprintf("(%s)", pages)
}

// snippet truncates text to at most n bytes on a rune boundary for display.
func snippet(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && text[n]&0xC0 == 0x80 {
		n--
	}
	return text[:n] + "…"
}
