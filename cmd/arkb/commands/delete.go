package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewDeleteCmd constructs the `arkb delete` command, which removes a
// document's chunks from the vector store and its catalog entry. Deleting
// an unknown document id succeeds silently.
func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete DOCUMENT_ID",
		Short: "Delete a document and all its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()
			id := args[0]

			store, err := newVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("delete: vector store: %w", err)
			}
			defer store.Close()

			if err := store.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			cat, err := newCatalog()
			if err != nil {
				return fmt.Errorf("delete: catalog: %w", err)
			}
			defer cat.Close()

			if err := cat.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			log.Info("document deleted", slog.String("document_id", id))
			fmt.Printf("deleted %s\n", id)
			return nil
		},
	}
}
