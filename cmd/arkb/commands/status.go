package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCmd constructs the `arkb status` command, which reports one
// document's pipeline state from the catalog.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status DOCUMENT_ID",
		Short: "Show a document's ingestion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := newCatalog()
			if err != nil {
				return fmt.Errorf("status: catalog: %w", err)
			}
			defer cat.Close()

			rec, err := cat.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			fmt.Printf("document:  %s\n", rec.ID)
			fmt.Printf("filename:  %s\n", rec.Filename)
			fmt.Printf("format:    %s\n", rec.Format)
			fmt.Printf("state:     %s\n", rec.State)
			if rec.State == "failed" {
				fmt.Printf("failed at: %s (%s)\n", rec.FailedStage, rec.ErrorKind)
			}
			if rec.TextLength > 0 {
				fmt.Printf("text:      %d bytes\n", rec.TextLength)
			}
			for k, v := range rec.Metadata {
				fmt.Printf("meta:      %s=%s\n", k, v)
			}
			fmt.Printf("updated:   %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

// NewListCmd constructs the `arkb list` command, which lists all catalogued
// documents and their states.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all catalogued documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := newCatalog()
			if err != nil {
				return fmt.Errorf("list: catalog: %w", err)
			}
			defer cat.Close()

			recs, err := cat.List(ctx)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("no documents ingested")
				return nil
			}

			for _, rec := range recs {
				fmt.Printf("%s  %-10s  %s\n", rec.ID, rec.State, rec.Filename)
			}
			return nil
		},
	}
}
