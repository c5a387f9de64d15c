// Package commands defines all Cobra CLI commands for the arkb binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/audit"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/config"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arkb",
		Short: "arkb — a citation-preserving research document knowledgebase",
		Long: `arkb ingests research documents (PDF and plain text) into a vector store
and answers similarity queries with chunk-level page citations.

Documents are chunked with overlap, embedded in deterministic batches, and
stored atomically so every indexed chunk can be traced back to its source
pages. The embedding backend and vector store are selected via environment
variables or a YAML config file (~/.arkb/config.yaml).

See 'arkb --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.arkb/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewQueryCmd(),
		NewStatusCmd(),
		NewListCmd(),
		NewDeleteCmd(),
		NewVersionCmd(),
	)

	return root
}
