// Command arkb is the entry point for the academic research knowledgebase.
// It provides a CLI interface (via Cobra) for ingesting documents into the
// vector store, querying them with citation-bearing results, and managing
// the document catalog.
package main

import (
	"fmt"
	"os"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/cmd/arkb/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
