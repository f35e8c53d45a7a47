package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/codegraph/internal/ingestion"
	"github.com/rohankatakam/codegraph/internal/lexical"
	"github.com/rohankatakam/codegraph/internal/parser"
	"github.com/rohankatakam/codegraph/internal/treesitter"
)

// newRegistry registers every compiled-in parser backend
func newRegistry() *parser.Registry {
	return parser.NewRegistry(
		treesitter.New(cfg.Limits.MaxDepth),
		lexical.New(cfg.Limits.MaxDepth),
	)
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List parser backends and the per-kind selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := newRegistry()
		plan, err := reg.Resolve(cfg.Parser.Baseline, ingestion.EntityKinds, cfg.Parser.Select)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Registered backends:\n")
		for _, name := range reg.Names() {
			fmt.Fprintf(out, "  %s\n", name)
		}
		fmt.Fprintf(out, "\nSelection:\n")
		for _, kind := range ingestion.EntityKinds {
			fmt.Fprintf(out, "  %-9s %s\n", kind, plan.ByKind[kind].Name())
		}
		fmt.Fprintf(out, "\nCache signature: %s\n", ingestion.CacheSignature(plan))
		return nil
	},
}
