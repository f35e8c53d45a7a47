package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/codegraph/internal/ingestion"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [root]",
	Short: "Show cache location and entry count",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Cache.Path = cfg.Cache.PathFor(rootArg(args))
		orch, err := ingestion.NewOrchestrator(cfg, newRegistry(), logger)
		if err != nil {
			return err
		}
		defer orch.Close()

		stats, err := orch.Cache().Stats(commandContext(cmd))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Backend:   %s\n", cfg.Cache.Backend)
		fmt.Fprintf(out, "Path:      %s\n", cfg.Cache.Path)
		fmt.Fprintf(out, "Signature: %s\n", orch.Cache().Signature())
		fmt.Fprintf(out, "Entries:   %d\n", stats.Entries)
		return nil
	},
}

var cachePruneAll bool

var cachePruneCmd = &cobra.Command{
	Use:   "prune [root]",
	Short: "Delete entries for content no longer present under root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := rootArg(args)
		ctx := commandContext(cmd)
		cfg.Cache.Path = cfg.Cache.PathFor(root)

		orch, err := ingestion.NewOrchestrator(cfg, newRegistry(), logger)
		if err != nil {
			return err
		}
		defer orch.Close()

		keep := map[string]bool{}
		if !cachePruneAll {
			catalog, err := ingestion.Catalog(ctx, root, cfg.Discovery)
			if err != nil {
				return err
			}
			for _, f := range catalog.Files {
				src, err := os.ReadFile(f.Path)
				if err != nil {
					continue
				}
				keep[ingestion.Fingerprint(src)] = true
			}
		}

		n, err := orch.Cache().Prune(ctx, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
		return nil
	},
}

func rootArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return "."
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	cachePruneCmd.Flags().BoolVar(&cachePruneAll, "all", false, "remove every entry")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}
