package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/codegraph/internal/ingestion"
	"github.com/rohankatakam/codegraph/internal/output"
)

var (
	runJobID   string
	runOutDir  string
	runWorkers int
	runCache   string
	runCalls   string
	runFormat  string
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Build graph batches for a Python source tree",
	Long: `Catalog every Python file under root, extract classes, functions,
variables and imports, resolve relationships across files and write the
batches, template catalog, envelope and run manifest.

Examples:
  cgraph run ./src
  cgraph run ./src --out build/graph --workers 16
  cgraph run . --cache memory --calls heuristic`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "job id stamped on every batch (default: random UUID)")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "artifact directory (default: <root>/.cgraph/out)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "files processed concurrently (default from config)")
	runCmd.Flags().StringVar(&runCache, "cache", "", "cache backend: bolt, sqlite or memory")
	runCmd.Flags().StringVar(&runCalls, "calls", "", "CALLS resolution: off, strict or heuristic")
	runCmd.Flags().StringVar(&runFormat, "format", "", "manifest/envelope/template format: json or yaml")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "one-line summary")
}

func runRun(cmd *cobra.Command, args []string) error {
	start := time.Now()
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	if runCache != "" {
		cfg.Cache.Backend = runCache
	}
	if runCalls != "" {
		cfg.Resolve.Calls = runCalls
	}
	if runFormat != "" {
		cfg.Emit.Format = runFormat
	}
	if err := cfg.Validate().Err(); err != nil {
		return err
	}
	if runJobID == "" {
		runJobID = uuid.NewString()
	}
	if runOutDir == "" {
		runOutDir = ingestion.DefaultOutDir(root)
	}
	cfg.Cache.Path = cfg.Cache.PathFor(root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := ingestion.NewOrchestrator(cfg, newRegistry(), logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	result, runErr := orch.Run(ctx, ingestion.RunOptions{Root: root, OutDir: runOutDir, JobID: runJobID})
	if result != nil && result.Manifest != nil {
		level := output.GetDefaultVerbosity()
		if runQuiet {
			level = output.VerbosityQuiet
		}
		summary := &output.Summary{
			Manifest: result.Manifest,
			Envelope: result.Envelope,
			OutDir:   runOutDir,
			Elapsed:  time.Since(start),
		}
		if err := output.NewFormatter(level).Format(summary, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return runErr
}
