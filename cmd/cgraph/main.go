package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/codegraph/internal/config"
	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile  string
	verbose  bool
	jsonLogs bool
	logger   *logrus.Logger
	cfg      *config.Config
)

func main() {
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		if errors.IsFatal(err) {
			// invariant violations carry the offending identities as context
			var detailed *errors.Error
			if stderrors.As(err, &detailed) {
				fmt.Fprint(os.Stderr, "Error: "+detailed.DetailedString())
				os.Exit(1)
			}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cgraph",
	Short: "cgraph - incremental code graph builder for Python",
	Long: `cgraph turns a Python source tree into node and relationship batches
for a property graph. Unchanged files are served from a content-addressed
cache, so repeated runs only parse what changed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		// Initialize logger
		logger, err = logging.New(logging.Config{
			Level:      cfg.Log.Level,
			OutputFile: cfg.Log.File,
			JSONFormat: jsonLogs || cfg.Log.JSON,
		})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .cgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON even on a terminal")

	// Set custom version template
	rootCmd.SetVersionTemplate(`cgraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(configCmd)
}
