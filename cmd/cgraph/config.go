package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/codegraph/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage cgraph configuration",
	Long:  `View, validate and initialize cgraph configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
.env files and CGRAPH_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and parser selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := cfg.Validate()
		for _, w := range result.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
		}
		if err := result.Err(); err != nil {
			return err
		}
		reg := newRegistry()
		if _, err := reg.Resolve(cfg.Parser.Baseline, config.EntityKinds, cfg.Parser.Select); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current configuration to .cgraph/config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(".cgraph", "config.yaml")
		if cfgFile != "" {
			path = cfgFile
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
}
