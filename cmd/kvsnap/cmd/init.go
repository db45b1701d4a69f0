/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ssargent/kvsnap/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with a generated API key",
	Long: `Create the configuration file and the data directory.

An existing configuration is left alone unless --force is given.

Examples:
  kvsnap init
  kvsnap init --dir ./data --config ./kvsnap.yaml
  kvsnap init --force`,
	// the config file may not exist yet, so skip the root config resolution
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := viper.GetString("config")
		if path == "" {
			path = config.GetDefaultConfigPath()
		}

		cfg, created, err := initializeConfig(path, viper.GetString("dir"), force)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !created {
			fmt.Fprintf(out, "Configuration already exists at %s. Use --force to replace it.\n", path)
			return nil
		}
		fmt.Fprintf(out, "Configuration written to %s\n", path)
		fmt.Fprintf(out, "Data directory: %s\n", cfg.Dir)
		fmt.Fprintf(out, "API key: %s\n", cfg.APIKey)
		fmt.Fprintf(out, "\nStart the server with:\n  kvsnap serve --config %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Replace an existing configuration")
}

// initializeConfig writes a fresh configuration to path unless one exists and
// force is false. It reports whether a new configuration was written.
func initializeConfig(path, dir string, force bool) (*config.Config, bool, error) {
	if config.ConfigExists(path) && !force {
		cfg, err := config.LoadConfig(path)
		return cfg, false, err
	}

	cfg, err := config.BootstrapConfig(path, dir)
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, false, fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg, true, nil
}
