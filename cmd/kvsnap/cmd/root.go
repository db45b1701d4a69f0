/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ssargent/kvsnap/pkg/config"
	"github.com/ssargent/kvsnap/pkg/logging"
	"github.com/ssargent/kvsnap/pkg/store"
)

var (
	// resolved by the root PersistentPreRunE before any subcommand runs
	appConfig *config.Config
	logger    *logrus.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kvsnap",
	Short: "kvsnap - in-memory key/value store with RDB snapshots",
	Long: `kvsnap keeps string keys and values in memory and persists them as
Redis-compatible RDB (version 9) snapshot files.

Configuration is read from the config file, then overridden by KVSNAP_*
environment variables (also loaded from .env and .env.local), then by flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		cfg, err := resolveConfig(viper.GetViper())
		if err != nil {
			return err
		}

		log, err := logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}

		appConfig = cfg
		logger = log
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default is ~/.config/kvsnap/config.yaml)")
	flags.StringP("dir", "d", "", "Directory holding the snapshot file")
	flags.String("dbfilename", "", "Snapshot file name inside --dir")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
}

// initEnv loads .env files and maps KVSNAP_* environment variables onto flags
func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("kvsnap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// resolveConfig loads the config file named by "config" (or the default path)
// and applies any values set in v on top of it. A missing default config file
// is not an error, a missing explicit one is.
func resolveConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.GetDefaultConfigPath()
	}

	var cfg *config.Config
	switch {
	case config.ConfigExists(path):
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case explicit:
		return nil, fmt.Errorf("config file does not exist: %s", path)
	default:
		cfg = config.DefaultConfig()
	}

	if v.IsSet("dir") {
		cfg.Dir = v.GetString("dir")
	}
	if v.IsSet("dbfilename") {
		cfg.DBFilename = v.GetString("dbfilename")
	}
	if v.IsSet("log-level") {
		cfg.Logging.Level = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.Logging.Format = v.GetString("log-format")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("bind") {
		cfg.Bind = v.GetString("bind")
	}
	if v.IsSet("api-key") {
		cfg.APIKey = v.GetString("api-key")
	}
	if v.IsSet("save-interval") {
		cfg.Snapshot.SaveInterval = v.GetDuration("save-interval")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// saveOptions translates the snapshot config into store save options
func saveOptions(cfg *config.Config) store.SaveOptions {
	return store.SaveOptions{
		DisableChecksum:        !cfg.Snapshot.Checksum,
		DisableIntegerEncoding: !cfg.Snapshot.IntegerEncoding,
	}
}
