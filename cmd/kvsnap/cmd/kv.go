package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ssargent/kvsnap/pkg/config"
	"github.com/ssargent/kvsnap/pkg/store"
)

// withSnapshot loads the configured snapshot into a fresh store, runs fn and,
// when write is set, saves the store back in place
func withSnapshot(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, write bool, fn func(*store.Store) error) error {
	kv := store.New(store.Options{Logger: log})
	if _, err := kv.Load(ctx, cfg.SnapshotPath()); err != nil {
		return err
	}
	if err := fn(kv); err != nil {
		return err
	}
	if !write {
		return nil
	}
	_, err := kv.Save(ctx, cfg.SnapshotPath(), saveOptions(cfg))
	return err
}

func getValue(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, key string) (store.Item, error) {
	var item store.Item
	err := withSnapshot(ctx, cfg, log, false, func(kv *store.Store) error {
		var err error
		item, err = kv.Lookup(key)
		return err
	})
	return item, err
}

func putValue(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, key, value string, ttl time.Duration) error {
	return withSnapshot(ctx, cfg, log, true, func(kv *store.Store) error {
		if ttl > 0 {
			return kv.SetTTL(key, value, ttl)
		}
		return kv.Set(key, value)
	})
}

func deleteKey(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, key string) error {
	return withSnapshot(ctx, cfg, log, true, func(kv *store.Store) error {
		return kv.Delete(key)
	})
}

func incrKey(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, key string, by int64) (int64, error) {
	var result int64
	err := withSnapshot(ctx, cfg, log, true, func(kv *store.Store) error {
		var err error
		result, err = kv.IncrBy(key, by)
		return err
	})
	return result, err
}

func listKeys(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, prefix string) ([]string, error) {
	var keys []string
	err := withSnapshot(ctx, cfg, log, false, func(kv *store.Store) error {
		keys = kv.Keys(prefix)
		return nil
	})
	return keys, err
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a value for a key",
	Long: `Get a value for a key from the snapshot file.

Example:
  kvsnap get mykey
  kvsnap get session --ttl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showTTL, _ := cmd.Flags().GetBool("ttl")

		item, err := getValue(cmd.Context(), appConfig, logger, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), item.Value)
		if showTTL {
			if ttl, ok := item.TTL(time.Now()); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "ttl: %s\n", ttl.Round(time.Millisecond))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "ttl: none")
			}
		}
		return nil
	},
}

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Put a key-value pair",
	Long: `Put a key-value pair into the snapshot file.

Example:
  kvsnap put mykey myvalue
  kvsnap put session abc --ttl 30m`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl < 0 {
			return fmt.Errorf("ttl must not be negative: %s", ttl)
		}

		if err := putValue(cmd.Context(), appConfig, logger, args[0], args[1], ttl); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored key '%s'\n", args[0])
		return nil
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Aliases: []string{"del"},
	Short:   "Delete a key",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deleteKey(cmd.Context(), appConfig, logger, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted key '%s'\n", args[0])
		return nil
	},
}

// incrCmd represents the incr command
var incrCmd = &cobra.Command{
	Use:   "incr <key> [by]",
	Short: "Increment the integer stored under a key",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		by := int64(1)
		if len(args) == 2 {
			var err error
			if by, err = strconv.ParseInt(args[1], 10, 64); err != nil {
				return fmt.Errorf("invalid increment %q: %w", args[1], err)
			}
		}

		value, err := incrKey(cmd.Context(), appConfig, logger, args[0], by)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys [prefix]",
	Short: "List keys, optionally filtered by prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		keys, err := listKeys(cmd.Context(), appConfig, logger, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd, putCmd, deleteCmd, incrCmd, keysCmd)

	getCmd.Flags().Bool("ttl", false, "Also print the remaining time to live")
	putCmd.Flags().Duration("ttl", 0, "Expire the key after this long (e.g. 30s, 10m)")
}
