package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ssargent/kvsnap/pkg/archive"
	"github.com/ssargent/kvsnap/pkg/config"
	"github.com/ssargent/kvsnap/pkg/store"
)

func listArchive(w io.Writer, cfg *config.Config) error {
	arc, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		return err
	}
	defer arc.Close()

	infos, err := arc.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No archived snapshots")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", info.ID, info.Created.Format(time.RFC3339), info.Size)
	}
	return tw.Flush()
}

// restoreArchive validates an archived snapshot and writes it over the
// configured snapshot path. id "latest" picks the newest one.
func restoreArchive(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, id string) (*store.SaveResult, error) {
	arc, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	var data []byte
	if id == "latest" {
		_, data, err = arc.Latest()
	} else {
		var parsed ksuid.KSUID
		if parsed, err = ksuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid snapshot id %q: %w", id, err)
		}
		data, err = arc.Get(parsed)
	}
	if err != nil {
		return nil, err
	}

	kv := store.New(store.Options{Logger: log})
	if _, err := kv.LoadBytes(ctx, data); err != nil {
		return nil, fmt.Errorf("archived snapshot %s is not valid: %w", id, err)
	}
	return kv.Save(ctx, cfg.SnapshotPath(), saveOptions(cfg))
}

func pruneArchive(cfg *config.Config, keep int) (int, error) {
	arc, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		return 0, err
	}
	defer arc.Close()
	return arc.Prune(keep)
}

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage archived snapshots",
	Long: `Snapshots saved by the server are copied into an archive when
snapshot.archive_on_save is enabled. These commands list, restore and prune
those copies.`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived snapshots, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listArchive(cmd.OutOrStdout(), appConfig)
	},
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore <id|latest>",
	Short: "Replace the snapshot file with an archived snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := restoreArchive(cmd.Context(), appConfig, logger, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %d entries to %s\n", res.Entries, res.Path)
		return nil
	},
}

var archivePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest archived snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if keep < 0 {
			return fmt.Errorf("keep must not be negative: %d", keep)
		}
		removed, err := pruneArchive(appConfig, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d archived snapshots\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveRestoreCmd, archivePruneCmd)
	archivePruneCmd.Flags().Int("keep", 10, "Number of newest snapshots to keep")
}
