package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/kvsnap/pkg/rdb"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kvsnap version and snapshot format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "kvsnap %s (snapshot format %s%s)\n", Version, rdb.Magic, rdb.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
