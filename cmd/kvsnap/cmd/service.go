/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ssargent/kvsnap/pkg/config"
)

const (
	serviceName     = "kvsnap.service"
	serviceUnitPath = "/etc/systemd/system/" + serviceName
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage kvsnap as a systemd service",
	Long: `Manage kvsnap as a systemd service. systemd stops the service with
SIGTERM, which makes the server write a final snapshot before exiting.`,
	// install may have to create the config file
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
}

// installServiceCmd represents the service install command
var installServiceCmd = &cobra.Command{
	Use:   "install",
	Short: "Install kvsnap as a systemd service",
	Long: `Install kvsnap as a systemd service.

This will:
- Create or use existing configuration
- Generate the systemd unit file
- Enable and optionally start the service

Examples:
  sudo kvsnap service install
  sudo kvsnap service install --dir /var/lib/kvsnap --user kvsnap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		binary, _ := cmd.Flags().GetString("binary")
		startNow, _ := cmd.Flags().GetBool("start")

		if os.Geteuid() != 0 {
			return fmt.Errorf("service install requires root privileges, run with: sudo kvsnap service install")
		}

		configPath := viper.GetString("config")
		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		dir := viper.GetString("dir")
		if dir == "" {
			dir = "/var/lib/kvsnap"
		}

		cfg, created, err := initializeConfig(configPath, dir, false)
		if err != nil {
			return err
		}
		if created {
			cmd.Printf("Created new configuration at %s\n", configPath)
		}

		unit := renderSystemdUnit(cfg, configPath, user, binary)
		if err := os.WriteFile(serviceUnitPath, []byte(unit), 0644); err != nil {
			return fmt.Errorf("failed to write unit file: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
		if err := runSystemctlCommand("enable", serviceName); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
		if startNow {
			if err := runSystemctlCommand("start", serviceName); err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}
		}

		cmd.Printf("Service: %s\n", serviceName)
		cmd.Printf("Config: %s\n", configPath)
		cmd.Printf("Snapshot: %s\n", cfg.SnapshotPath())
		cmd.Printf("To view logs: sudo journalctl -u %s -f\n", serviceName)
		return nil
	},
}

// uninstallServiceCmd represents the service uninstall command
var uninstallServiceCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the kvsnap service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() != 0 {
			return fmt.Errorf("service uninstall requires root privileges, run with: sudo kvsnap service uninstall")
		}

		_ = runSystemctlCommand("stop", serviceName)
		if err := runSystemctlCommand("disable", serviceName); err != nil {
			cmd.Printf("Warning: could not disable service: %v\n", err)
		}
		if err := os.Remove(serviceUnitPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}

		cmd.Printf("kvsnap service uninstalled, configuration and snapshots were kept\n")
		return nil
	},
}

// systemctlCmd builds a subcommand that forwards to systemctl
func systemctlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystemctlCommand(action, serviceName)
		},
	}
}

// logsCmd represents the service logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show kvsnap service logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")
		return runCommand("journalctl", journalArgs(follow, lines)...)
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(
		installServiceCmd,
		uninstallServiceCmd,
		systemctlCmd("start", "Start the kvsnap service"),
		systemctlCmd("stop", "Stop the kvsnap service and write a final snapshot"),
		systemctlCmd("restart", "Restart the kvsnap service"),
		systemctlCmd("status", "Show kvsnap service status"),
		logsCmd,
	)

	installServiceCmd.Flags().String("user", "kvsnap", "User to run the service as")
	installServiceCmd.Flags().String("binary", "/usr/local/bin/kvsnap", "Path of the kvsnap binary")
	installServiceCmd.Flags().Bool("start", true, "Start the service after installation")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
}

// renderSystemdUnit returns the unit file that runs kvsnap serve for cfg
func renderSystemdUnit(cfg *config.Config, configPath, user, binary string) string {
	readWrite := []string{cfg.Dir, filepath.Dir(configPath)}
	if cfg.Snapshot.ArchiveDir != "" {
		readWrite = append(readWrite, cfg.Snapshot.ArchiveDir)
	}

	unit := fmt.Sprintf(`[Unit]
Description=kvsnap key/value server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
KillSignal=SIGTERM
TimeoutStopSec=30
NoNewPrivileges=true
UMask=0077
`, user, user, binary, configPath)
	for _, p := range readWrite {
		unit += "ReadWritePaths=" + p + "\n"
	}
	return unit + `
[Install]
WantedBy=multi-user.target
`
}

func journalArgs(follow bool, lines int) []string {
	args := []string{"-u", serviceName}
	if follow {
		args = append(args, "-f")
	}
	if lines > 0 {
		args = append(args, fmt.Sprintf("-n%d", lines))
	}
	return args
}

// runSystemctlCommand runs a systemctl command
func runSystemctlCommand(args ...string) error {
	return runCommand("systemctl", args...)
}

// runCommand runs a system command and returns its error
func runCommand(command string, args ...string) error {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
