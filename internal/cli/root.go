// Package cli implements the nudge command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actionsum/nudge/internal/config"
)

// Version, Commit and Date are injected at build time via -ldflags.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

const appName = "nudge"

// NewRootCommand creates the nudge root command.
func NewRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Proactive desktop assistant that notices repetitive work and sustained focus",
		Long: `nudge watches desktop activity (application switches, window and tab
titles, clipboard changes and file operations) and offers help when it sees
a short repetitive burst of actions or sustained attention on one topic.

Configuration is read from ~/.config/nudge/config.toml and NUDGE_*
environment variables.`,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/nudge/config.toml)")

	load := func() (*config.Config, string, error) {
		return loadConfig(configPath)
	}

	cmd.AddCommand(newStartCommand(load))
	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newStopCommand(load))
	cmd.AddCommand(newStatusCommand(load))
	cmd.AddCommand(newReportCommand(load))
	cmd.AddCommand(newExportCommand(load))
	cmd.AddCommand(newCapabilityCommand(load))
	cmd.AddCommand(newClearCommand(load))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

type configLoader func() (*config.Config, string, error)

// loadConfig returns the validated configuration and the file it came from,
// which is "" when no file exists.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.FindFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s version %s\n", appName, Version)
			fmt.Fprintf(out, "  commit: %s\n", Commit)
			fmt.Fprintf(out, "  built:  %s\n", Date)
		},
	}
}
