package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/actionsum/nudge/internal/capability"
	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/internal/reporter"
	"github.com/actionsum/nudge/pkg/utils"
)

// openRepo opens the configured database for a one-shot command.
func openRepo(load configLoader) (*database.DB, *database.Repository, error) {
	cfg, _, err := load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, database.NewRepository(db), nil
}

func newReportCommand(load configLoader) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:       "report [day|week|month]",
		Short:     "Summarize detections by theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"day", "today", "week", "month"},
		RunE: func(cmd *cobra.Command, args []string) error {
			periodType := "day"
			if len(args) > 0 {
				periodType = args[0]
			}

			db, repo, err := openRepo(load)
			if err != nil {
				return err
			}
			defer db.Close()

			rep := reporter.New(repo)
			report, err := rep.GenerateReport(periodType)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				jsonStr, err := rep.FormatReportJSON(report)
				if err != nil {
					return fmt.Errorf("failed to format JSON: %w", err)
				}
				fmt.Fprintln(out, jsonStr)
				return nil
			}
			fmt.Fprintln(out, rep.FormatReportText(report))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func newExportCommand(load configLoader) *cobra.Command {
	var (
		compress bool
		since    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export detection history as JSON lines",
		Long: `Export detection history as one JSON object per line. Files ending in
.zst, or any file with --zstd, are zstd-compressed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, repo, err := openRepo(load)
			if err != nil {
				return err
			}
			defer db.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			n, err := reporter.New(repo).ExportFile(args[0], from, compress)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d detections to %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&compress, "zstd", false, "Compress the export with zstd")
	cmd.Flags().DurationVar(&since, "since", 0, "Only export detections newer than this (e.g. 168h)")
	return cmd
}

func newCapabilityCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capability",
		Aliases: []string{"cap"},
		Short:   "Manage the local capability catalog",
		Long: `Capabilities are the things nudge can point the user to. Installed ones
are mentioned to the reasoning service so it does not offer them again;
keywords from focus detections are matched against the whole catalog.`,
	}

	cmd.AddCommand(newCapabilityAddCommand(load))
	cmd.AddCommand(newCapabilityListCommand(load))
	cmd.AddCommand(newCapabilityRemoveCommand(load))
	cmd.AddCommand(newCapabilityClearCommand(load))
	return cmd
}

func withCatalog(load configLoader, fn func(*capability.Catalog) error) error {
	db, _, err := openRepo(load)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(capability.New(db))
}

func newCapabilityAddCommand(load configLoader) *cobra.Command {
	var (
		description string
		keywords    []string
		installed   bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item := &models.Capability{
				Name:        args[0],
				Description: description,
				Keywords:    strings.Join(keywords, ","),
				Installed:   installed,
			}
			return withCatalog(load, func(c *capability.Catalog) error {
				if err := c.Add(cmd.Context(), item); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Capability %s saved\n", item.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "What the capability does")
	cmd.Flags().StringSliceVarP(&keywords, "keywords", "k", nil, "Search keywords (comma separated)")
	cmd.Flags().BoolVar(&installed, "installed", false, "Mark the capability as already installed")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newCapabilityListCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the capability catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(load, func(c *capability.Catalog) error {
				caps, err := c.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(caps) == 0 {
					fmt.Fprintln(out, "No capabilities")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tINSTALLED\tKEYWORDS\tDESCRIPTION")
				for _, item := range caps {
					fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", item.Name, item.Installed, item.Keywords, utils.Truncate(item.Description, 60))
				}
				return w.Flush()
			})
		},
	}
}

func newCapabilityRemoveCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(load, func(c *capability.Catalog) error {
				if err := c.Remove(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("capability %s not found", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Capability %s removed\n", args[0])
				return nil
			})
		},
	}
}

func newCapabilityClearCommand(load configLoader) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes && !confirm(cmd.InOrStdin(), out, "This will delete the whole capability catalog.") {
				fmt.Fprintln(out, "Operation cancelled")
				return nil
			}
			return withCatalog(load, func(c *capability.Catalog) error {
				if err := c.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Capability catalog cleared")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func newClearCommand(load configLoader) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete detection history and error logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes && !confirm(cmd.InOrStdin(), out, "This will delete all detection history.") {
				fmt.Fprintln(out, "Operation cancelled")
				return nil
			}

			db, repo, err := openRepo(load)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repo.Clear(); err != nil {
				return fmt.Errorf("failed to clear database: %w", err)
			}
			fmt.Fprintln(out, "Database cleared successfully")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, warning string) bool {
	fmt.Fprintf(out, "%s Are you sure? (yes/no): ", warning)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y"
}
