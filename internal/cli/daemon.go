package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/actionsum/nudge/internal/config"
	"github.com/actionsum/nudge/internal/daemon"
	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/pkg/detector"
	"github.com/actionsum/nudge/pkg/utils"
)

const (
	daemonChildEnv  = "NUDGE_DAEMON_CHILD"
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 15 * time.Second
)

func newStartCommand(load configLoader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start nudge as a background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}
			if running {
				return fmt.Errorf("daemon is already running (PID: %d)", pid)
			}

			return daemonize(cmd.OutOrStdout(), cfg, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Override the web API port")
	return cmd
}

// daemonize re-executes this binary as "serve" in a new session with its
// standard streams detached.
func daemonize(out io.Writer, cfg *config.Config, port int) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	args := []string{exe, "serve"}
	if port > 0 {
		args = append(args, "--port", fmt.Sprint(port))
	}
	procAttr := &os.ProcAttr{
		Env:   append(os.Environ(), daemonChildEnv+"=1"),
		Files: []*os.File{nil, nil, nil},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	process, err := os.StartProcess(exe, args, procAttr)
	if err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	webPort := cfg.Web.Port
	if port > 0 {
		webPort = port
	}
	fmt.Fprintf(out, "Daemon started successfully (PID: %d)\n", process.Pid)
	fmt.Fprintf(out, "Web API available at: http://%s:%d\n", cfg.Web.Host, webPort)
	fmt.Fprintf(out, "Logs: %s\n", cfg.Daemon.LogFile)
	return process.Release()
}

func newServeCommand(load configLoader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run nudge in the foreground",
		Long: `Run the event producers, both detection loops and the web API in the
foreground until interrupted. Results are printed to stdout and stored in
the detection history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, path, port, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Override the web API port")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, cfgPath string, port int, out io.Writer) error {
	if os.Getenv(daemonChildEnv) == "1" {
		logFile, err := os.OpenFile(cfg.Daemon.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			out = logFile
			defer logFile.Close()
		}
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	if err := dm.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			_, pid, _ := dm.IsRunning()
			return fmt.Errorf("daemon is already running (PID: %d)", pid)
		}
		return err
	}
	defer dm.Release()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg, cfgPath, out, port)
	if err != nil {
		return err
	}

	log.Println("Starting nudge...")
	log.Printf("Configuration:\n%s", cfg.String())

	if err := rt.start(ctx); err != nil {
		stop()
		_ = rt.shutdown(shutdownTimeout)
		return err
	}

	<-ctx.Done()
	log.Println("Received shutdown signal")
	stop()

	if err := rt.shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("Daemon stopped successfully")
	return nil
}

func newStopCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}
			if !running {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			fmt.Fprintf(out, "Stopping daemon (PID: %d)...\n", pid)
			if err := dm.Stop(stopTimeout); err != nil {
				if errors.Is(err, daemon.ErrNotRunning) {
					fmt.Fprintln(out, "Daemon is not running")
					return nil
				}
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		},
	}
}

func newStatusCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status, the latest detection and the focused window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := load()
			if err != nil {
				return err
			}
			return showStatus(cmd.OutOrStdout(), cfg, path)
		},
	}
}

func showStatus(out io.Writer, cfg *config.Config, cfgPath string) error {
	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if running {
		fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
		fmt.Fprintf(out, "Web API: http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	} else {
		fmt.Fprintln(out, "Status: Not running")
	}
	if cfgPath != "" {
		fmt.Fprintf(out, "Config: %s\n", cfgPath)
	}
	fmt.Fprintf(out, "Sensitivity: %.2f, focus policy: %s\n", cfg.Scorer.Sensitivity, cfg.Focus.Policy)

	if db, err := database.Open(cfg.Database.Path); err == nil {
		repo := database.NewRepository(db)
		if latest, err := repo.GetLatestDetection(); err == nil && latest != nil {
			fmt.Fprintf(out, "\nLatest Detection (%s ago):\n", utils.FormatRoundedUnit(time.Since(latest.DetectedAt)))
			fmt.Fprintf(out, "  Source: %s (%s)\n", latest.Source, latest.Confidence)
			if latest.Theme != "" {
				fmt.Fprintf(out, "  Theme: %s\n", latest.Theme)
			}
			fmt.Fprintf(out, "  Offer: %s\n", utils.Truncate(latest.Offer, 100))
		}
		if errs, err := repo.GetErrorLogsSince(time.Now().Add(-24 * time.Hour)); err == nil && len(errs) > 0 {
			fmt.Fprintf(out, "\nErrors in the last 24h: %d (latest: %s)\n", len(errs), utils.Truncate(errs[0].ErrorMsg, 80))
		}
		db.Close()
	}

	det, err := detector.New()
	if err != nil {
		fmt.Fprintf(out, "\nCould not detect current window: %v\n", err)
		return nil
	}
	defer det.Close()

	if info, err := det.GetFocusedWindow(); err == nil && info != nil {
		fmt.Fprintf(out, "\nCurrent Window:\n")
		fmt.Fprintf(out, "  App: %s\n", info.AppName)
		fmt.Fprintf(out, "  Title: %s\n", info.WindowTitle)
		fmt.Fprintf(out, "  Display: %s\n", info.DisplayServer)
	}

	if idle, err := det.GetIdleInfo(); err == nil && idle != nil {
		fmt.Fprintf(out, "\nSystem State:\n")
		fmt.Fprintf(out, "  Idle: %v\n", idle.IsIdle)
		fmt.Fprintf(out, "  Locked: %v\n", idle.IsLocked)
		if idle.IdleTime > 0 {
			fmt.Fprintf(out, "  Idle Time: %ds\n", idle.IdleTime)
		}
	}
	return nil
}
