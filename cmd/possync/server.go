package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/daemon"
	"github.com/pos-system/possync/internal/docserver"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/ui"
)

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(opts *RootOptions) *cobra.Command {
	var dashboardPort int
	cmd := &cobra.Command{
		Use:     "daemon",
		GroupID: "sync",
		Short:   "Keep the local database in sync until interrupted",
		Long: `Run the sync daemon in the foreground.

On start the daemon pulls every collection from the remote store, then
follows each collection's change feed and sweeps unsynced sales on a
schedule, backing off while the remote keeps failing. Only one daemon may
run per database.

A live dashboard is served on --dashboard-port (negative disables it).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, false)
			if err != nil {
				return err
			}
			defer e.Close()

			dc := e.cfg.DaemonConfig(e.logger)
			if cmd.Flags().Changed("dashboard-port") {
				dc.DashboardPort = dashboardPort
			}

			d, err := daemon.New(e.db, e.repos, e.client, dc)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create daemon", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e.logger.Info("daemon starting",
				zap.String("db", e.cfg.Local.Path),
				zap.String("remote", e.cfg.Remote.URL))

			err = d.Start(ctx)
			switch {
			case errors.Is(err, daemon.ErrAlreadyRunning):
				return WrapExitError(ExitCommandError, "another daemon holds this database", err)
			case err != nil && !errors.Is(err, context.Canceled):
				return WrapExitError(ExitFailure, "daemon stopped", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&dashboardPort, "dashboard-port", 8090, "dashboard port (0 picks a free port, negative disables)")
	return cmd
}

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr, path string
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "server",
		Short:   "Run the document server devices sync with",
		Long: `Run the document server.

The server stores categories, items and sales as JSON documents and streams
changes to connected devices over a websocket feed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closeLog()

			sc := cfg.DocServerConfig(logger)
			if addr != "" {
				sc.Addr = addr
			}
			if path != "" {
				sc.DBPath = path
			}

			srv, err := docserver.New(sc)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open document store", err)
			}
			if err := srv.Start(); err != nil {
				_ = srv.Stop()
				return WrapExitError(ExitCommandError, "failed to start document server", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Document server listening on %s\n", ui.RenderAccent(srv.Addr()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			if err := srv.Stop(); err != nil {
				return WrapExitError(ExitFailure, "failed to stop document server", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&path, "path", "", "document database path (overrides server.path)")
	return cmd
}

// statusOutput is the structured result of `status`.
type statusOutput struct {
	Config   string       `json:"config,omitempty" yaml:"config,omitempty"`
	Database string       `json:"database" yaml:"database"`
	Remote   string       `json:"remote" yaml:"remote"`
	Online   bool         `json:"online" yaml:"online"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
	Counts   local.Counts `json:"counts" yaml:"counts"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show local record counts and remote reachability",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			counts, err := e.db.CountsContext(ctx)
			if err != nil {
				return failed("failed to count records", err)
			}

			out := statusOutput{
				Config:   e.cfg.File,
				Database: e.cfg.Local.Path,
				Remote:   e.cfg.Remote.URL,
				Counts:   counts,
			}
			timeout := e.cfg.Sync.ProbeTimeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			if err := e.client.Ping(pingCtx); err != nil {
				out.Error = err.Error()
			} else {
				out.Online = true
			}
			cancel()

			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(out, func(w io.Writer) {
				remote := ui.RenderPass("online")
				if !out.Online {
					remote = ui.RenderFail("offline")
				}
				if out.Config != "" {
					fmt.Fprintf(w, "Config     %s\n", out.Config)
				}
				fmt.Fprintf(w, "Database   %s\n", out.Database)
				fmt.Fprintf(w, "Remote     %s (%s)\n", out.Remote, remote)
				fmt.Fprintf(w, "Categories %s\n", ui.Count(counts.Categories))
				fmt.Fprintf(w, "Items      %s\n", ui.Count(counts.Items))
				fmt.Fprintf(w, "Sales      %s", ui.Count(counts.Sales))
				if counts.UnsyncedSales > 0 {
					fmt.Fprintf(w, " (%s)", ui.RenderWarn(fmt.Sprintf("%d pending", counts.UnsyncedSales)))
				}
				fmt.Fprintln(w)
			})
		},
	}
}
