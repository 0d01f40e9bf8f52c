package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pos-system/possync/internal/loadtest"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote"
	"github.com/pos-system/possync/internal/store/remote/remotetest"
	possync "github.com/pos-system/possync/internal/sync"
	"github.com/pos-system/possync/internal/ui"
)

// NewLoadTestCommand creates the loadtest command.
func NewLoadTestCommand(opts *RootOptions) *cobra.Command {
	cfg := loadtest.DefaultConfig()
	var (
		noSweep  bool
		inMemory bool
		keep     bool
	)
	cmd := &cobra.Command{
		Use:     "loadtest",
		GroupID: "sync",
		Short:   "Simulate concurrent terminals checking out",
		Long: `Simulate a busy store: terminals check out concurrently while readers
list sales, then report latency and how many sales were left for the sweep.

The run uses a scratch local database, never the device database. Sales
are pushed to the configured remote unless --in-memory-remote is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(c, true)
			if err != nil {
				return err
			}
			defer closeLog()

			dir, err := os.MkdirTemp("", "possync-loadtest-")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create scratch directory", err)
			}
			if keep {
				fmt.Fprintf(cmd.ErrOrStderr(), "Scratch database kept in %s\n", dir)
			} else {
				defer os.RemoveAll(dir)
			}

			db, err := local.Open(filepath.Join(dir, "loadtest.db"), local.WithLogger(logger))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open scratch database", err)
			}
			defer db.Close()

			var store remote.Store
			if inMemory {
				store = remotetest.New()
			} else {
				client := remote.NewClient(c.ClientConfig(), logger)
				defer client.Close()
				store = client
			}

			repos := possync.NewRepositories(db, store, c.SyncOptions(logger))
			defer repos.Close(cmd.Context())

			cfg.Sweep = !noSweep
			cfg.Logger = logger
			report, err := loadtest.Run(cmd.Context(), repos, cfg)
			if err != nil {
				return failed("load test failed", err)
			}
			return newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(report, func(w io.Writer) {
				report.Print(w)
				if report.UnsyncedAtEnd > 0 {
					fmt.Fprintln(w, ui.RenderWarn(fmt.Sprintf("%d sale(s) still unsynced", report.UnsyncedAtEnd)))
				}
			})
		},
	}
	cmd.Flags().IntVar(&cfg.Terminals, "terminals", cfg.Terminals, "concurrent checkout writers")
	cmd.Flags().IntVar(&cfg.SalesPerTerminal, "sales", cfg.SalesPerTerminal, "checkouts per terminal")
	cmd.Flags().IntVar(&cfg.Readers, "readers", cfg.Readers, "concurrent sales readers")
	cmd.Flags().IntVar(&cfg.CatalogSize, "catalog", cfg.CatalogSize, "items in the scratch catalog")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for carts")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "skip the final sweep of unsynced sales")
	cmd.Flags().BoolVar(&inMemory, "in-memory-remote", false, "push to an in-process remote instead of the configured one")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the scratch database")
	return cmd
}
