package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pos-system/possync/internal/daemon"
	"github.com/pos-system/possync/internal/seed"
	possync "github.com/pos-system/possync/internal/sync"
	"github.com/pos-system/possync/internal/ui"
)

// NewSyncCommand creates the sync command group.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "One-shot synchronization with the remote store",
	}
	cmd.AddCommand(newSyncPullCommand(opts))
	cmd.AddCommand(newSyncSweepCommand(opts))
	return cmd
}

func newSyncPullCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "pull",
		Aliases: []string{"all"},
		Short:   "Pull every collection from the remote store",
		Long: `Pull categories, items and sales from the remote store.

Categories and items are replaced by the remote contents. Sales are merged:
a sale the device already pushed stays marked synced. A kind whose remote
collection cannot be fetched is reported offline and left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			start := time.Now()
			results, err := e.repos.SyncAll(cmd.Context())
			if err != nil {
				return failed("sync failed", err)
			}
			elapsed := time.Since(start)

			offline := 0
			for _, r := range results {
				if r.Offline {
					offline++
				}
			}
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := f.Success(results, func(w io.Writer) {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := ui.RenderPass("ok")
					if r.Offline {
						state = ui.RenderWarn("offline")
					}
					rows = append(rows, []string{string(r.Kind), ui.Count(r.Fetched), ui.Count(r.Applied), ui.Count(r.Skipped), state})
				}
				fmt.Fprintln(w, ui.Table([]string{"KIND", "FETCHED", "APPLIED", "SKIPPED", "STATE"}, rows))
				fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("took %s", elapsed.Round(time.Millisecond))))
			}); err != nil {
				return err
			}
			if offline == len(results) {
				return NewExitError(ExitFailure, "remote store unreachable")
			}
			return nil
		},
	}
}

func newSyncSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Push every unsynced sale now",
		Long: `Push every sale not yet acknowledged by the remote store.

The remote is probed first; when it is unreachable nothing is attempted.
Every sale is tried even after a failure, and the command exits non-zero
while any sale is left unsynced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			sched := daemon.NewScheduler(e.repos.Sales, e.client, e.cfg.SchedulerConfig(), e.logger)
			res, err := sched.RunOnce(cmd.Context())
			if errors.Is(err, daemon.ErrOffline) {
				return WrapExitError(ExitFailure, "remote store unreachable", err)
			}

			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if werr := f.Success(res, func(w io.Writer) {
				if res.Attempted == 0 {
					fmt.Fprintln(w, ui.RenderPass("Nothing to push"))
					return
				}
				fmt.Fprintf(w, "Pushed %s of %s sale(s)", ui.RenderPass(ui.Count(res.Pushed)), ui.Count(res.Attempted))
				if res.Failed > 0 {
					fmt.Fprintf(w, ", %s failed", ui.RenderFail(ui.Count(res.Failed)))
				}
				fmt.Fprintln(w)
			}); werr != nil {
				return werr
			}
			if err != nil {
				if errors.Is(err, possync.ErrRetryLater) {
					return WrapExitError(ExitFailure, "sales left unsynced", err)
				}
				return failed("sweep failed", err)
			}
			return nil
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:     "seed <catalog-file>",
		GroupID: "data",
		Short:   "Add categories and items from a catalog file",
		Long: `Add categories and items from a TOML, YAML, JSON or JSONL catalog.

Existing categories are reused by name and items already in their category
are skipped, so seeding the same file twice adds nothing the second time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := seed.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load catalog", err)
			}

			e, err := openEnv(opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := seed.Apply(cmd.Context(), e.repos.Categories, e.repos.Items, catalog, seed.Options{DryRun: dryRun})
			if err != nil {
				return failed("seed failed", err)
			}

			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := f.Success(res, func(w io.Writer) {
				verb := "Added"
				if dryRun {
					verb = "Would add"
				}
				fmt.Fprintf(w, "%s %s categor(ies) and %s item(s)\n", verb, ui.Count(res.CategoriesCreated), ui.Count(res.ItemsCreated))
				if res.CategoriesReused+res.ItemsSkipped > 0 {
					fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("reused %d categor(ies), skipped %d existing item(s)", res.CategoriesReused, res.ItemsSkipped)))
				}
				for _, msg := range res.Errors {
					fmt.Fprintf(w, "%s %s\n", ui.RenderFail("!"), msg)
				}
			}); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", len(res.Errors)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count what would be added without writing")
	return cmd
}
