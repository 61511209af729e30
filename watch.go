package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gamenative/depotsync/internal/catalog"
	"github.com/gamenative/depotsync/internal/depot"
	"github.com/gamenative/depotsync/internal/notify"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Continuously reconcile from the change feed",
		Long: `Subscribe to the change-announcement feed and reconcile app state as
announcements arrive. If an install root is configured, the install tree
is watched and depots deleted on disk are dropped from tracked state.

Runs until interrupted. The first SIGINT/SIGTERM drains in-flight cycles;
a second forces exit.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	if resolvedCfg.Sync.FeedURL == "" {
		return errors.New("no feed URL configured: set sync.feed_url or DEPOTSYNC_FEED_URL")
	}

	manifest, err := catalog.Load(resolvedCfg.Paths.Manifest)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	tracker := depot.NewChangeTracker(st, logger)
	machine := depot.NewStateMachine(st, manifest, logger)
	reconciler := depot.NewReconciler(tracker, machine, manifest, logger)
	listener := notify.NewListener(resolvedCfg.Sync.FeedURL, logger)

	ctx := shutdownContext(cmd.Context(), logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(listener.Run(gctx))
	})

	g.Go(func() error {
		for ev := range listener.Events() {
			reconcileEvent(gctx, reconciler, logger, ev)
		}

		return nil
	})

	if root := resolvedCfg.Paths.InstallRoot; root != "" {
		watcher := depot.NewLibraryWatcher(root, logger)

		g.Go(func() error {
			return ignoreCancel(watcher.Run(gctx))
		})

		g.Go(func() error {
			for removal := range watcher.Removals() {
				applyRemoval(gctx, machine, logger, removal)
			}

			return nil
		})
	}

	logger.Info("watching for changes", "feed", resolvedCfg.Sync.FeedURL)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	return nil
}

// reconcileEvent applies one live announcement, tolerating the rejection
// that occurs when a previous cycle for the same app is still running:
// the feed will re-announce and the change-number check makes retries safe.
func reconcileEvent(ctx context.Context, r *depot.Reconciler, logger *slog.Logger, ev depot.ChangeEvent) {
	result, err := r.Reconcile(ctx, ev)
	if err != nil {
		if errors.Is(err, depot.ErrReconciliationInProgress) {
			logger.Debug("reconcile cycle already running, skipping announcement",
				"app_id", ev.AppID, "change_number", ev.ChangeNumber)

			return
		}

		logger.Error("reconcile failed",
			"app_id", ev.AppID, "change_number", ev.ChangeNumber, "error", err)

		return
	}

	if len(result.NeedsDownload) > 0 {
		logger.Info("depots need download",
			"app_id", result.AppID, "change_number", result.ChangeNumber,
			"depots", result.NeedsDownload)
	}
}

// applyRemoval drops a depot deleted on disk from tracked state.
func applyRemoval(ctx context.Context, m *depot.StateMachine, logger *slog.Logger, removal depot.DepotRemoval) {
	if err := m.RemoveDepot(ctx, removal.AppID, removal.DepotID); err != nil {
		logger.Error("removing deleted depot from state",
			"app_id", removal.AppID, "depot_id", removal.DepotID, "error", err)
	}
}

// ignoreCancel maps context cancellation to nil so a clean shutdown does
// not surface as a watch error.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
