package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	gosync "sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gamenative/depotsync/internal/catalog"
	"github.com/gamenative/depotsync/internal/depot"
	"github.com/gamenative/depotsync/internal/store"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <changes-file>",
		Short: "Reconcile app state from a file of change announcements",
		Long: `Run one reconcile cycle per announced change.

The changes file is a JSON array of announcements, each with app_id,
change_number, and changed_file_ids. Announcements for different apps are
processed in parallel; announcements for the same app run in order. Use
'depotsync watch' for continuous reconciliation from the live feed.`,
		Args: cobra.ExactArgs(1),
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	events, err := readChangesFile(args[0])
	if err != nil {
		return err
	}

	if len(events) == 0 {
		statusf("No changes to apply.\n")
		return nil
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

	results, err := reconcileAll(cmd.Context(), st, manifest, logger, events, resolvedCfg.Sync.ParallelApps)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, results)
	}

	printSyncReport(os.Stdout, results)

	return nil
}

// readChangesFile parses a JSON array of change announcements.
func readChangesFile(path string) ([]depot.ChangeEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening changes file: %w", err)
	}
	defer f.Close()

	var events []depot.ChangeEvent
	if err := json.NewDecoder(f).Decode(&events); err != nil {
		return nil, fmt.Errorf("parsing changes file %s: %w", path, err)
	}

	return events, nil
}

// reconcileAll runs one reconcile cycle per announcement through a bounded
// worker pool. Events are grouped by app first: the reconciler rejects
// concurrent cycles for one app, so each app's events run in file order on
// a single worker while distinct apps proceed in parallel.
func reconcileAll(
	ctx context.Context,
	st store.Store,
	manifest depot.Manifest,
	logger *slog.Logger,
	events []depot.ChangeEvent,
	workers int,
) ([]*depot.ReconcileResult, error) {
	tracker := depot.NewChangeTracker(st, logger)
	machine := depot.NewStateMachine(st, manifest, logger)
	reconciler := depot.NewReconciler(tracker, machine, manifest, logger)

	perApp := make(map[int64][]depot.ChangeEvent)
	var order []int64

	for _, ev := range events {
		if _, seen := perApp[ev.AppID]; !seen {
			order = append(order, ev.AppID)
		}

		perApp[ev.AppID] = append(perApp[ev.AppID], ev)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu gosync.Mutex
	var results []*depot.ReconcileResult

	for _, appID := range order {
		appEvents := perApp[appID]

		g.Go(func() error {
			for _, ev := range appEvents {
				result, err := reconciler.Reconcile(gctx, ev)
				if err != nil {
					return fmt.Errorf("app %d change %d: %w", ev.AppID, ev.ChangeNumber, err)
				}

				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].AppID != results[j].AppID {
			return results[i].AppID < results[j].AppID
		}

		return results[i].ChangeNumber < results[j].ChangeNumber
	})

	return results, nil
}

func printSyncReport(w io.Writer, results []*depot.ReconcileResult) {
	headers := []string{"APP", "CHANGE", "FRESHNESS", "NEEDS DOWNLOAD"}
	table := make([][]string, 0, len(results))

	for _, r := range results {
		table = append(table, []string{
			fmt.Sprintf("%d", r.AppID),
			fmt.Sprintf("%d", r.ChangeNumber),
			string(r.Freshness),
			formatIDs(r.NeedsDownload),
		})
	}

	printTable(w, headers, table)
}
