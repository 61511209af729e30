package depot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	stdsync "sync"

	"github.com/google/uuid"
)

// Reconciler translates upstream change announcements into concrete depot
// re-download requirements. It diffs the announced file-change-list against
// the required depot set, invalidates stale Downloaded depots through the
// state machine, and only then commits the new change-number — so a crash
// between the two never records a newer change-number against an app whose
// depots were not correspondingly invalidated.
type Reconciler struct {
	tracker  *ChangeTracker
	machine  *StateMachine
	manifest Manifest
	logger   *slog.Logger

	// mu guards active: app ids with a reconciliation cycle running.
	mu     stdsync.Mutex
	active map[int64]struct{}
}

// NewReconciler wires the tracker, state machine, and manifest collaborator.
func NewReconciler(tracker *ChangeTracker, machine *StateMachine, manifest Manifest, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		tracker:  tracker,
		machine:  machine,
		manifest: manifest,
		logger:   logger,
		active:   make(map[int64]struct{}),
	}
}

// Reconcile processes one change event. Per-app cycles are serialized: a
// concurrent call for the same app fails fast with
// ErrReconciliationInProgress and should be retried after backoff.
// Any store failure aborts the cycle without advancing the change-number,
// so the next cycle retries the identical reconciliation safely.
func (r *Reconciler) Reconcile(ctx context.Context, ev ChangeEvent) (*ReconcileResult, error) {
	release, err := r.acquire(ev.AppID)
	if err != nil {
		return nil, err
	}
	defer release()

	cycleID := uuid.NewString()
	logger := r.logger.With("cycle_id", cycleID, "app_id", ev.AppID, "change_number", ev.ChangeNumber)

	logger.Info("reconciliation started", "changed_files", len(ev.ChangedFileIDs))

	freshness, err := r.tracker.Observe(ctx, ev.AppID, ev.ChangeNumber)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		CycleID:      cycleID,
		AppID:        ev.AppID,
		ChangeNumber: ev.ChangeNumber,
		Freshness:    freshness,
	}

	if freshness == UpToDate {
		logger.Debug("reconciliation no-op: already up to date")
		return result, nil
	}

	affected, err := r.affectedDepots(ev)
	if err != nil {
		return nil, err
	}

	// Stale-mark previously Downloaded members of the affected set. This
	// durable write must precede the change-number commit.
	invalidated, err := r.machine.Invalidate(ctx, ev.AppID, affected)
	if err != nil {
		return nil, err
	}

	// The invalidated depots return to Downloading here — the only path by
	// which a Downloaded depot does. An existing in-flight download means
	// the orchestrator is already on it; joining is not an error.
	for _, depotID := range invalidated {
		if err := r.machine.BeginDownload(ctx, ev.AppID, depotID); err != nil {
			if errors.Is(err, ErrAlreadyInProgress) {
				logger.Debug("joining in-flight download", "depot_id", depotID)
				continue
			}

			return nil, err
		}
	}

	if err := r.tracker.Commit(ctx, ev.AppID, ev.ChangeNumber, ev.ChangedFileIDs); err != nil {
		return nil, err
	}

	result.NeedsDownload = affected

	logger.Info("reconciliation complete",
		"needs_download", affected, "invalidated", invalidated)

	return result, nil
}

// acquire claims the per-app reconciliation slot.
func (r *Reconciler) acquire(appID int64) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[appID]; ok {
		return nil, fmt.Errorf("app %d: %w", appID, ErrReconciliationInProgress)
	}

	r.active[appID] = struct{}{}

	return func() {
		r.mu.Lock()
		delete(r.active, appID)
		r.mu.Unlock()
	}, nil
}

// affectedDepots maps the changed file ids to depots and intersects with
// the app's required depot set. The result is sorted and deduplicated.
func (r *Reconciler) affectedDepots(ev ChangeEvent) ([]int64, error) {
	required, err := r.manifest.RequiredDepots(ev.AppID)
	if err != nil {
		return nil, fmt.Errorf("required depots for app %d: %w", ev.AppID, err)
	}

	requiredSet := make(map[int64]bool, len(required))
	for _, d := range required {
		requiredSet[d] = true
	}

	affectedSet := make(map[int64]bool)

	for _, fileID := range ev.ChangedFileIDs {
		depotID, ok := r.manifest.DepotForFile(fileID)
		if !ok {
			r.logger.Debug("changed file unknown to manifest",
				"app_id", ev.AppID, "file_id", fileID)

			continue
		}

		if requiredSet[depotID] {
			affectedSet[depotID] = true
		}
	}

	affected := make([]int64, 0, len(affectedSet))
	for d := range affectedSet {
		affected = append(affected, d)
	}

	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

	return affected, nil
}
