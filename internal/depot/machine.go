package depot

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/gamenative/depotsync/internal/store"
)

// depotKey identifies one depot of one app.
type depotKey struct {
	appID   int64
	depotID int64
}

// StateMachine tracks per-depot download state for every app. The
// Downloading state is held only in the inflight set — the store is
// touched exclusively on successful completion and on invalidation, so an
// interruption at any point leaves the persisted state at the last durable
// transition, never a torn intermediate.
type StateMachine struct {
	store    store.AppInfoStore
	manifest Manifest
	logger   *slog.Logger

	// mu guards inflight and appMu. Store writes for one app additionally
	// serialize through that app's mutex so read-modify-write of the depot
	// list is never interleaved.
	mu       stdsync.Mutex
	inflight map[depotKey]struct{}
	appMu    map[int64]*stdsync.Mutex
}

// NewStateMachine creates a state machine over the given install-state
// store slice and manifest collaborator.
func NewStateMachine(st store.AppInfoStore, manifest Manifest, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}

	return &StateMachine{
		store:    st,
		manifest: manifest,
		logger:   logger,
		inflight: make(map[depotKey]struct{}),
		appMu:    make(map[int64]*stdsync.Mutex),
	}
}

// appLock returns the per-app mutex, creating it on first use. App mutexes
// are never removed; the map is bounded by the number of distinct apps.
func (m *StateMachine) appLock(appID int64) *stdsync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.appMu[appID]
	if !ok {
		lock = &stdsync.Mutex{}
		m.appMu[appID] = lock
	}

	return lock
}

// State reports the current state of one depot: Downloading while an
// in-flight marker exists, otherwise Downloaded or Absent per the store.
func (m *StateMachine) State(ctx context.Context, appID, depotID int64) (State, error) {
	m.mu.Lock()
	_, downloading := m.inflight[depotKey{appID, depotID}]
	m.mu.Unlock()

	if downloading {
		return StateDownloading, nil
	}

	info, err := m.store.GetAppInfo(ctx, appID)
	if err != nil {
		return "", fmt.Errorf("state of %d/%d: %w", appID, depotID, err)
	}

	if info != nil && info.HasDepot(depotID) {
		return StateDownloaded, nil
	}

	return StateAbsent, nil
}

// BeginDownload transitions a depot to Downloading. Valid from Absent or
// Downloaded (the latter when reconciliation has marked it stale). The
// inflight set is the compare-and-swap: exactly one of any number of
// concurrent callers wins, the rest get ErrAlreadyInProgress and should
// join the existing operation. No store write happens here — a crash
// mid-download leaves the persisted state exactly as before the attempt.
func (m *StateMachine) BeginDownload(ctx context.Context, appID, depotID int64) error {
	key := depotKey{appID, depotID}

	m.mu.Lock()
	if _, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		return fmt.Errorf("begin %d/%d: %w", appID, depotID, ErrAlreadyInProgress)
	}

	m.inflight[key] = struct{}{}
	m.mu.Unlock()

	m.logger.Info("download started", "app_id", appID, "depot_id", depotID)

	return nil
}

// CompleteDownload commits a finished download: the depot is appended to
// the persisted DownloadedDepots in one atomic write, and IsDownloaded
// flips true once the full required set is covered. Completing an
// already-Downloaded depot with no in-flight marker is a no-op success,
// supporting retried completion callbacks from an unreliable transport.
func (m *StateMachine) CompleteDownload(ctx context.Context, appID, depotID int64) error {
	lock := m.appLock(appID)
	lock.Lock()
	defer lock.Unlock()

	key := depotKey{appID, depotID}

	m.mu.Lock()
	_, downloading := m.inflight[key]
	m.mu.Unlock()

	info, err := m.store.GetAppInfo(ctx, appID)
	if err != nil {
		return fmt.Errorf("complete %d/%d: %w", appID, depotID, err)
	}

	if !downloading {
		if info != nil && info.HasDepot(depotID) {
			m.logger.Debug("duplicate completion ignored", "app_id", appID, "depot_id", depotID)
			return nil
		}

		return fmt.Errorf("complete %d/%d: not downloading: %w", appID, depotID, ErrInvalidTransition)
	}

	if info == nil {
		info = &store.AppInfo{ID: appID}
	} else {
		info = info.Clone()
	}

	// The store keeps the list verbatim; not re-appending an already
	// present depot is this machine's policy.
	if !info.HasDepot(depotID) {
		info.DownloadedDepots = append(info.DownloadedDepots, depotID)
	}

	info.IsDownloaded = m.covered(appID, info)
	info.UpdatedAt = store.NowNano()

	if _, err := m.store.UpsertAppInfo(ctx, info); err != nil {
		// Keep the inflight marker so a retried completion can commit.
		return fmt.Errorf("complete %d/%d: %w", appID, depotID, err)
	}

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()

	m.logger.Info("download completed",
		"app_id", appID, "depot_id", depotID, "is_downloaded", info.IsDownloaded)

	return nil
}

// FailDownload rolls a Downloading depot back to Absent. The store is not
// touched: rollback is purely the removal of the in-flight marker, so the
// persisted state stays exactly as it was before the attempt started.
// Cancellation is a failure with ReasonCancelled.
func (m *StateMachine) FailDownload(ctx context.Context, appID, depotID int64, reason FailReason) error {
	key := depotKey{appID, depotID}

	m.mu.Lock()
	_, downloading := m.inflight[key]
	if downloading {
		delete(m.inflight, key)
	}
	m.mu.Unlock()

	if !downloading {
		return fmt.Errorf("fail %d/%d: not downloading: %w", appID, depotID, ErrInvalidTransition)
	}

	m.logger.Warn("download failed",
		"app_id", appID, "depot_id", depotID, "reason", string(reason))

	return nil
}

// Invalidate durably removes the given depots from the app's persisted
// DownloadedDepots (all occurrences) and clears IsDownloaded accordingly.
// Returns the distinct depot ids actually removed. This is the
// reconciliation engine's stale-marking write and must land before the new
// change-number does.
func (m *StateMachine) Invalidate(ctx context.Context, appID int64, depotIDs []int64) ([]int64, error) {
	lock := m.appLock(appID)
	lock.Lock()
	defer lock.Unlock()

	info, err := m.store.GetAppInfo(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("invalidate app %d: %w", appID, err)
	}

	if info == nil {
		return nil, nil
	}

	doomed := make(map[int64]bool, len(depotIDs))
	for _, d := range depotIDs {
		doomed[d] = true
	}

	kept := info.DownloadedDepots[:0:0]
	removedSet := make(map[int64]bool)

	for _, d := range info.DownloadedDepots {
		if doomed[d] {
			removedSet[d] = true
			continue
		}

		kept = append(kept, d)
	}

	if len(removedSet) == 0 {
		return nil, nil
	}

	updated := info.Clone()
	updated.DownloadedDepots = kept
	updated.IsDownloaded = false
	updated.UpdatedAt = store.NowNano()

	if _, err := m.store.UpsertAppInfo(ctx, updated); err != nil {
		return nil, fmt.Errorf("invalidate app %d: %w", appID, err)
	}

	removed := make([]int64, 0, len(removedSet))

	for _, d := range depotIDs {
		if removedSet[d] {
			removed = append(removed, d)
			removedSet[d] = false
		}
	}

	m.logger.Info("depots invalidated", "app_id", appID, "removed", removed)

	return removed, nil
}

// RemoveDepot drops one depot from the persisted state, e.g. after the
// library watcher reports its directory was deleted outside the app.
func (m *StateMachine) RemoveDepot(ctx context.Context, appID, depotID int64) error {
	removed, err := m.Invalidate(ctx, appID, []int64{depotID})
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		m.logger.Debug("remove of untracked depot ignored", "app_id", appID, "depot_id", depotID)
	}

	return nil
}

// covered reports whether every depot the manifest requires for the app is
// present in the install state. Titles with zero required depots count as
// covered. A manifest lookup failure counts as not covered — IsDownloaded
// is only ever set from an authoritative answer.
func (m *StateMachine) covered(appID int64, info *store.AppInfo) bool {
	required, err := m.manifest.RequiredDepots(appID)
	if err != nil {
		m.logger.Warn("required depot lookup failed", "app_id", appID, "error", err)
		return false
	}

	for _, d := range required {
		if !info.HasDepot(d) {
			return false
		}
	}

	return true
}
