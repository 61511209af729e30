package depot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gamenative/depotsync/internal/store"
)

// TrackerStore is the store slice the change tracker needs.
type TrackerStore interface {
	store.ChangeNumberStore
	store.FileChangeListStore
}

// ChangeTracker is the single source of truth for how fresh our view of an
// app's content manifest is. It owns no state of its own; everything lives
// in the store.
type ChangeTracker struct {
	store  TrackerStore
	logger *slog.Logger
}

// NewChangeTracker creates a tracker over the given store slice.
func NewChangeTracker(st TrackerStore, logger *slog.Logger) *ChangeTracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChangeTracker{store: st, logger: logger}
}

// Observe compares an upstream change-number against the stored one.
// Returns UpToDate and performs no write when upstreamNumber is at or below
// the stored value; Stale otherwise. The equal-is-UpToDate tie-break
// prevents repeated reconciliation cycles when upstream re-announces the
// same number.
func (t *ChangeTracker) Observe(ctx context.Context, appID, upstreamNumber int64) (Freshness, error) {
	stored, err := t.store.GetChangeNumber(ctx, appID)
	if err != nil {
		return "", fmt.Errorf("observe app %d: %w", appID, err)
	}

	if upstreamNumber <= stored {
		t.logger.Debug("change number up to date",
			"app_id", appID, "stored", stored, "upstream", upstreamNumber)

		return UpToDate, nil
	}

	t.logger.Debug("change number stale",
		"app_id", appID, "stored", stored, "upstream", upstreamNumber)

	return Stale, nil
}

// Commit durably records a reconciled change: the file-change-list first,
// then the change-number. A crash between the two leaves the change-number
// unadvanced, so the next cycle retries the identical reconciliation and
// re-records the (idempotent) file-change-list.
func (t *ChangeTracker) Commit(ctx context.Context, appID, number int64, changedIDs []int64) error {
	if err := t.store.RecordFileChangeList(ctx, appID, number, changedIDs); err != nil {
		return fmt.Errorf("commit app %d change %d: %w", appID, number, err)
	}

	if err := t.store.RecordChangeNumber(ctx, appID, number); err != nil {
		return fmt.Errorf("commit app %d change %d: %w", appID, number, err)
	}

	t.logger.Info("change committed",
		"app_id", appID, "change_number", number, "changed_files", len(changedIDs))

	return nil
}
