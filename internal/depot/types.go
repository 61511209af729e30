// Package depot implements the download/installation state-tracking core:
// the change-number tracker, the per-depot state machine, and the
// reconciliation engine that turns upstream change announcements into
// concrete re-download requirements. All durable state lives in the entity
// store; the services here are stateless beyond per-call coordination.
package depot

import (
	"context"

	"github.com/gamenative/depotsync/internal/store"
)

// State is the tracked condition of one depot for one app.
type State string

// Depot states. Downloading is an in-process marker only — it is never
// persisted, so the durable state after any crash is Absent or Downloaded.
const (
	StateAbsent      State = "absent"
	StateDownloading State = "downloading"
	StateDownloaded  State = "downloaded"
)

// Freshness is the result of comparing an upstream change-number against
// the stored one.
type Freshness string

// Freshness values. Equal change-numbers are UpToDate — upstream
// re-announcing the same number must not trigger a redundant re-fetch.
const (
	UpToDate Freshness = "up_to_date"
	Stale    Freshness = "stale"
)

// FailReason describes why an in-flight download ended without completing.
type FailReason string

// Failure reasons reported through FailDownload. Cancellation is modeled
// as a failure with ReasonCancelled; the downloader owns the cancellation
// plumbing and simply reports the outcome.
const (
	ReasonCancelled FailReason = "cancelled"
	ReasonTransport FailReason = "transport"
	ReasonChecksum  FailReason = "checksum"
)

// ChangeEvent is one upstream announcement: app X's content manifest moved
// to ChangeNumber, touching ChangedFileIDs.
type ChangeEvent struct {
	AppID          int64   `json:"app_id"`
	ChangeNumber   int64   `json:"change_number"`
	ChangedFileIDs []int64 `json:"changed_file_ids"`
}

// Manifest is the injected catalog/manifest collaborator. It is assumed
// authoritative and available synchronously or cached; this package never
// computes which depots a title needs, only tracks progress against the
// set the manifest supplies.
type Manifest interface {
	// RequiredDepots returns the full depot set a title needs installed.
	RequiredDepots(appID int64) ([]int64, error)
	// DepotForFile maps a changed file id to its owning depot.
	// ok is false for file ids the manifest does not know.
	DepotForFile(fileID int64) (depotID int64, ok bool)
}

// ReconcileResult reports the outcome of one reconciliation cycle.
type ReconcileResult struct {
	CycleID      string    `json:"cycle_id"`
	AppID        int64     `json:"app_id"`
	ChangeNumber int64     `json:"change_number"`
	Freshness    Freshness `json:"freshness"`
	// NeedsDownload is the sorted, deduplicated set of depots the external
	// download orchestrator must now fetch. Empty when UpToDate.
	NeedsDownload []int64 `json:"needs_download"`
}

// ForgetStore is the store slice needed by Forget.
type ForgetStore interface {
	store.AppInfoStore
	store.ChangeNumberStore
	store.FileChangeListStore
}

// Forget removes every trace of an app: install state, change-number, and
// file-change-lists. The deletes are separate row operations — eventual
// consistency across rows is acceptable, single-row atomicity is what the
// core guarantees. Used by explicit uninstall-and-forget only.
func Forget(ctx context.Context, st ForgetStore, appID int64) error {
	if err := st.DeleteAppInfo(ctx, appID); err != nil {
		return err
	}

	if err := st.DeleteChangeNumber(ctx, appID); err != nil {
		return err
	}

	return st.DeleteFileChangeLists(ctx, appID)
}
