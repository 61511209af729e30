// Package store implements the durable entity store for depotsync: app
// install state, change-numbers, file-change-lists, catalog metadata, and
// the social tables (friends, messages, emoticons). All state that must
// survive a crash lives here; every write is a single atomic transaction.
package store

import (
	"context"
	"time"
)

// AppInfo is the per-title install state row. DownloadedDepots is stored
// verbatim — order, duplicates, and negative ids are preserved exactly as
// given. Deduplication is a state-machine policy, not a storage invariant.
type AppInfo struct {
	ID               int64
	IsDownloaded     bool
	DownloadedDepots []int64
	UpdatedAt        int64 // Unix nanoseconds
}

// Clone returns a deep copy so callers can mutate the depot list without
// aliasing a row another goroutine may be reading.
func (a *AppInfo) Clone() *AppInfo {
	if a == nil {
		return nil
	}

	cp := *a
	cp.DownloadedDepots = append([]int64(nil), a.DownloadedDepots...)

	return &cp
}

// HasDepot reports whether depotID appears at least once in DownloadedDepots.
func (a *AppInfo) HasDepot(depotID int64) bool {
	for _, d := range a.DownloadedDepots {
		if d == depotID {
			return true
		}
	}

	return false
}

// ChangeNumber is the last-seen upstream change-number for one app.
// LastChangeNumber is monotonic per app: the store silently refuses regressions.
type ChangeNumber struct {
	AppID            int64
	LastChangeNumber int64
	UpdatedAt        int64 // Unix nanoseconds
}

// FileChangeList is the set of changed file identifiers announced for exactly
// one (app, change-number) pair. Rows are immutable after insertion;
// a newer change-number supersedes by insertion, never by update.
type FileChangeList struct {
	AppID          int64
	ChangeNumber   int64
	ChangedFileIDs []int64
	CreatedAt      int64 // Unix nanoseconds
}

// SteamApp is read-mostly catalog metadata, refreshed wholesale on import.
type SteamApp struct {
	ID       int64
	Name     string
	IconHash string
	Shared   bool
}

// License records an upstream license grant. Licenses are immutable once
// issued; the store only appends or replaces whole rows.
type License struct {
	LicenseID      int64
	OwnerAccountID int64
	AppIDs         []int64
}

// Friend is a presence row for the social surface. Storage shape only.
type Friend struct {
	FriendID   int64
	Name       string
	State      int
	AvatarHash string
}

// FriendMessage is one chat message. MessageID is assigned by the store.
type FriendMessage struct {
	MessageID int64
	FriendID  int64
	FromLocal bool
	Body      string
	SentAt    int64 // Unix nanoseconds
}

// Emoticon is an owned chat emoticon or sticker, keyed by name.
type Emoticon struct {
	Name      string
	IsSticker bool
}

// --- Per-entity DAO interfaces ---
// Consumers depend on the slice they need rather than the whole store,
// keeping the depot package's dependencies minimal and mockable.

// AppInfoStore is the install-state slice used by the depot state machine.
type AppInfoStore interface {
	// GetAppInfo returns (nil, nil) when no row exists for appID.
	GetAppInfo(ctx context.Context, appID int64) (*AppInfo, error)
	// UpsertAppInfo writes the row and returns the previous row, or nil
	// if this is the first write for the app.
	UpsertAppInfo(ctx context.Context, info *AppInfo) (*AppInfo, error)
	DeleteAppInfo(ctx context.Context, appID int64) error
	ListAppInfo(ctx context.Context) ([]*AppInfo, error)
}

// ChangeNumberStore is the freshness slice used by the change tracker.
type ChangeNumberStore interface {
	// GetChangeNumber returns 0 when no change-number has been recorded.
	GetChangeNumber(ctx context.Context, appID int64) (int64, error)
	// RecordChangeNumber is a silent no-op when number is below the
	// currently stored value. Equal values re-apply idempotently.
	RecordChangeNumber(ctx context.Context, appID, number int64) error
	DeleteChangeNumber(ctx context.Context, appID int64) error
}

// FileChangeListStore persists immutable per-change-number file lists.
type FileChangeListStore interface {
	// RecordFileChangeList fails with ErrDuplicateChangeNumber when a row
	// for (appID, number) exists with different content. Identical content
	// is an idempotent no-op.
	RecordFileChangeList(ctx context.Context, appID, number int64, changedIDs []int64) error
	// GetFileChangeList returns (nil, nil) when no row exists.
	GetFileChangeList(ctx context.Context, appID, number int64) (*FileChangeList, error)
	ListFileChangeLists(ctx context.Context, appID int64) ([]*FileChangeList, error)
	DeleteFileChangeLists(ctx context.Context, appID int64) error
}

// CatalogStore holds SteamApp metadata, replaced wholesale on catalog sync.
type CatalogStore interface {
	GetSteamApp(ctx context.Context, appID int64) (*SteamApp, error)
	ListSteamApps(ctx context.Context) ([]*SteamApp, error)
	// ReplaceCatalog deletes all rows and inserts apps in one transaction.
	ReplaceCatalog(ctx context.Context, apps []*SteamApp) error
}

// LicenseStore holds license grants (append/replace only).
type LicenseStore interface {
	UpsertLicense(ctx context.Context, lic *License) error
	ListLicenses(ctx context.Context) ([]*License, error)
}

// SocialStore covers friends, messages, and emoticons. Out of core scope;
// carried for storage shape only.
type SocialStore interface {
	UpsertFriend(ctx context.Context, f *Friend) error
	GetFriend(ctx context.Context, friendID int64) (*Friend, error)
	ListFriends(ctx context.Context) ([]*Friend, error)
	InsertFriendMessage(ctx context.Context, m *FriendMessage) (int64, error)
	ListFriendMessages(ctx context.Context, friendID int64) ([]*FriendMessage, error)
	UpsertEmoticon(ctx context.Context, e *Emoticon) error
	ListEmoticons(ctx context.Context) ([]*Emoticon, error)
}

// Store is the full interface satisfied by *SQLiteStore.
type Store interface {
	AppInfoStore
	ChangeNumberStore
	FileChangeListStore
	CatalogStore
	LicenseStore
	SocialStore

	// ClearAll removes every row from every table in one transaction.
	ClearAll(ctx context.Context) error
	Close() error
}

// NowNano returns the current time as Unix nanoseconds. All internal
// timestamps use int64 nanoseconds; conversion happens at boundaries only.
func NowNano() int64 {
	return time.Now().UnixNano()
}
