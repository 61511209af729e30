package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	// Pure-Go SQLite driver (no CGO), registers as "sqlite".
	_ "modernc.org/sqlite"
)

// walJournalSizeLimit bounds the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// SQLiteStore implements Store on an embedded SQLite database in WAL mode.
// It is the sole owner of all persisted rows; the depot state machine and
// reconciliation engine hold no durable state of their own.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by entity.
	appStmts      appStatements
	changeStmts   changeStatements
	fileListStmts fileListStatements
	catalogStmts  catalogStatements
	licenseStmts  licenseStatements
	socialStmts   socialStatements
}

type appStatements struct {
	get, upsert, delete, list *sql.Stmt
}

type changeStatements struct {
	get, record, delete *sql.Stmt
}

type fileListStatements struct {
	insert, get, list, deleteByApp *sql.Stmt
}

type catalogStatements struct {
	get, insert, list *sql.Stmt
}

type licenseStatements struct {
	upsert, list *sql.Stmt
}

type socialStatements struct {
	upsertFriend, getFriend, listFriends *sql.Stmt
	insertMessage, listMessages          *sql.Stmt
	upsertEmoticon, listEmoticons        *sql.Stmt
}

// NewStore opens the database at dbPath, applies migrations, and prepares
// all repeated statements. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening state database", "path", dbPath)

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(%d)",
		dbPath, walJournalSizeLimit,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: a single connection serializes all writes and
	// keeps :memory: databases on one shared connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: preparing statements: %w", err)
	}

	logger.Info("state database ready", "path", dbPath)

	return s, nil
}

// --- SQL query constants ---

// AppInfo queries.
const (
	sqlGetAppInfo = `SELECT app_id, is_downloaded, downloaded_depots, updated_at
		FROM app_info WHERE app_id = ?`

	sqlUpsertAppInfo = `INSERT INTO app_info
		(app_id, is_downloaded, downloaded_depots, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET
			is_downloaded     = excluded.is_downloaded,
			downloaded_depots = excluded.downloaded_depots,
			updated_at        = excluded.updated_at`

	sqlDeleteAppInfo = `DELETE FROM app_info WHERE app_id = ?`

	sqlListAppInfo = `SELECT app_id, is_downloaded, downloaded_depots, updated_at
		FROM app_info ORDER BY app_id`
)

// Change-number queries. The conditional upsert makes regression a silent
// no-op at the SQL level, so monotonicity holds even under concurrent writers.
const (
	sqlGetChangeNumber = `SELECT last_change_number FROM change_numbers WHERE app_id = ?`

	sqlRecordChangeNumber = `INSERT INTO change_numbers
		(app_id, last_change_number, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET
			last_change_number = excluded.last_change_number,
			updated_at         = excluded.updated_at
		WHERE excluded.last_change_number >= change_numbers.last_change_number`

	sqlDeleteChangeNumber = `DELETE FROM change_numbers WHERE app_id = ?`
)

// File-change-list queries. Rows are immutable: insert-or-ignore, never update.
const (
	sqlInsertFileChangeList = `INSERT OR IGNORE INTO file_change_lists
		(app_id, change_number, changed_ids, created_at)
		VALUES (?, ?, ?, ?)`

	sqlGetFileChangeList = `SELECT app_id, change_number, changed_ids, created_at
		FROM file_change_lists WHERE app_id = ? AND change_number = ?`

	sqlListFileChangeLists = `SELECT app_id, change_number, changed_ids, created_at
		FROM file_change_lists WHERE app_id = ? ORDER BY change_number`

	sqlDeleteFileChangeLists = `DELETE FROM file_change_lists WHERE app_id = ?`
)

// Catalog queries.
const (
	sqlGetSteamApp = `SELECT app_id, name, icon_hash, shared
		FROM steam_apps WHERE app_id = ?`

	sqlInsertSteamApp = `INSERT INTO steam_apps (app_id, name, icon_hash, shared)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET
			name      = excluded.name,
			icon_hash = excluded.icon_hash,
			shared    = excluded.shared`

	sqlListSteamApps = `SELECT app_id, name, icon_hash, shared
		FROM steam_apps ORDER BY app_id`
)

// License queries.
const (
	sqlUpsertLicense = `INSERT INTO licenses (license_id, owner_account_id, app_ids)
		VALUES (?, ?, ?)
		ON CONFLICT(license_id) DO UPDATE SET
			owner_account_id = excluded.owner_account_id,
			app_ids          = excluded.app_ids`

	sqlListLicenses = `SELECT license_id, owner_account_id, app_ids
		FROM licenses ORDER BY license_id`
)

// Social queries.
const (
	sqlUpsertFriend = `INSERT INTO friends (friend_id, name, state, avatar_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(friend_id) DO UPDATE SET
			name        = excluded.name,
			state       = excluded.state,
			avatar_hash = excluded.avatar_hash`

	sqlGetFriend = `SELECT friend_id, name, state, avatar_hash
		FROM friends WHERE friend_id = ?`

	sqlListFriends = `SELECT friend_id, name, state, avatar_hash
		FROM friends ORDER BY friend_id`

	sqlInsertMessage = `INSERT INTO friend_messages (friend_id, from_local, body, sent_at)
		VALUES (?, ?, ?, ?)`

	sqlListMessages = `SELECT message_id, friend_id, from_local, body, sent_at
		FROM friend_messages WHERE friend_id = ? ORDER BY sent_at, message_id`

	sqlUpsertEmoticon = `INSERT INTO emoticons (name, is_sticker)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET is_sticker = excluded.is_sticker`

	sqlListEmoticons = `SELECT name, is_sticker FROM emoticons ORDER BY name`
)

// stmtDef maps a SQL string to the prepared statement pointer it populates.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.appStmts.get, sqlGetAppInfo, "getAppInfo"},
		{&s.appStmts.upsert, sqlUpsertAppInfo, "upsertAppInfo"},
		{&s.appStmts.delete, sqlDeleteAppInfo, "deleteAppInfo"},
		{&s.appStmts.list, sqlListAppInfo, "listAppInfo"},
		{&s.changeStmts.get, sqlGetChangeNumber, "getChangeNumber"},
		{&s.changeStmts.record, sqlRecordChangeNumber, "recordChangeNumber"},
		{&s.changeStmts.delete, sqlDeleteChangeNumber, "deleteChangeNumber"},
		{&s.fileListStmts.insert, sqlInsertFileChangeList, "insertFileChangeList"},
		{&s.fileListStmts.get, sqlGetFileChangeList, "getFileChangeList"},
		{&s.fileListStmts.list, sqlListFileChangeLists, "listFileChangeLists"},
		{&s.fileListStmts.deleteByApp, sqlDeleteFileChangeLists, "deleteFileChangeLists"},
		{&s.catalogStmts.get, sqlGetSteamApp, "getSteamApp"},
		{&s.catalogStmts.insert, sqlInsertSteamApp, "insertSteamApp"},
		{&s.catalogStmts.list, sqlListSteamApps, "listSteamApps"},
		{&s.licenseStmts.upsert, sqlUpsertLicense, "upsertLicense"},
		{&s.licenseStmts.list, sqlListLicenses, "listLicenses"},
		{&s.socialStmts.upsertFriend, sqlUpsertFriend, "upsertFriend"},
		{&s.socialStmts.getFriend, sqlGetFriend, "getFriend"},
		{&s.socialStmts.listFriends, sqlListFriends, "listFriends"},
		{&s.socialStmts.insertMessage, sqlInsertMessage, "insertFriendMessage"},
		{&s.socialStmts.listMessages, sqlListMessages, "listFriendMessages"},
		{&s.socialStmts.upsertEmoticon, sqlUpsertEmoticon, "upsertEmoticon"},
		{&s.socialStmts.listEmoticons, sqlListEmoticons, "listEmoticons"},
	})
}

// --- ID list encoding ---
// Lists are stored as JSON text so order and duplicates round-trip exactly.

func encodeIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}

	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode id list: %w", err)
	}

	return string(b), nil
}

func decodeIDs(raw string) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode id list %q: %w", raw, err)
	}

	return ids, nil
}

// --- AppInfo ---

// scanAppInfo scans one app_info row.
func scanAppInfo(row interface{ Scan(...any) error }) (*AppInfo, error) {
	info := &AppInfo{}

	var depots string

	if err := row.Scan(&info.ID, &info.IsDownloaded, &depots, &info.UpdatedAt); err != nil {
		return nil, err
	}

	ids, err := decodeIDs(depots)
	if err != nil {
		return nil, err
	}

	info.DownloadedDepots = ids

	return info, nil
}

// GetAppInfo retrieves the install state row for one app.
// Returns (nil, nil) when the app has never been written — callers use the
// nil row to distinguish "unknown title" from "known, nothing downloaded".
func (s *SQLiteStore) GetAppInfo(ctx context.Context, appID int64) (*AppInfo, error) {
	s.logger.Debug("getting app info", "app_id", appID)

	info, err := scanAppInfo(s.appStmts.get.QueryRowContext(ctx, appID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get app info %d: %w", appID, err)
	}

	return info, nil
}

// UpsertAppInfo writes the row and returns the previous row (nil if none).
// Read-then-write runs in one transaction so the previous snapshot and the
// write are atomic with respect to other writers.
func (s *SQLiteStore) UpsertAppInfo(ctx context.Context, info *AppInfo) (*AppInfo, error) {
	s.logger.Debug("upserting app info",
		"app_id", info.ID, "is_downloaded", info.IsDownloaded,
		"depots", len(info.DownloadedDepots))

	depots, err := encodeIDs(info.DownloadedDepots)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert app info %d: begin: %w", info.ID, err)
	}
	defer tx.Rollback()

	previous, err := scanAppInfo(tx.StmtContext(ctx, s.appStmts.get).QueryRowContext(ctx, info.ID))
	if errors.Is(err, sql.ErrNoRows) {
		previous = nil
	} else if err != nil {
		return nil, fmt.Errorf("upsert app info %d: read previous: %w", info.ID, err)
	}

	updatedAt := info.UpdatedAt
	if updatedAt == 0 {
		updatedAt = NowNano()
	}

	_, err = tx.StmtContext(ctx, s.appStmts.upsert).
		ExecContext(ctx, info.ID, info.IsDownloaded, depots, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert app info %d: %w", info.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upsert app info %d: commit: %w", info.ID, err)
	}

	return previous, nil
}

// DeleteAppInfo removes the install state row for one app.
func (s *SQLiteStore) DeleteAppInfo(ctx context.Context, appID int64) error {
	s.logger.Debug("deleting app info", "app_id", appID)

	if _, err := s.appStmts.delete.ExecContext(ctx, appID); err != nil {
		return fmt.Errorf("delete app info %d: %w", appID, err)
	}

	return nil
}

// ListAppInfo returns all install state rows ordered by app id.
func (s *SQLiteStore) ListAppInfo(ctx context.Context) ([]*AppInfo, error) {
	s.logger.Debug("listing app info")

	rows, err := s.appStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list app info: %w", err)
	}
	defer rows.Close()

	var infos []*AppInfo

	for rows.Next() {
		info, err := scanAppInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan app info row: %w", err)
		}

		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app info rows: %w", err)
	}

	return infos, nil
}

// --- Change numbers ---

// GetChangeNumber returns the last recorded change-number for an app,
// or 0 when none has been recorded yet.
func (s *SQLiteStore) GetChangeNumber(ctx context.Context, appID int64) (int64, error) {
	s.logger.Debug("getting change number", "app_id", appID)

	var number int64

	err := s.changeStmts.get.QueryRowContext(ctx, appID).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get change number %d: %w", appID, err)
	}

	return number, nil
}

// RecordChangeNumber persists a change-number. A number below the stored
// value is a silent no-op; equal re-application leaves the stored value
// unchanged. This is the sync idempotence guarantee.
func (s *SQLiteStore) RecordChangeNumber(ctx context.Context, appID, number int64) error {
	s.logger.Debug("recording change number", "app_id", appID, "change_number", number)

	_, err := s.changeStmts.record.ExecContext(ctx, appID, number, NowNano())
	if err != nil {
		return fmt.Errorf("record change number %d/%d: %w", appID, number, err)
	}

	return nil
}

// DeleteChangeNumber removes the change-number row for an app.
func (s *SQLiteStore) DeleteChangeNumber(ctx context.Context, appID int64) error {
	s.logger.Debug("deleting change number", "app_id", appID)

	if _, err := s.changeStmts.delete.ExecContext(ctx, appID); err != nil {
		return fmt.Errorf("delete change number %d: %w", appID, err)
	}

	return nil
}

// --- File change lists ---

// RecordFileChangeList inserts the changed-id set for (appID, number).
// Re-recording identical content is an idempotent no-op; different content
// for an existing row fails with ErrDuplicateChangeNumber.
func (s *SQLiteStore) RecordFileChangeList(ctx context.Context, appID, number int64, changedIDs []int64) error {
	s.logger.Debug("recording file change list",
		"app_id", appID, "change_number", number, "changed_ids", len(changedIDs))

	encoded, err := encodeIDs(changedIDs)
	if err != nil {
		return err
	}

	result, err := s.fileListStmts.insert.ExecContext(ctx, appID, number, encoded, NowNano())
	if err != nil {
		return fmt.Errorf("record file change list %d/%d: %w", appID, number, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record file change list %d/%d: rows affected: %w", appID, number, err)
	}

	if affected > 0 {
		return nil
	}

	// Row already existed (INSERT OR IGNORE). Idempotent only when the
	// content matches; anything else is an upstream inconsistency.
	existing, err := s.GetFileChangeList(ctx, appID, number)
	if err != nil {
		return err
	}

	existingEncoded, err := encodeIDs(existing.ChangedFileIDs)
	if err != nil {
		return err
	}

	if existingEncoded != encoded {
		return fmt.Errorf("app %d change %d: %w", appID, number, ErrDuplicateChangeNumber)
	}

	return nil
}

// scanFileChangeList scans one file_change_lists row.
func scanFileChangeList(row interface{ Scan(...any) error }) (*FileChangeList, error) {
	fcl := &FileChangeList{}

	var raw string

	if err := row.Scan(&fcl.AppID, &fcl.ChangeNumber, &raw, &fcl.CreatedAt); err != nil {
		return nil, err
	}

	ids, err := decodeIDs(raw)
	if err != nil {
		return nil, err
	}

	fcl.ChangedFileIDs = ids

	return fcl, nil
}

// GetFileChangeList returns the row for (appID, number), or (nil, nil) when
// no such row exists.
func (s *SQLiteStore) GetFileChangeList(ctx context.Context, appID, number int64) (*FileChangeList, error) {
	s.logger.Debug("getting file change list", "app_id", appID, "change_number", number)

	fcl, err := scanFileChangeList(s.fileListStmts.get.QueryRowContext(ctx, appID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get file change list %d/%d: %w", appID, number, err)
	}

	return fcl, nil
}

// ListFileChangeLists returns all recorded lists for an app in change-number order.
func (s *SQLiteStore) ListFileChangeLists(ctx context.Context, appID int64) ([]*FileChangeList, error) {
	s.logger.Debug("listing file change lists", "app_id", appID)

	rows, err := s.fileListStmts.list.QueryContext(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("list file change lists %d: %w", appID, err)
	}
	defer rows.Close()

	var lists []*FileChangeList

	for rows.Next() {
		fcl, err := scanFileChangeList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file change list row: %w", err)
		}

		lists = append(lists, fcl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file change list rows: %w", err)
	}

	return lists, nil
}

// DeleteFileChangeLists removes all recorded lists for an app.
func (s *SQLiteStore) DeleteFileChangeLists(ctx context.Context, appID int64) error {
	s.logger.Debug("deleting file change lists", "app_id", appID)

	if _, err := s.fileListStmts.deleteByApp.ExecContext(ctx, appID); err != nil {
		return fmt.Errorf("delete file change lists %d: %w", appID, err)
	}

	return nil
}

// --- Catalog ---

// GetSteamApp returns catalog metadata for one app, or (nil, nil) when absent.
func (s *SQLiteStore) GetSteamApp(ctx context.Context, appID int64) (*SteamApp, error) {
	s.logger.Debug("getting steam app", "app_id", appID)

	app := &SteamApp{}

	err := s.catalogStmts.get.QueryRowContext(ctx, appID).
		Scan(&app.ID, &app.Name, &app.IconHash, &app.Shared)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get steam app %d: %w", appID, err)
	}

	return app, nil
}

// ListSteamApps returns the full catalog ordered by app id.
func (s *SQLiteStore) ListSteamApps(ctx context.Context) ([]*SteamApp, error) {
	s.logger.Debug("listing steam apps")

	rows, err := s.catalogStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list steam apps: %w", err)
	}
	defer rows.Close()

	var apps []*SteamApp

	for rows.Next() {
		app := &SteamApp{}
		if err := rows.Scan(&app.ID, &app.Name, &app.IconHash, &app.Shared); err != nil {
			return nil, fmt.Errorf("scan steam app row: %w", err)
		}

		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steam app rows: %w", err)
	}

	return apps, nil
}

// ReplaceCatalog replaces all catalog metadata in one transaction: either
// the new catalog is fully visible or the old one is, never a mix.
func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, apps []*SteamApp) error {
	s.logger.Info("replacing catalog", "apps", len(apps))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace catalog: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM steam_apps`); err != nil {
		return fmt.Errorf("replace catalog: clear: %w", err)
	}

	stmt := tx.StmtContext(ctx, s.catalogStmts.insert)

	for _, app := range apps {
		if _, err := stmt.ExecContext(ctx, app.ID, app.Name, app.IconHash, app.Shared); err != nil {
			return fmt.Errorf("replace catalog: insert app %d: %w", app.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace catalog: commit: %w", err)
	}

	return nil
}

// --- Licenses ---

// UpsertLicense writes a license row. Upstream licenses are immutable, so
// replacement only happens when a re-announced grant is identical or newer.
func (s *SQLiteStore) UpsertLicense(ctx context.Context, lic *License) error {
	s.logger.Debug("upserting license", "license_id", lic.LicenseID)

	appIDs, err := encodeIDs(lic.AppIDs)
	if err != nil {
		return err
	}

	_, err = s.licenseStmts.upsert.ExecContext(ctx, lic.LicenseID, lic.OwnerAccountID, appIDs)
	if err != nil {
		return fmt.Errorf("upsert license %d: %w", lic.LicenseID, err)
	}

	return nil
}

// ListLicenses returns all license rows ordered by license id.
func (s *SQLiteStore) ListLicenses(ctx context.Context) ([]*License, error) {
	s.logger.Debug("listing licenses")

	rows, err := s.licenseStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var lics []*License

	for rows.Next() {
		lic := &License{}

		var appIDs string

		if err := rows.Scan(&lic.LicenseID, &lic.OwnerAccountID, &appIDs); err != nil {
			return nil, fmt.Errorf("scan license row: %w", err)
		}

		ids, err := decodeIDs(appIDs)
		if err != nil {
			return nil, err
		}

		lic.AppIDs = ids
		lics = append(lics, lic)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate license rows: %w", err)
	}

	return lics, nil
}

// --- Social (friends, messages, emoticons) ---

// UpsertFriend writes a friend presence row.
func (s *SQLiteStore) UpsertFriend(ctx context.Context, f *Friend) error {
	s.logger.Debug("upserting friend", "friend_id", f.FriendID)

	_, err := s.socialStmts.upsertFriend.ExecContext(ctx, f.FriendID, f.Name, f.State, f.AvatarHash)
	if err != nil {
		return fmt.Errorf("upsert friend %d: %w", f.FriendID, err)
	}

	return nil
}

// GetFriend returns one friend row, or (nil, nil) when absent.
func (s *SQLiteStore) GetFriend(ctx context.Context, friendID int64) (*Friend, error) {
	s.logger.Debug("getting friend", "friend_id", friendID)

	f := &Friend{}

	err := s.socialStmts.getFriend.QueryRowContext(ctx, friendID).
		Scan(&f.FriendID, &f.Name, &f.State, &f.AvatarHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get friend %d: %w", friendID, err)
	}

	return f, nil
}

// ListFriends returns all friend rows ordered by id.
func (s *SQLiteStore) ListFriends(ctx context.Context) ([]*Friend, error) {
	s.logger.Debug("listing friends")

	rows, err := s.socialStmts.listFriends.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []*Friend

	for rows.Next() {
		f := &Friend{}
		if err := rows.Scan(&f.FriendID, &f.Name, &f.State, &f.AvatarHash); err != nil {
			return nil, fmt.Errorf("scan friend row: %w", err)
		}

		friends = append(friends, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend rows: %w", err)
	}

	return friends, nil
}

// InsertFriendMessage appends a chat message and returns its assigned id.
func (s *SQLiteStore) InsertFriendMessage(ctx context.Context, m *FriendMessage) (int64, error) {
	s.logger.Debug("inserting friend message", "friend_id", m.FriendID)

	sentAt := m.SentAt
	if sentAt == 0 {
		sentAt = NowNano()
	}

	result, err := s.socialStmts.insertMessage.ExecContext(ctx, m.FriendID, m.FromLocal, m.Body, sentAt)
	if err != nil {
		return 0, fmt.Errorf("insert friend message for %d: %w", m.FriendID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert friend message for %d: last id: %w", m.FriendID, err)
	}

	return id, nil
}

// ListFriendMessages returns a friend's messages in send order.
func (s *SQLiteStore) ListFriendMessages(ctx context.Context, friendID int64) ([]*FriendMessage, error) {
	s.logger.Debug("listing friend messages", "friend_id", friendID)

	rows, err := s.socialStmts.listMessages.QueryContext(ctx, friendID)
	if err != nil {
		return nil, fmt.Errorf("list friend messages %d: %w", friendID, err)
	}
	defer rows.Close()

	var msgs []*FriendMessage

	for rows.Next() {
		m := &FriendMessage{}
		if err := rows.Scan(&m.MessageID, &m.FriendID, &m.FromLocal, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan friend message row: %w", err)
		}

		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend message rows: %w", err)
	}

	return msgs, nil
}

// UpsertEmoticon writes one emoticon row keyed by name.
func (s *SQLiteStore) UpsertEmoticon(ctx context.Context, e *Emoticon) error {
	s.logger.Debug("upserting emoticon", "name", e.Name)

	if _, err := s.socialStmts.upsertEmoticon.ExecContext(ctx, e.Name, e.IsSticker); err != nil {
		return fmt.Errorf("upsert emoticon %q: %w", e.Name, err)
	}

	return nil
}

// ListEmoticons returns all emoticon rows ordered by name.
func (s *SQLiteStore) ListEmoticons(ctx context.Context) ([]*Emoticon, error) {
	s.logger.Debug("listing emoticons")

	rows, err := s.socialStmts.listEmoticons.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list emoticons: %w", err)
	}
	defer rows.Close()

	var emoticons []*Emoticon

	for rows.Next() {
		e := &Emoticon{}
		if err := rows.Scan(&e.Name, &e.IsSticker); err != nil {
			return nil, fmt.Errorf("scan emoticon row: %w", err)
		}

		emoticons = append(emoticons, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emoticon rows: %w", err)
	}

	return emoticons, nil
}

// --- Maintenance ---

// clearTables lists every table ClearAll empties, in FK-safe order.
var clearTables = []string{
	"friend_messages", "emoticons", "friends",
	"file_change_lists", "change_numbers",
	"licenses", "steam_apps", "app_info",
}

// ClearAll removes every row from every table in a single transaction:
// either the whole database is emptied or none of it is.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	s.logger.Info("clearing all tables")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear all: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range clearTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear all: %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear all: commit: %w", err)
	}

	return nil
}

// Checkpoint forces a WAL checkpoint to consolidate the WAL file into the
// main database.
func (s *SQLiteStore) Checkpoint() error {
	s.logger.Debug("running WAL checkpoint")

	if _, err := s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	return nil
}

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing state database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

func (s *SQLiteStore) closeStatements() error {
	stmts := []*sql.Stmt{
		s.appStmts.get, s.appStmts.upsert, s.appStmts.delete, s.appStmts.list,
		s.changeStmts.get, s.changeStmts.record, s.changeStmts.delete,
		s.fileListStmts.insert, s.fileListStmts.get,
		s.fileListStmts.list, s.fileListStmts.deleteByApp,
		s.catalogStmts.get, s.catalogStmts.insert, s.catalogStmts.list,
		s.licenseStmts.upsert, s.licenseStmts.list,
		s.socialStmts.upsertFriend, s.socialStmts.getFriend, s.socialStmts.listFriends,
		s.socialStmts.insertMessage, s.socialStmts.listMessages,
		s.socialStmts.upsertEmoticon, s.socialStmts.listEmoticons,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
