package depot

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamenative/depotsync/internal/store"
)

// testLogWriter routes slog output through t.Log so it shows up with -v.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// testLogger returns an slog.Logger at Debug level that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newTestStore creates an in-memory entity store shared by the depot tests.
func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewStore(":memory:", testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

// fakeManifest is a canned catalog collaborator.
type fakeManifest struct {
	required  map[int64][]int64
	fileDepot map[int64]int64
}

func (f *fakeManifest) RequiredDepots(appID int64) ([]int64, error) {
	return f.required[appID], nil
}

func (f *fakeManifest) DepotForFile(fileID int64) (int64, bool) {
	d, ok := f.fileDepot[fileID]
	return d, ok
}
