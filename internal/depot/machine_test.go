package depot

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenative/depotsync/internal/store"
)

func newTestMachine(t *testing.T, s *store.SQLiteStore, manifest Manifest) *StateMachine {
	t.Helper()

	if manifest == nil {
		manifest = &fakeManifest{}
	}

	return NewStateMachine(s, manifest, testLogger(t))
}

func TestStateMachine_BeginComplete(t *testing.T) {
	s := newTestStore(t)
	manifest := &fakeManifest{required: map[int64][]int64{100: {5, 6}}}
	m := newTestMachine(t, s, manifest)
	ctx := context.Background()

	t.Run("begin from absent", func(t *testing.T) {
		require.NoError(t, m.BeginDownload(ctx, 100, 5))

		state, err := m.State(ctx, 100, 5)
		require.NoError(t, err)
		assert.Equal(t, StateDownloading, state)
	})

	t.Run("begin does not touch the store", func(t *testing.T) {
		info, err := s.GetAppInfo(ctx, 100)
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("complete persists the depot", func(t *testing.T) {
		require.NoError(t, m.CompleteDownload(ctx, 100, 5))

		info, err := s.GetAppInfo(ctx, 100)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, []int64{5}, info.DownloadedDepots)
		assert.False(t, info.IsDownloaded, "required set {5,6} not yet covered")

		state, err := m.State(ctx, 100, 5)
		require.NoError(t, err)
		assert.Equal(t, StateDownloaded, state)
	})

	t.Run("is_downloaded flips when required set covered", func(t *testing.T) {
		require.NoError(t, m.BeginDownload(ctx, 100, 6))
		require.NoError(t, m.CompleteDownload(ctx, 100, 6))

		info, err := s.GetAppInfo(ctx, 100)
		require.NoError(t, err)
		assert.True(t, info.IsDownloaded)
		assert.Equal(t, []int64{5, 6}, info.DownloadedDepots)
	})

	t.Run("duplicate completion is a no-op success", func(t *testing.T) {
		require.NoError(t, m.CompleteDownload(ctx, 100, 5))

		info, err := s.GetAppInfo(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, []int64{5, 6}, info.DownloadedDepots)
	})

	t.Run("completion without begin is invalid", func(t *testing.T) {
		err := m.CompleteDownload(ctx, 100, 7)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestStateMachine_Fail(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, nil)
	ctx := context.Background()

	t.Run("failure rolls back to absent without touching the store", func(t *testing.T) {
		require.NoError(t, m.BeginDownload(ctx, 1, 2))
		require.NoError(t, m.FailDownload(ctx, 1, 2, ReasonTransport))

		state, err := m.State(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, StateAbsent, state)

		info, err := s.GetAppInfo(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("cancellation is a failure with reason cancelled", func(t *testing.T) {
		require.NoError(t, m.BeginDownload(ctx, 1, 2))
		require.NoError(t, m.FailDownload(ctx, 1, 2, ReasonCancelled))

		state, err := m.State(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, StateAbsent, state)
	})

	t.Run("fail without begin is invalid", func(t *testing.T) {
		err := m.FailDownload(ctx, 1, 3, ReasonTransport)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("failed depot can be retried", func(t *testing.T) {
		require.NoError(t, m.BeginDownload(ctx, 1, 2))
		require.NoError(t, m.CompleteDownload(ctx, 1, 2))

		info, err := s.GetAppInfo(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, info.DownloadedDepots)
	})
}

func TestStateMachine_CrashSafety(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, nil)
	ctx := context.Background()

	// A download in flight at crash time must leave no trace: the in-flight
	// marker lives only in process memory.
	require.NoError(t, m.BeginDownload(ctx, 50, 1))

	// Restart is modeled as a fresh machine over the same store.
	restarted := newTestMachine(t, s, nil)

	state, err := restarted.State(ctx, 50, 1)
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)

	info, err := s.GetAppInfo(ctx, 50)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStateMachine_ConcurrentBegin(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, nil)
	ctx := context.Background()

	const callers = 16

	var (
		wg        stdsync.WaitGroup
		mu        stdsync.Mutex
		succeeded int
		joined    int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := m.BeginDownload(ctx, 100, 5)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrAlreadyInProgress):
				joined++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one caller wins the transition")
	assert.Equal(t, callers-1, joined)
}

func TestStateMachine_Invalidate(t *testing.T) {
	s := newTestStore(t)
	manifest := &fakeManifest{required: map[int64][]int64{10: {1, 2, 3}}}
	m := newTestMachine(t, s, manifest)
	ctx := context.Background()

	seed := func(depots []int64, downloaded bool) {
		t.Helper()

		_, err := s.UpsertAppInfo(ctx, &store.AppInfo{
			ID: 10, IsDownloaded: downloaded, DownloadedDepots: depots,
		})
		require.NoError(t, err)
	}

	t.Run("removes all occurrences and clears is_downloaded", func(t *testing.T) {
		seed([]int64{1, 2, 2, 3}, true)

		removed, err := m.Invalidate(ctx, 10, []int64{2})
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, removed)

		info, err := s.GetAppInfo(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, info.DownloadedDepots)
		assert.False(t, info.IsDownloaded)
	})

	t.Run("invalidating absent depots is a no-op", func(t *testing.T) {
		removed, err := m.Invalidate(ctx, 10, []int64{99})
		require.NoError(t, err)
		assert.Empty(t, removed)

		info, err := s.GetAppInfo(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, info.DownloadedDepots)
	})

	t.Run("unknown app is a no-op", func(t *testing.T) {
		removed, err := m.Invalidate(ctx, 11, []int64{1})
		require.NoError(t, err)
		assert.Empty(t, removed)
	})

	t.Run("remove depot drops a single id", func(t *testing.T) {
		require.NoError(t, m.RemoveDepot(ctx, 10, 3))

		info, err := s.GetAppInfo(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, info.DownloadedDepots)
	})
}

func TestForget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertAppInfo(ctx, &store.AppInfo{ID: 7, DownloadedDepots: []int64{1}})
	require.NoError(t, err)
	require.NoError(t, s.RecordChangeNumber(ctx, 7, 3))
	require.NoError(t, s.RecordFileChangeList(ctx, 7, 3, []int64{9}))

	require.NoError(t, Forget(ctx, s, 7))

	info, err := s.GetAppInfo(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, info)

	n, err := s.GetChangeNumber(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)

	lists, err := s.ListFileChangeLists(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, lists)
}
