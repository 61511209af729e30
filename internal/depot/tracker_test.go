package depot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeTracker_Observe(t *testing.T) {
	s := newTestStore(t)
	tracker := NewChangeTracker(s, testLogger(t))
	ctx := context.Background()

	t.Run("unknown app is stale for any positive number", func(t *testing.T) {
		freshness, err := tracker.Observe(ctx, 100, 1)
		require.NoError(t, err)
		assert.Equal(t, Stale, freshness)
	})

	t.Run("newer upstream number is stale", func(t *testing.T) {
		require.NoError(t, s.RecordChangeNumber(ctx, 100, 10))

		freshness, err := tracker.Observe(ctx, 100, 11)
		require.NoError(t, err)
		assert.Equal(t, Stale, freshness)
	})

	t.Run("equal number is up to date", func(t *testing.T) {
		freshness, err := tracker.Observe(ctx, 100, 10)
		require.NoError(t, err)
		assert.Equal(t, UpToDate, freshness)
	})

	t.Run("older number is up to date", func(t *testing.T) {
		freshness, err := tracker.Observe(ctx, 100, 9)
		require.NoError(t, err)
		assert.Equal(t, UpToDate, freshness)
	})

	t.Run("observe never writes", func(t *testing.T) {
		_, err := tracker.Observe(ctx, 100, 99)
		require.NoError(t, err)

		n, err := s.GetChangeNumber(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)
	})
}

func TestChangeTracker_Commit(t *testing.T) {
	s := newTestStore(t)
	tracker := NewChangeTracker(s, testLogger(t))
	ctx := context.Background()

	t.Run("records both change number and file list", func(t *testing.T) {
		require.NoError(t, tracker.Commit(ctx, 200, 5, []int64{41, 42}))

		n, err := s.GetChangeNumber(ctx, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		fcl, err := s.GetFileChangeList(ctx, 200, 5)
		require.NoError(t, err)
		require.NotNil(t, fcl)
		assert.Equal(t, []int64{41, 42}, fcl.ChangedFileIDs)
	})

	t.Run("identical re-commit is idempotent", func(t *testing.T) {
		require.NoError(t, tracker.Commit(ctx, 200, 5, []int64{41, 42}))

		n, err := s.GetChangeNumber(ctx, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("conflicting re-commit surfaces the inconsistency", func(t *testing.T) {
		err := tracker.Commit(ctx, 200, 5, []int64{999})
		require.Error(t, err)
	})
}
