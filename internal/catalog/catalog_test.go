package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeManifest drops TOML content into a temp file and returns its path.
func writeManifest(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifest.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

const sampleManifest = `
[[app]]
id = 220
name = "Half-Life 2"
icon_hash = "abc123"

[[app.depot]]
id = 221
files = [1001, 1002]

[[app.depot]]
id = 222
files = [2001]

[[app]]
id = 440
name = "Team Fortress 2"
shared = true

[[app.depot]]
id = 441
files = [4001]
`

func TestLoad(t *testing.T) {
	m, err := Load(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	t.Run("required depots are sorted per app", func(t *testing.T) {
		depots, err := m.RequiredDepots(220)
		require.NoError(t, err)
		assert.Equal(t, []int64{221, 222}, depots)
	})

	t.Run("unknown app errors", func(t *testing.T) {
		_, err := m.RequiredDepots(999)
		assert.ErrorIs(t, err, ErrUnknownApp)
	})

	t.Run("file to depot mapping", func(t *testing.T) {
		depotID, ok := m.DepotForFile(1002)
		require.True(t, ok)
		assert.Equal(t, int64(221), depotID)

		_, ok = m.DepotForFile(555)
		assert.False(t, ok)
	})

	t.Run("app ids keep file order", func(t *testing.T) {
		assert.Equal(t, []int64{220, 440}, m.AppIDs())
	})

	t.Run("apps export catalog metadata", func(t *testing.T) {
		apps := m.Apps()
		require.Len(t, apps, 2)
		assert.Equal(t, "Half-Life 2", apps[0].Name)
		assert.Equal(t, "abc123", apps[0].IconHash)
		assert.True(t, apps[1].Shared)
	})
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("unknown keys are fatal", func(t *testing.T) {
		_, err := Load(writeManifest(t, `
[[app]]
id = 1
name = "x"
depotz = [1]
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown keys")
	})

	t.Run("duplicate app id", func(t *testing.T) {
		_, err := Load(writeManifest(t, `
[[app]]
id = 1
name = "a"

[[app]]
id = 1
name = "b"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate app id")
	})

	t.Run("duplicate depot id within app", func(t *testing.T) {
		_, err := Load(writeManifest(t, `
[[app]]
id = 1
name = "a"

[[app.depot]]
id = 7

[[app.depot]]
id = 7
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate depot id")
	})

	t.Run("file claimed by two depots", func(t *testing.T) {
		_, err := Load(writeManifest(t, `
[[app]]
id = 1
name = "a"

[[app.depot]]
id = 7
files = [100]

[[app.depot]]
id = 8
files = [100]
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "claimed by depots")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
	})
}
