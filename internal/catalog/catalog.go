// Package catalog implements the manifest/catalog collaborator: the
// authoritative mapping from app to required depot set, and from changed
// file ids to their owning depots. The concrete source is a TOML manifest
// file; the depot core sees only the lookup interface.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gamenative/depotsync/internal/store"
)

// ErrUnknownApp is returned for lookups against an app the manifest does
// not describe.
var ErrUnknownApp = errors.New("catalog: unknown app")

// manifestFile is the on-disk TOML shape.
type manifestFile struct {
	Apps []appEntry `toml:"app"`
}

type appEntry struct {
	ID       int64        `toml:"id"`
	Name     string       `toml:"name"`
	IconHash string       `toml:"icon_hash"`
	Shared   bool         `toml:"shared"`
	Depots   []depotEntry `toml:"depot"`
}

type depotEntry struct {
	ID    int64   `toml:"id"`
	Files []int64 `toml:"files"`
}

// Manifest is a loaded, validated catalog. Lookups are read-only and safe
// for concurrent use.
type Manifest struct {
	apps      map[int64]appEntry
	fileDepot map[int64]int64
	order     []int64 // app ids in file order
}

// Load reads and validates a TOML manifest. Unknown keys are fatal —
// silently ignoring a typo in a manifest leads to wrong reconciliation
// decisions, which is worse than a startup failure.
func Load(path string) (*Manifest, error) {
	var file manifestFile

	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing manifest %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("catalog: unknown keys in manifest %s: %s",
			path, strings.Join(keys, ", "))
	}

	return build(file)
}

// build indexes and validates the parsed manifest.
func build(file manifestFile) (*Manifest, error) {
	m := &Manifest{
		apps:      make(map[int64]appEntry, len(file.Apps)),
		fileDepot: make(map[int64]int64),
	}

	for _, app := range file.Apps {
		if _, ok := m.apps[app.ID]; ok {
			return nil, fmt.Errorf("catalog: duplicate app id %d", app.ID)
		}

		seenDepots := make(map[int64]bool, len(app.Depots))

		for _, d := range app.Depots {
			if seenDepots[d.ID] {
				return nil, fmt.Errorf("catalog: app %d: duplicate depot id %d", app.ID, d.ID)
			}

			seenDepots[d.ID] = true

			for _, fileID := range d.Files {
				if owner, ok := m.fileDepot[fileID]; ok && owner != d.ID {
					return nil, fmt.Errorf(
						"catalog: file %d claimed by depots %d and %d", fileID, owner, d.ID)
				}

				m.fileDepot[fileID] = d.ID
			}
		}

		m.apps[app.ID] = app
		m.order = append(m.order, app.ID)
	}

	return m, nil
}

// RequiredDepots returns the full depot set for an app, sorted.
func (m *Manifest) RequiredDepots(appID int64) ([]int64, error) {
	app, ok := m.apps[appID]
	if !ok {
		return nil, fmt.Errorf("app %d: %w", appID, ErrUnknownApp)
	}

	depots := make([]int64, len(app.Depots))
	for i, d := range app.Depots {
		depots[i] = d.ID
	}

	sort.Slice(depots, func(i, j int) bool { return depots[i] < depots[j] })

	return depots, nil
}

// DepotForFile maps a changed file id to its owning depot.
func (m *Manifest) DepotForFile(fileID int64) (int64, bool) {
	depotID, ok := m.fileDepot[fileID]
	return depotID, ok
}

// AppIDs returns every app id in manifest order.
func (m *Manifest) AppIDs() []int64 {
	return append([]int64(nil), m.order...)
}

// Apps returns catalog metadata rows for a wholesale store import.
func (m *Manifest) Apps() []*store.SteamApp {
	apps := make([]*store.SteamApp, 0, len(m.order))

	for _, id := range m.order {
		app := m.apps[id]
		apps = append(apps, &store.SteamApp{
			ID:       app.ID,
			Name:     app.Name,
			IconHash: app.IconHash,
			Shared:   app.Shared,
		})
	}

	return apps
}
