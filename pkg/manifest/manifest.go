package manifest

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// formatVersion guards against reading manifests written by an incompatible
// binary. A mismatch is treated as corruption (degrade to full rebuild).
const formatVersion = "v1"

// Entry records what was mirrored for one node the last time a run fully
// succeeded. Entries are only ever rewritten wholesale by Commit.
type Entry struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path"`
	SyncedAt    time.Time `json:"syncedAt"`
}

// Manifest maps node id to its last-synced entry.
type Manifest map[string]Entry

// Store persists the manifest at a fixed path inside the mirror root. It's
// the durable memory of "what was last mirrored": it only advances after a
// run has fully succeeded.
type Store struct {
	path  string
	clock clockwork.Clock
}

// NewStore creates a store for the manifest at the given path.
func NewStore(path string, clock clockwork.Clock) *Store {
	return &Store{path: path, clock: clock}
}

type manifestFile struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
	Entries     Manifest  `json:"entries"`
}

// Load returns the most recently committed manifest. A missing manifest is an
// empty one. An unparseable manifest returns an empty manifest alongside a
// ManifestCorrupt error so the caller can warn instead of silently discarding
// history.
func (s *Store) Load() (Manifest, error) {
	contents, err := afero.ReadFile(fs, s.path)
	if err != nil {
		if errors.IsNotExist(err) {
			return Manifest{}, nil
		}
		return nil, errors.WithContext(err, "read manifest")
	}

	var parsed manifestFile
	if err := json.Unmarshal(contents, &parsed); err != nil {
		return Manifest{}, errors.ManifestCorrupt{Path: s.path, Err: err}
	}
	if parsed.Version != formatVersion {
		return Manifest{}, errors.ManifestCorrupt{
			Path: s.path,
			Err:  errors.New("unsupported manifest version " + parsed.Version),
		}
	}
	if parsed.Entries == nil {
		parsed.Entries = Manifest{}
	}
	return parsed.Entries, nil
}

// Commit atomically replaces the persisted manifest. The new contents are
// written to a temp file in the same directory and renamed over the old
// manifest, so a crash mid-commit leaves either the old manifest or the new
// one, never a mix.
func (s *Store) Commit(entries Manifest) error {
	contents, err := json.MarshalIndent(manifestFile{
		Version:     formatVersion,
		GeneratedAt: s.clock.Now().UTC(),
		Entries:     entries,
	}, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal manifest")
	}

	dir := filepath.Dir(s.path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "create manifest dir")
	}

	tmpPath := s.path + ".tmp"
	if err := afero.WriteFile(fs, tmpPath, contents, 0644); err != nil {
		return errors.WithContext(err, "write manifest")
	}
	if err := fs.Rename(tmpPath, s.path); err != nil {
		return errors.WithContext(err, "replace manifest")
	}
	return nil
}

// Now returns the store's notion of the current time, used to stamp entries
// committed by the current run.
func (s *Store) Now() time.Time {
	return s.clock.Now().UTC()
}
