package diff

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/notionmirror/notionmirror/pkg/errors"
	"github.com/notionmirror/notionmirror/pkg/manifest"
)

// Result classifies every node of the current walk against the previous
// manifest. The id sets are disjoint; Orphans lists the relative mirror paths
// that must be deleted. A Result is computed once per run and never persisted.
type Result struct {
	Added     []string
	Modified  []string
	Unchanged []string
	Removed   []string

	Orphans []string
}

// Counts returns the per-class sizes for the run summary.
func (r Result) Counts() (added, modified, unchanged, removed int) {
	return len(r.Added), len(r.Modified), len(r.Unchanged), len(r.Removed)
}

// Classify compares the current walk against the previous manifest.
//
//   - current node absent from the manifest → added
//   - present with a different fingerprint or mirror path → modified
//   - present with an equal fingerprint at the same path → unchanged
//   - manifest entry with no current node → removed, and its recorded path
//     joins the orphan set
//
// A moved node is modified even when its fingerprint is unchanged: the file
// must be written at the new path and the old one deleted. This is how a
// parent rename cascades to its children, whose paths embed the parent's
// folder name while their fingerprints only cover the parent's id. A modified
// node that moved also orphans its previous path. Classification is pure: no
// I/O happens here.
func Classify(fingerprints, paths map[string]string, prev manifest.Manifest) Result {
	var result Result
	orphans := map[string]bool{}

	for id, fp := range fingerprints {
		entry, ok := prev[id]
		switch {
		case !ok:
			result.Added = append(result.Added, id)
		case entry.Fingerprint != fp || entry.Path != paths[id]:
			result.Modified = append(result.Modified, id)
			if entry.Path != "" && entry.Path != paths[id] {
				orphans[entry.Path] = true
			}
		default:
			result.Unchanged = append(result.Unchanged, id)
		}
	}

	for id, entry := range prev {
		if _, ok := fingerprints[id]; !ok {
			result.Removed = append(result.Removed, id)
			if entry.Path != "" {
				orphans[entry.Path] = true
			}
		}
	}

	for orphan := range orphans {
		result.Orphans = append(result.Orphans, orphan)
	}

	sort.Strings(result.Added)
	sort.Strings(result.Modified)
	sort.Strings(result.Unchanged)
	sort.Strings(result.Removed)
	sort.Strings(result.Orphans)
	return result
}

// runArtifacts are files this tool writes into the mirror root that don't
// correspond to a node. The orphan scan must never collect them.
var runArtifacts = map[string]bool{
	".mirror-manifest.json":     true,
	".mirror-manifest.json.tmp": true,
	".mirror-manifest.lock":     true,
	"index.md":                  true,
	"access_issues.txt":         true,
}

// ScanOrphans walks the existing mirror directory and returns every file not
// produced by the current run. This replaces manifest-based orphan detection
// when there's no trustworthy manifest (full rebuild, or a corrupt manifest),
// so stale local files are still caught without history.
//
// The mirror directory is wholly owned by this tool, so everything unexpected
// inside it is fair game except the run artifacts we write ourselves.
func ScanOrphans(fs afero.Fs, mirrorDir string, produced map[string]bool) ([]string, error) {
	var orphans []string
	err := afero.Walk(fs, mirrorDir, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(mirrorDir, walkPath)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if runArtifacts[rel] || produced[rel] {
			return nil
		}
		orphans = append(orphans, rel)
		return nil
	})
	if err != nil && !errors.IsNotExist(err) {
		return nil, errors.WithContext(err, "scan mirror dir")
	}

	sort.Strings(orphans)
	return orphans, nil
}

// MergeOrphans unions the classified orphans with a directory scan, keeping
// the combined set sorted and deduplicated.
func MergeOrphans(result Result, scanned []string) Result {
	seen := map[string]bool{}
	for _, orphan := range result.Orphans {
		seen[orphan] = true
	}
	for _, orphan := range scanned {
		if !seen[orphan] {
			seen[orphan] = true
			result.Orphans = append(result.Orphans, orphan)
		}
	}
	sort.Strings(result.Orphans)
	return result
}
