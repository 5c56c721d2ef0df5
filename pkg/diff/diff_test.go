package diff

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionmirror/notionmirror/pkg/manifest"
)

func TestClassify(t *testing.T) {
	prev := manifest.Manifest{
		"a": {ID: "a", Fingerprint: "fp-a", Path: "_workspace/A_aaaaaaaa.md"},
		"b": {ID: "b", Fingerprint: "fp-b", Path: "_workspace/B_bbbbbbbb.md"},
		"c": {ID: "c", Fingerprint: "fp-c", Path: "_workspace/C_cccccccc.md"},
	}
	fingerprints := map[string]string{
		"a": "fp-a",     // untouched
		"b": "fp-b-new", // edited
		"d": "fp-d",     // new page
	}
	paths := map[string]string{
		"a": "_workspace/A_aaaaaaaa.md",
		"b": "_workspace/B_bbbbbbbb.md",
		"d": "_workspace/D_dddddddd.md",
	}

	result := Classify(fingerprints, paths, prev)

	assert.Equal(t, []string{"d"}, result.Added)
	assert.Equal(t, []string{"b"}, result.Modified)
	assert.Equal(t, []string{"a"}, result.Unchanged)
	assert.Equal(t, []string{"c"}, result.Removed)
	assert.Equal(t, []string{"_workspace/C_cccccccc.md"}, result.Orphans)
}

func TestClassifyMovedNodeOrphansOldPath(t *testing.T) {
	prev := manifest.Manifest{
		"a": {ID: "a", Fingerprint: "fp-a", Path: "_workspace/A_aaaaaaaa.md"},
	}
	// A reparented node changes fingerprint and path together.
	fingerprints := map[string]string{"a": "fp-a-moved"}
	paths := map[string]string{"a": "_workspace/Parent_pppppppp/A_aaaaaaaa.md"}

	result := Classify(fingerprints, paths, prev)

	assert.Equal(t, []string{"a"}, result.Modified)
	assert.Empty(t, result.Removed)
	assert.Equal(t, []string{"_workspace/A_aaaaaaaa.md"}, result.Orphans)
}

func TestClassifyPathMoveAloneIsModified(t *testing.T) {
	prev := manifest.Manifest{
		"child": {
			ID:          "child",
			Fingerprint: "fp-child",
			Path:        "_workspace/Parent_pppppppp/Child_cccccccc.md",
		},
	}
	// A renamed parent changes the child's folder but not its fingerprint,
	// which only covers the parent's id.
	fingerprints := map[string]string{"child": "fp-child"}
	paths := map[string]string{"child": "_workspace/Renamed_pppppppp/Child_cccccccc.md"}

	result := Classify(fingerprints, paths, prev)

	assert.Equal(t, []string{"child"}, result.Modified)
	assert.Empty(t, result.Unchanged)
	assert.Equal(t, []string{"_workspace/Parent_pppppppp/Child_cccccccc.md"}, result.Orphans)
}

func TestClassifyEmptyManifest(t *testing.T) {
	fingerprints := map[string]string{"a": "fp-a", "b": "fp-b"}

	result := Classify(fingerprints, map[string]string{}, manifest.Manifest{})

	assert.Equal(t, []string{"a", "b"}, result.Added)
	assert.Empty(t, result.Orphans)

	added, modified, unchanged, removed := result.Counts()
	assert.Equal(t, [4]int{2, 0, 0, 0}, [4]int{added, modified, unchanged, removed})
}

func TestScanOrphans(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{
		"/mirror/.mirror-manifest.json",
		"/mirror/.mirror-manifest.lock",
		"/mirror/index.md",
		"/mirror/access_issues.txt",
		"/mirror/_workspace/Current_aaaaaaaa.md",
		"/mirror/_workspace/Stale_bbbbbbbb.md",
		"/mirror/DB_Old_cccccccc/__database.md",
	}
	for _, file := range files {
		require.NoError(t, afero.WriteFile(fs, file, []byte("x"), 0644))
	}

	produced := map[string]bool{"_workspace/Current_aaaaaaaa.md": true}
	orphans, err := ScanOrphans(fs, "/mirror", produced)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"DB_Old_cccccccc/__database.md",
		"_workspace/Stale_bbbbbbbb.md",
	}, orphans)
}

func TestScanOrphansMissingDir(t *testing.T) {
	orphans, err := ScanOrphans(afero.NewMemMapFs(), "/nope", nil)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestMergeOrphans(t *testing.T) {
	result := Result{Orphans: []string{"b.md", "a.md"}}
	merged := MergeOrphans(result, []string{"b.md", "c.md"})
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, merged.Orphans)
}
