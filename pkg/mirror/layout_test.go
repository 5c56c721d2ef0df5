package mirror

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionmirror/notionmirror/pkg/notion"
	"github.com/notionmirror/notionmirror/pkg/source"
)

func testSnapshot(nodes ...source.Node) *source.Snapshot {
	snapshot := &source.Snapshot{Nodes: map[string]source.Node{}}
	for _, node := range nodes {
		snapshot.Nodes[node.ID] = node
		snapshot.Order = append(snapshot.Order, node.ID)
	}
	return snapshot
}

func workspacePage(id, title string) source.Node {
	return source.Node{
		ID: id, Kind: notion.ObjectPage, Title: title,
		Parent: notion.Parent{Type: notion.ParentWorkspace, Workspace: true},
	}
}

func childPage(id, title, parentID string) source.Node {
	return source.Node{
		ID: id, Kind: notion.ObjectPage, Title: title,
		Parent: notion.Parent{Type: notion.ParentPage, PageID: parentID},
	}
}

func database(id, title string) source.Node {
	return source.Node{
		ID: id, Kind: notion.ObjectDatabase, Title: title,
		Parent: notion.Parent{Type: notion.ParentWorkspace, Workspace: true},
	}
}

func TestComputeLayout(t *testing.T) {
	snapshot := testSnapshot(
		workspacePage("11112222-3333-4444-5555-666677778888", "Roadmap"),
		childPage("aaaabbbb-cccc-dddd-eeee-ffff00001111", "Q1", "11112222-3333-4444-5555-666677778888"),
		database("99990000-1111-2222-3333-444455556666", "Tasks"),
		source.Node{
			ID: "deadbeef-0000-0000-0000-000000000000", Kind: notion.ObjectPage, Title: "Task one",
			Parent: notion.Parent{Type: notion.ParentDatabase, DatabaseID: "99990000-1111-2222-3333-444455556666"},
		},
	)

	layout := ComputeLayout(snapshot)

	expect := map[string]string{
		"11112222-3333-4444-5555-666677778888": "_workspace/Roadmap_11112222.md",
		"aaaabbbb-cccc-dddd-eeee-ffff00001111": "_workspace/Roadmap_11112222/Q1_aaaabbbb.md",
		"99990000-1111-2222-3333-444455556666": "DB_Tasks_99990000/__database.md",
		"deadbeef-0000-0000-0000-000000000000": "DB_Tasks_99990000/Task one_deadbeef.md",
	}
	for id, expPath := range expect {
		got, ok := layout.Path(id)
		require.True(t, ok, id)
		assert.Equal(t, expPath, got)
	}
}

func TestComputeLayoutFallbackDirs(t *testing.T) {
	snapshot := testSnapshot(
		childPage("orphan01-0000-0000-0000-000000000000", "Lost", "not-in-snapshot"),
		source.Node{
			ID: "weird001-0000-0000-0000-000000000000", Kind: notion.ObjectPage, Title: "Block child",
			Parent: notion.Parent{Type: "block_id"},
		},
	)

	layout := ComputeLayout(snapshot)

	p, _ := layout.Path("orphan01-0000-0000-0000-000000000000")
	assert.Equal(t, "_orphans/Lost_orphan01.md", p)
	p, _ = layout.Path("weird001-0000-0000-0000-000000000000")
	assert.Equal(t, "_other/Block child_weird001.md", p)
}

func TestComputeLayoutCycle(t *testing.T) {
	snapshot := testSnapshot(
		childPage("aaaa0000-0000-0000-0000-000000000000", "First", "bbbb0000-0000-0000-0000-000000000000"),
		childPage("bbbb0000-0000-0000-0000-000000000000", "Second", "aaaa0000-0000-0000-0000-000000000000"),
	)

	layout := ComputeLayout(snapshot)

	// Both members are quarantined with unique paths; neither escapes the
	// `_cycles` subtree.
	pa, _ := layout.Path("aaaa0000-0000-0000-0000-000000000000")
	pb, _ := layout.Path("bbbb0000-0000-0000-0000-000000000000")
	assert.NotEqual(t, pa, pb)
	assert.True(t, strings.HasPrefix(pa, "_cycles/"), pa)
	assert.True(t, strings.HasPrefix(pb, "_cycles/"), pb)
}

func TestComputeLayoutTitleCollision(t *testing.T) {
	snapshot := testSnapshot(
		workspacePage("aaaa0000-0000-0000-0000-000000000000", "Notes"),
		workspacePage("bbbb0000-0000-0000-0000-000000000000", "Notes"),
	)

	layout := ComputeLayout(snapshot)

	pa, _ := layout.Path("aaaa0000-0000-0000-0000-000000000000")
	pb, _ := layout.Path("bbbb0000-0000-0000-0000-000000000000")
	assert.NotEqual(t, pa, pb)
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in  string
		exp string
	}{
		{"Roadmap", "Roadmap"},
		{"  spaced   out  ", "spaced out"},
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"trailing dots...", "trailing dots"},
		{"", "fallback"},
		{"???", "___"},
	}
	for _, test := range tests {
		assert.Equal(t, test.exp, safeName(test.in, "fallback"), test.in)
	}
}

func TestId8(t *testing.T) {
	assert.Equal(t, "11112222", id8("11112222-3333-4444-5555-666677778888"))
	assert.Equal(t, "abc", id8("abc"))
	assert.Equal(t, "unknown", id8(""))
}
