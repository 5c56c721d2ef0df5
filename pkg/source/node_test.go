package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionmirror/notionmirror/pkg/notion"
)

func pageObject(id, title, parentPage string) notion.Object {
	parent := notion.Parent{Type: notion.ParentWorkspace, Workspace: true}
	if parentPage != "" {
		parent = notion.Parent{Type: notion.ParentPage, PageID: parentPage}
	}
	return notion.Object{
		ID:     id,
		Object: notion.ObjectPage,
		Parent: parent,
		Properties: map[string]notion.Property{
			"Name": {Type: "title", Title: []notion.RichText{{PlainText: title}}},
		},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	obj := pageObject("page-1", "Roadmap", "")
	obj.Properties["Tags"] = notion.Property{
		Type:        "multi_select",
		MultiSelect: []notion.SelectOption{{Name: "a"}, {Name: "b"}},
	}

	assert.Equal(t, fingerprint(obj), fingerprint(obj))
}

func TestFingerprintChanges(t *testing.T) {
	base := pageObject("page-1", "Roadmap", "")
	baseHash := fingerprint(base)

	edited := pageObject("page-1", "Roadmap", "")
	edited.LastEditedTime = "2024-01-02T00:00:00.000Z"
	assert.NotEqual(t, baseHash, fingerprint(edited))

	moved := pageObject("page-1", "Roadmap", "page-2")
	assert.NotEqual(t, baseHash, fingerprint(moved))

	retitled := pageObject("page-1", "Roadmap v2", "")
	assert.NotEqual(t, baseHash, fingerprint(retitled))

	reproped := pageObject("page-1", "Roadmap", "")
	checked := true
	reproped.Properties["Done"] = notion.Property{Type: "checkbox", Checkbox: &checked}
	assert.NotEqual(t, baseHash, fingerprint(reproped))
}

func TestOrderNodesParentsFirst(t *testing.T) {
	nodes := map[string]Node{
		"root":  newNode(pageObject("root", "Root", "")),
		"b":     newNode(pageObject("b", "Beta", "root")),
		"a":     newNode(pageObject("a", "Alpha", "root")),
		"leaf":  newNode(pageObject("leaf", "Leaf", "a")),
		"other": newNode(pageObject("other", "Another root", "")),
	}

	order := orderNodes(nodes)
	require.Len(t, order, len(nodes))

	// Roots and siblings sort by title; children follow their parent.
	assert.Equal(t, []string{"other", "root", "a", "leaf", "b"}, order)
}

func TestOrderNodesMissingParentIsRoot(t *testing.T) {
	nodes := map[string]Node{
		"a": newNode(pageObject("a", "Alpha", "gone")),
	}
	assert.Equal(t, []string{"a"}, orderNodes(nodes))
}

func TestOrderNodesCycle(t *testing.T) {
	nodes := map[string]Node{
		"x":     newNode(pageObject("x", "Cycle X", "y")),
		"y":     newNode(pageObject("y", "Cycle Y", "x")),
		"child": newNode(pageObject("child", "Dangling child", "x")),
		"root":  newNode(pageObject("root", "Root", "")),
	}

	order := orderNodes(nodes)
	require.Len(t, order, len(nodes))

	index := map[string]int{}
	for i, id := range order {
		index[id] = i
	}
	// Cycle members still come out, and descendants hanging off a cycle
	// member still follow their parent.
	assert.Less(t, index["x"], index["child"])
}
