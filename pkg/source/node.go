package source

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/notionmirror/notionmirror/pkg/notion"
)

// Node is one reachable entity of the source workspace: a page or a database.
// Nodes are plain values; the parent/child relation is expressed through
// id-based parent pointers, so they can be shared across walker workers
// without aliasing hazards.
type Node struct {
	ID             string
	Kind           string
	Title          string
	URL            string
	LastEditedTime string
	Parent         notion.Parent
	Properties     map[string]notion.Property

	// Fingerprint is the deterministic hash of the node's payload and
	// structural metadata. Two nodes with equal fingerprints mirror to
	// byte-identical files at the same path.
	Fingerprint string
}

// IsDatabase returns whether the node mirrors to a database folder rather
// than a page file.
func (n Node) IsDatabase() bool {
	return n.Kind == notion.ObjectDatabase
}

// fingerprint hashes everything that affects the node's mirrored output:
// identity, title, placement, and the last-edited timestamp (which Notion
// bumps on any content change, so block edits are caught without fetching
// the blocks themselves).
func fingerprint(obj notion.Object) string {
	hasher := sha512.New()
	fmt.Fprintf(hasher, "ID: %s\n", obj.ID)
	fmt.Fprintf(hasher, "Object: %s\n", obj.Object)
	fmt.Fprintf(hasher, "Title: %s\n", obj.PageTitle())
	fmt.Fprintf(hasher, "Parent: %s %s\n", obj.Parent.Type, obj.Parent.ID())
	fmt.Fprintf(hasher, "URL: %s\n", obj.URL)
	fmt.Fprintf(hasher, "LastEdited: %s\n", obj.LastEditedTime)

	// Property values feed the rendered output, so they feed the hash.
	// Sort the names so the fingerprint doesn't depend on map order.
	names := make([]string, 0, len(obj.Properties))
	for name := range obj.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		encoded, _ := json.Marshal(obj.Properties[name])
		fmt.Fprintf(hasher, "Property %s: %s\n", name, encoded)
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil))
}

// newNode converts an API object into a Node with its fingerprint computed.
func newNode(obj notion.Object) Node {
	return Node{
		ID:             obj.ID,
		Kind:           obj.Object,
		Title:          obj.PageTitle(),
		URL:            obj.URL,
		LastEditedTime: obj.LastEditedTime,
		Parent:         obj.Parent,
		Properties:     obj.Properties,
		Fingerprint:    fingerprint(obj),
	}
}

// AccessIssue records content the integration couldn't read. Issues don't
// fail the run; they're surfaced in the mirror's access report.
type AccessIssue struct {
	NodeID  string
	BlockID string
	Message string
}

// Snapshot is the complete output of one walk: every reachable, non-archived
// node, plus a parent-before-children ordering over them. It's only handed to
// the diff engine once the walk has fully succeeded.
type Snapshot struct {
	Nodes map[string]Node

	// Order lists node ids depth first, parents before children, so a
	// parent's mirror directory always exists before its children are
	// materialized.
	Order []string

	Issues []AccessIssue
}

// orderNodes produces the depth-first, parent-before-children ordering.
// Nodes whose parent isn't part of the snapshot (workspace roots, unknown
// parent types, unreachable parents) act as roots. Sibling order is by title
// then id so the walk is deterministic.
func orderNodes(nodes map[string]Node) []string {
	children := map[string][]string{}
	var roots []string
	for id, node := range nodes {
		parentID := node.Parent.ID()
		if _, ok := nodes[parentID]; parentID != "" && ok {
			children[parentID] = append(children[parentID], id)
		} else {
			roots = append(roots, id)
		}
	}

	byName := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			a, b := nodes[ids[i]], nodes[ids[j]]
			if a.Title != b.Title {
				return a.Title < b.Title
			}
			return a.ID < b.ID
		})
	}
	byName(roots)
	for _, ids := range children {
		byName(ids)
	}

	order := make([]string, 0, len(nodes))
	visited := map[string]bool{}
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		for _, child := range children[id] {
			visit(child)
		}
	}
	for _, id := range roots {
		visit(id)
	}

	// Parent cycles leave their members unvisited. Emit them in a stable
	// order; the mirror layout quarantines them under `_cycles`.
	if len(order) < len(nodes) {
		var rest []string
		for id := range nodes {
			if !visited[id] {
				rest = append(rest, id)
			}
		}
		byName(rest)
		for _, id := range rest {
			visit(id)
		}
	}
	return order
}
