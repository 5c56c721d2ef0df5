package mirror

import (
	"path"
	"regexp"
	"strings"

	"github.com/notionmirror/notionmirror/pkg/notion"
	"github.com/notionmirror/notionmirror/pkg/source"
)

// Top-level folders for nodes that don't hang off another mirrored node.
const (
	workspaceDir = "_workspace"
	orphansDir   = "_orphans"
	cyclesDir    = "_cycles"
	otherDir     = "_other"

	// databaseIndexFile is the index written inside every database folder.
	databaseIndexFile = "__database.md"
)

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
var whitespaceRuns = regexp.MustCompile(`\s+`)

// Layout assigns every node in a snapshot a unique relative path under the
// mirror root. Paths are a pure function of the id chain root→node, so the
// same snapshot always yields the same layout.
type Layout struct {
	paths map[string]string
}

// ComputeLayout resolves the mirror path of every node.
//
// Pages parented by the workspace live under `_workspace/`, database members
// inside their database's folder, and child pages inside a directory named
// after their parent page. Pages whose parent isn't mirrored fall back to
// `_orphans/`, unknown parent types to `_other/`, and parent cycles are
// quarantined under `_cycles/`. Every name carries an 8-character id suffix,
// so sibling titles can collide without colliding on disk.
func ComputeLayout(snapshot *source.Snapshot) *Layout {
	layout := &Layout{paths: make(map[string]string, len(snapshot.Nodes))}
	// Resolve in snapshot order so cycle quarantine is deterministic.
	for _, id := range snapshot.Order {
		layout.resolve(id, snapshot.Nodes, map[string]bool{})
	}
	return layout
}

// Path returns the node's relative mirror path.
func (l *Layout) Path(id string) (string, bool) {
	p, ok := l.paths[id]
	return p, ok
}

// Paths returns the full id → relative path mapping.
func (l *Layout) Paths() map[string]string {
	return l.paths
}

func (l *Layout) resolve(id string, nodes map[string]source.Node, stack map[string]bool) string {
	if p, ok := l.paths[id]; ok {
		return p
	}

	node := nodes[id]
	if node.IsDatabase() {
		p := path.Join(databaseFolder(node), databaseIndexFile)
		l.paths[id] = p
		return p
	}

	file := pageFileName(node)
	if stack[id] {
		p := path.Join(cyclesDir, file)
		l.paths[id] = p
		return p
	}
	stack[id] = true

	var p string
	switch node.Parent.Type {
	case notion.ParentWorkspace:
		p = path.Join(workspaceDir, file)
	case notion.ParentDatabase:
		parent, ok := nodes[node.Parent.DatabaseID]
		if !ok {
			parent = source.Node{ID: node.Parent.DatabaseID}
		}
		p = path.Join(databaseFolder(parent), file)
	case notion.ParentPage:
		parent, ok := nodes[node.Parent.PageID]
		if !ok {
			p = path.Join(orphansDir, file)
			break
		}
		parentPath := l.resolve(parent.ID, nodes, stack)
		p = path.Join(strings.TrimSuffix(parentPath, ".md"), file)
	default:
		p = path.Join(otherDir, file)
	}

	l.paths[id] = p
	return p
}

func pageFileName(node source.Node) string {
	return safeName(node.Title, "untitled_page") + "_" + id8(node.ID) + ".md"
}

func databaseFolder(node source.Node) string {
	return "DB_" + safeName(node.Title, "untitled_db") + "_" + id8(node.ID)
}

// safeName turns a title into a filename that's valid on every platform the
// mirror might land on, including Windows.
func safeName(name, fallback string) string {
	name = invalidNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.TrimSpace(whitespaceRuns.ReplaceAllString(name, " "))
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return fallback
	}
	if len(name) > 160 {
		name = name[:160]
	}
	return name
}

func id8(id string) string {
	stripped := strings.ReplaceAll(id, "-", "")
	if stripped == "" {
		return "unknown"
	}
	if len(stripped) > 8 {
		return stripped[:8]
	}
	return stripped
}
