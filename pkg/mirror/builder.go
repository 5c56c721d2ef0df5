package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/notionmirror/notionmirror/pkg/diff"
	"github.com/notionmirror/notionmirror/pkg/errors"
	"github.com/notionmirror/notionmirror/pkg/notion"
	"github.com/notionmirror/notionmirror/pkg/source"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// ContentFetcher is the slice of the content-fetching capability the builder
// needs to materialize node payloads.
type ContentFetcher interface {
	ListBlockChildren(ctx context.Context, blockID string) ([]notion.Block, error)
	QueryDatabase(ctx context.Context, databaseID string) ([]notion.Object, error)
}

// Builder materializes the local mirror: it writes the files for added and
// modified nodes, deletes orphaned paths, and maintains the root index and
// access report.
type Builder struct {
	root    string
	fetcher ContentFetcher
	clock   clockwork.Clock

	issues []source.AccessIssue
}

// NewBuilder creates a builder writing under the given mirror root.
func NewBuilder(root string, fetcher ContentFetcher, clock clockwork.Clock) *Builder {
	return &Builder{root: root, fetcher: fetcher, clock: clock}
}

// Apply brings the local mirror in line with the snapshot: after it returns
// successfully, the mirror tree contains exactly the current node set (plus
// the root index and, when needed, the access report).
//
// Writes are idempotent -- rendering the same fingerprint twice produces
// byte-identical output. Filesystem failures surface as MirrorWriteError and
// abort the run before any remote reconcile; a half-applied mirror self-heals
// on the next run because the manifest was never advanced.
func (b *Builder) Apply(ctx context.Context, snapshot *source.Snapshot, layout *Layout, result diff.Result) error {
	b.issues = append([]source.AccessIssue{}, snapshot.Issues...)

	rebuild := map[string]bool{}
	for _, id := range result.Added {
		rebuild[id] = true
	}
	for _, id := range result.Modified {
		rebuild[id] = true
	}

	// Parents come before children in snapshot order, so a page's directory
	// exists by the time its children are written.
	for _, id := range snapshot.Order {
		if !rebuild[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.writeNode(ctx, snapshot, layout, id); err != nil {
			return err
		}
	}

	for _, orphan := range result.Orphans {
		if err := b.removeOrphan(orphan); err != nil {
			return err
		}
	}
	if err := b.removeEmptyDirs(); err != nil {
		return err
	}

	if err := b.writeRootIndex(snapshot); err != nil {
		return err
	}
	return b.writeAccessReport(snapshot)
}

func (b *Builder) writeNode(ctx context.Context, snapshot *source.Snapshot, layout *Layout, id string) error {
	node := snapshot.Nodes[id]
	relPath, ok := layout.Path(id)
	if !ok {
		return errors.New("no mirror path for node " + id)
	}

	var contents string
	var err error
	if node.IsDatabase() {
		contents, err = b.renderDatabase(ctx, node, relPath, layout)
	} else {
		contents, err = b.renderPage(ctx, node)
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"id": id, "path": relPath}).Debug("Writing mirror file")
	return b.writeFile(relPath, contents)
}

// renderPage produces the page's markdown: front matter, title, properties,
// and the block content. Blocks the integration can't read degrade to a
// placeholder and an access report entry rather than failing the page.
func (b *Builder) renderPage(ctx context.Context, node source.Node) (string, error) {
	lines := []string{
		"---",
		"id: " + node.ID,
		"url: " + node.URL,
		"last_edited_time: " + node.LastEditedTime,
		"---",
		"",
		"# " + displayTitle(node, "untitled_page"),
		"",
	}

	if props := propertyLines(node.Properties); len(props) > 0 {
		lines = append(lines, "## Properties")
		lines = append(lines, props...)
		lines = append(lines, "")
	}

	lines = append(lines, "## Content", "")
	blockLines, err := b.renderBlocks(ctx, node.ID, node.ID, 0)
	if err != nil {
		return "", err
	}
	lines = append(lines, blockLines...)
	lines = append(lines, "")

	return strings.Join(lines, "\n"), nil
}

func (b *Builder) renderBlocks(ctx context.Context, pageID, blockID string, depth int) ([]string, error) {
	blocks, err := b.fetcher.ListBlockChildren(ctx, blockID)
	if err != nil {
		if apiErr, ok := err.(notion.APIError); ok && !apiErr.Transient() {
			b.issues = append(b.issues, source.AccessIssue{
				NodeID: pageID, BlockID: blockID, Message: err.Error(),
			})
			if blockID == pageID {
				return []string{"- (content not accessible; check access report)"}, nil
			}
			return []string{notion.Indent(depth) + "- (children not accessible; check access report)"}, nil
		}
		return nil, err
	}

	var lines []string
	for _, block := range blocks {
		lines = append(lines, notion.BlockToMarkdown(block, depth)...)
		if block.HasChildren {
			childLines, err := b.renderBlocks(ctx, pageID, block.ID, depth+1)
			if err != nil {
				return nil, err
			}
			lines = append(lines, childLines...)
		}
		lines = append(lines, "")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// renderDatabase produces the database's index file, listing its member
// pages with links relative to the database folder.
func (b *Builder) renderDatabase(ctx context.Context, node source.Node, relPath string, layout *Layout) (string, error) {
	lines := []string{
		"---",
		"id: " + node.ID,
		"url: " + node.URL,
		"---",
		"",
		"# " + displayTitle(node, "untitled_db"),
		"",
		"## Entries",
		"",
	}

	members, err := b.fetcher.QueryDatabase(ctx, node.ID)
	if err != nil {
		if apiErr, ok := err.(notion.APIError); ok && !apiErr.Transient() {
			b.issues = append(b.issues, source.AccessIssue{
				NodeID: node.ID, BlockID: node.ID, Message: err.Error(),
			})
			members = nil
		} else {
			return "", err
		}
	}

	folder := path.Dir(relPath)
	listed := 0
	for _, member := range members {
		memberPath, ok := layout.Path(member.ID)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(folder, memberPath)
		if err != nil {
			continue
		}
		title := member.PageTitle()
		if title == "" {
			title = "untitled_page"
		}
		lines = append(lines, fmt.Sprintf("- [%s](%s)", title, filepath.ToSlash(rel)))
		listed++
	}
	if listed == 0 {
		lines = append(lines, "- (no access or empty)")
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n"), nil
}

func (b *Builder) removeOrphan(relPath string) error {
	absPath := filepath.Join(b.root, relPath)
	if err := fs.Remove(absPath); err != nil && !errors.IsNotExist(err) {
		return errors.MirrorWriteError{Path: relPath, Err: err}
	}
	log.WithField("path", relPath).Debug("Removed orphaned mirror file")
	return nil
}

// removeEmptyDirs sweeps the mirror tree and removes every empty directory,
// bottom-up. This covers directories emptied by orphan deletion and stray
// empty directories left over from earlier runs, which the orphan scan can't
// see because it only collects files.
func (b *Builder) removeEmptyDirs() error {
	root := filepath.Clean(b.root)
	var dirs []string
	err := afero.Walk(fs, root, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() && walkPath != root {
			dirs = append(dirs, walkPath)
		}
		return nil
	})
	if err != nil {
		return errors.WithContext(err, "scan mirror dirs")
	}

	// Reverse lexicographic order visits children before their parent, so a
	// chain of nested empty directories collapses in one pass.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		entries, err := afero.ReadDir(fs, dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := fs.Remove(dir); err != nil && !errors.IsNotExist(err) {
			return errors.MirrorWriteError{Path: dir, Err: err}
		}
		log.WithField("path", dir).Debug("Removed empty mirror directory")
	}
	return nil
}

func (b *Builder) writeRootIndex(snapshot *source.Snapshot) error {
	pages, databases := 0, 0
	for _, node := range snapshot.Nodes {
		if node.IsDatabase() {
			databases++
		} else {
			pages++
		}
	}

	lines := []string{
		"# Notion Mirror",
		"",
		"- Generated: " + b.clock.Now().UTC().Format("2006-01-02T15:04:05Z"),
		fmt.Sprintf("- Pages: %d", pages),
		fmt.Sprintf("- Databases: %d", databases),
		"",
		"## Top-level folders",
		"",
		"- `_workspace/` workspace pages",
		"- `DB_*` databases",
		"- `_orphans/` missing parents",
		"- `_other/` unknown parent types",
		"",
	}
	return b.writeFile("index.md", strings.Join(lines, "\n"))
}

func (b *Builder) writeAccessReport(snapshot *source.Snapshot) error {
	reportPath := filepath.Join(b.root, "access_issues.txt")
	if len(b.issues) == 0 {
		if err := fs.Remove(reportPath); err != nil && !errors.IsNotExist(err) {
			return errors.MirrorWriteError{Path: "access_issues.txt", Err: err}
		}
		return nil
	}

	sort.Slice(b.issues, func(i, j int) bool {
		if b.issues[i].NodeID != b.issues[j].NodeID {
			return b.issues[i].NodeID < b.issues[j].NodeID
		}
		return b.issues[i].BlockID < b.issues[j].BlockID
	})

	lines := []string{
		"Notion access report",
		"Generated: " + b.clock.Now().UTC().Format("2006-01-02T15:04:05Z"),
		"",
		"Blocks not accessible (likely not shared with integration):",
		"",
	}
	for _, issue := range b.issues {
		title := "page"
		if node, ok := snapshot.Nodes[issue.NodeID]; ok && node.Title != "" {
			title = safeName(node.Title, "page")
		}
		lines = append(lines,
			fmt.Sprintf("- page: %s (%s)", title, issue.NodeID),
			"  block: "+issue.BlockID,
			"  error: "+issue.Message,
		)
	}
	return b.writeFile("access_issues.txt", strings.Join(lines, "\n"))
}

func (b *Builder) writeFile(relPath, contents string) error {
	absPath := filepath.Join(b.root, relPath)
	if err := fs.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return errors.MirrorWriteError{Path: relPath, Err: err}
	}
	if err := afero.WriteFile(fs, absPath, []byte(contents), 0644); err != nil {
		return errors.MirrorWriteError{Path: relPath, Err: err}
	}
	return nil
}
