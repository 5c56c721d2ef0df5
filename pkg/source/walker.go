package source

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/notionmirror/notionmirror/pkg/errors"
	"github.com/notionmirror/notionmirror/pkg/notion"
)

// Walker enumerates the source workspace. One walk is one pass: the returned
// snapshot is complete or the walk failed, there is no partial output.
type Walker struct {
	client      notion.Client
	concurrency int
}

// NewWalker creates a walker that fetches node metadata with at most
// `concurrency` requests in flight. The client's shared rate limiter keeps
// the combined request rate within the source API's quota.
func NewWalker(client notion.Client, concurrency int) *Walker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Walker{client: client, concurrency: concurrency}
}

// Walk enumerates every page and database shared with the integration and
// refreshes each node's metadata concurrently. Archived nodes are dropped --
// as far as the mirror is concerned, they no longer exist.
//
// Enumeration failures abort the walk with SourceUnavailable. A refresh
// failure on an individual node is tolerated: the enumeration already
// returned the node's metadata, so the stale copy is used and the issue is
// recorded for the access report.
func (w *Walker) Walk(ctx context.Context) (*Snapshot, error) {
	pages, err := w.client.Search(ctx, notion.ObjectPage)
	if err != nil {
		return nil, errors.SourceUnavailable{Op: "search pages", Err: err}
	}
	log.WithField("count", len(pages)).Debug("Enumerated pages")

	databases, err := w.client.Search(ctx, notion.ObjectDatabase)
	if err != nil {
		return nil, errors.SourceUnavailable{Op: "search databases", Err: err}
	}
	log.WithField("count", len(databases)).Debug("Enumerated databases")

	objects := map[string]notion.Object{}
	for _, obj := range append(pages, databases...) {
		if obj.ID != "" {
			objects[obj.ID] = obj
		}
	}

	refreshed, issues, err := w.refresh(ctx, objects)
	if err != nil {
		return nil, err
	}

	nodes := map[string]Node{}
	for id, obj := range refreshed {
		if obj.Archived {
			continue
		}
		nodes[id] = newNode(obj)
	}

	return &Snapshot{
		Nodes:  nodes,
		Order:  orderNodes(nodes),
		Issues: issues,
	}, nil
}

// refresh re-fetches every object's metadata through a bounded worker pool.
// Results are buffered; nothing is exposed until the whole refresh finishes.
func (w *Walker) refresh(ctx context.Context, objects map[string]notion.Object) (
	map[string]notion.Object, []AccessIssue, error) {

	type result struct {
		obj   notion.Object
		issue *AccessIssue
		err   error
	}

	ids := make(chan string)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				obj, issue, err := w.refreshOne(ctx, objects[id])
				results <- result{obj: obj, issue: issue, err: err}
			}
		}()
	}

	go func() {
		defer close(ids)
		for id := range objects {
			select {
			case ids <- id:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	refreshed := map[string]notion.Object{}
	var issues []AccessIssue
	var walkErr error
	for res := range results {
		switch {
		case res.err != nil:
			if walkErr == nil {
				walkErr = res.err
			}
		case res.issue != nil:
			issues = append(issues, *res.issue)
			refreshed[res.obj.ID] = res.obj
		default:
			refreshed[res.obj.ID] = res.obj
		}
	}

	if walkErr != nil {
		return nil, nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return refreshed, issues, nil
}

func (w *Walker) refreshOne(ctx context.Context, obj notion.Object) (notion.Object, *AccessIssue, error) {
	var fresh notion.Object
	var err error
	if obj.Object == notion.ObjectDatabase {
		fresh, err = w.client.GetDatabase(ctx, obj.ID)
	} else {
		fresh, err = w.client.GetPage(ctx, obj.ID)
	}

	switch fetchErr := err.(type) {
	case nil:
		return fresh, nil, nil
	case notion.APIError:
		if fetchErr.Transient() {
			return notion.Object{}, nil, errors.SourceUnavailable{Op: "refresh " + obj.ID, Err: err}
		}
		// Not shared with the integration (or gone between search and
		// fetch). Keep the enumerated copy and note the issue.
		issue := &AccessIssue{NodeID: obj.ID, BlockID: obj.ID, Message: err.Error()}
		return obj, issue, nil
	default:
		return notion.Object{}, nil, err
	}
}
