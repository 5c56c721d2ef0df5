package run

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/notionmirror/notionmirror/pkg/diff"
	"github.com/notionmirror/notionmirror/pkg/errors"
	"github.com/notionmirror/notionmirror/pkg/manifest"
	"github.com/notionmirror/notionmirror/pkg/mirror"
	"github.com/notionmirror/notionmirror/pkg/source"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Reconciler is the remote-mirroring transport: it makes the remote target
// identical to the local mirror directory.
type Reconciler interface {
	Reconcile(ctx context.Context, srcDir string) error
}

// Options selects the run mode.
type Options struct {
	// FullRebuild discards the manifest for this run, reclassifying every
	// node as added and detecting orphans by scanning the mirror directory.
	FullRebuild bool

	// SkipRemote ends the run after the local build. The manifest is still
	// committed: the local mirror is authoritative and matches intent.
	SkipRemote bool
}

// Summary describes what one run did.
type Summary struct {
	Added     int
	Modified  int
	Unchanged int
	Removed   int
	Orphans   int
	Elapsed   time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("added=%d modified=%d unchanged=%d removed=%d orphans=%d elapsed=%s",
		s.Added, s.Modified, s.Unchanged, s.Removed, s.Orphans, s.Elapsed)
}

// Orchestrator sequences a run: WALK → DIFF → BUILD → SYNC → COMMIT. Any
// failure aborts before COMMIT, so the manifest only ever reflects runs that
// fully succeeded end to end.
type Orchestrator struct {
	Walker    *source.Walker
	Store     *manifest.Store
	Lock      manifest.Locker
	Builder   *mirror.Builder
	Driver    Reconciler
	Clock     clockwork.Clock
	MirrorDir string
}

// Run executes one synchronization pass and reports what it did. Runs are
// serialized through the manifest lock; a concurrent invocation fails fast
// with RunAlreadyInProgress.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	start := o.Clock.Now()
	summarize := func() Summary {
		return Summary{Elapsed: o.Clock.Now().Sub(start)}
	}

	if o.Lock != nil {
		if err := o.Lock.Acquire(); err != nil {
			return summarize(), err
		}
		defer func() {
			if err := o.Lock.Release(); err != nil {
				log.WithError(err).Warn("Failed to release run lock")
			}
		}()
	}

	// A corrupt manifest degrades to a full rebuild of this run's diff: the
	// history is gone, but the directory scan still catches stale files.
	prev := manifest.Manifest{}
	scanMirror := opts.FullRebuild
	if opts.FullRebuild {
		log.Info("Full rebuild requested; ignoring previous manifest")
	} else {
		var err error
		prev, err = o.Store.Load()
		switch err.(type) {
		case nil:
		case errors.ManifestCorrupt:
			log.WithError(err).Warn("Manifest is corrupt; rebuilding from scratch")
			prev = manifest.Manifest{}
			scanMirror = true
		default:
			return summarize(), err
		}
	}

	log.Info("Walking source workspace")
	snapshot, err := o.Walker.Walk(ctx)
	if err != nil {
		return summarize(), err
	}
	log.WithField("nodes", len(snapshot.Nodes)).Info("Walk complete")

	layout := mirror.ComputeLayout(snapshot)
	fingerprints := make(map[string]string, len(snapshot.Nodes))
	for id, node := range snapshot.Nodes {
		fingerprints[id] = node.Fingerprint
	}

	result := diff.Classify(fingerprints, layout.Paths(), prev)
	if scanMirror {
		produced := map[string]bool{}
		for _, p := range layout.Paths() {
			produced[p] = true
		}
		scanned, err := diff.ScanOrphans(fs, o.MirrorDir, produced)
		if err != nil {
			return summarize(), err
		}
		result = diff.MergeOrphans(result, scanned)
	}
	log.WithFields(log.Fields{
		"added":     len(result.Added),
		"modified":  len(result.Modified),
		"unchanged": len(result.Unchanged),
		"removed":   len(result.Removed),
		"orphans":   len(result.Orphans),
	}).Info("Computed diff")

	if err := ctx.Err(); err != nil {
		return summarize(), err
	}

	log.Info("Building local mirror")
	if err := o.Builder.Apply(ctx, snapshot, layout, result); err != nil {
		return summarize(), err
	}

	if opts.SkipRemote {
		log.Info("Remote reconcile skipped")
	} else {
		if err := ctx.Err(); err != nil {
			return summarize(), err
		}
		if err := o.Driver.Reconcile(ctx, o.MirrorDir); err != nil {
			return summarize(), err
		}
		log.Info("Remote reconcile complete")
	}

	if err := ctx.Err(); err != nil {
		return summarize(), err
	}
	if err := o.Store.Commit(o.nextManifest(snapshot, layout, prev)); err != nil {
		return summarize(), err
	}

	summary := summarize()
	summary.Added = len(result.Added)
	summary.Modified = len(result.Modified)
	summary.Unchanged = len(result.Unchanged)
	summary.Removed = len(result.Removed)
	summary.Orphans = len(result.Orphans)
	return summary, nil
}

// nextManifest builds the manifest describing this run's mirror. Unchanged
// nodes keep their previous sync timestamp; everything else is stamped now.
func (o *Orchestrator) nextManifest(snapshot *source.Snapshot, layout *mirror.Layout, prev manifest.Manifest) manifest.Manifest {
	now := o.Store.Now()
	next := make(manifest.Manifest, len(snapshot.Nodes))
	for id, node := range snapshot.Nodes {
		path, _ := layout.Path(id)
		entry := manifest.Entry{
			ID:          id,
			Fingerprint: node.Fingerprint,
			Path:        path,
			SyncedAt:    now,
		}
		if prevEntry, ok := prev[id]; ok && prevEntry.Fingerprint == node.Fingerprint {
			entry.SyncedAt = prevEntry.SyncedAt
		}
		next[id] = entry
	}
	return next
}
