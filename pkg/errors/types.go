package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// SourceUnavailable represents a failure to fetch content from the source
// workspace after retries were exhausted. A run that hits this error aborts
// without touching the manifest.
type SourceUnavailable struct {
	Op  string
	Err error
}

func (err SourceUnavailable) Error() string {
	return fmt.Sprintf("source unavailable during %s: %s", err.Op, err.Err)
}

func (err SourceUnavailable) Unwrap() error {
	return err.Err
}

// ManifestCorrupt represents a manifest file that couldn't be parsed. Callers
// treat this the same as a missing manifest, but should warn rather than
// silently discarding the history.
type ManifestCorrupt struct {
	Path string
	Err  error
}

func (err ManifestCorrupt) Error() string {
	return fmt.Sprintf("manifest %q is corrupt: %s", err.Path, err.Err)
}

func (err ManifestCorrupt) Unwrap() error {
	return err.Err
}

// MirrorWriteError represents a filesystem failure while materializing the
// local mirror. It's fatal to the run, but self-healing: the next run
// recomputes the diff against the uncommitted manifest and reprocesses
// whatever was left inconsistent.
type MirrorWriteError struct {
	Path string
	Err  error
}

func (err MirrorWriteError) Error() string {
	return fmt.Sprintf("write mirror file %q: %s", err.Path, err.Err)
}

func (err MirrorWriteError) Unwrap() error {
	return err.Err
}

// RemoteSyncError represents a failed or timed out reconcile of the remote
// target. The run is reported as failed, and the next invocation retries the
// same diff from the same manifest baseline.
type RemoteSyncError struct {
	Dest string
	Err  error
}

func (err RemoteSyncError) Error() string {
	return fmt.Sprintf("reconcile remote %q: %s", err.Dest, err.Err)
}

func (err RemoteSyncError) Unwrap() error {
	return err.Err
}

// RunAlreadyInProgress represents a second invocation racing an in-flight run
// for the same manifest.
type RunAlreadyInProgress struct {
	LockPath string
}

func (err RunAlreadyInProgress) Error() string {
	return fmt.Sprintf("another sync is already running (lock held at %q)", err.LockPath)
}

// FriendlyMessage implements the friendlier interface.
func (err RunAlreadyInProgress) FriendlyMessage() string {
	return fmt.Sprintf("Another sync is already running against this mirror.\n"+
		"If you're sure that's not the case, remove the stale lock file at %q and retry.",
		err.LockPath)
}
