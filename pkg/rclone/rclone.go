package rclone

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// minVersion is the oldest rclone release the driver is known to work with
// (--create-empty-src-dirs and --delete-during with modern remotes).
const minVersion = "1.53.0"

// Mocked out for unit testing.
var execCommand = exec.CommandContext

// Options configures the reconcile driver.
type Options struct {
	// Exe is the rclone executable.
	Exe string

	// Dest is the rclone destination in remote:folder form.
	Dest string

	// DriveUseTrash toggles --drive-use-trash. Nil leaves rclone's default.
	DriveUseTrash *bool

	// Timeout caps the reconcile. A timed out reconcile is reported as a
	// RemoteSyncError and is not retried within the run.
	Timeout time.Duration
}

// Driver reconciles the local mirror onto the remote target by invoking the
// external rclone binary. `rclone sync` makes the destination identical to
// the source, deleting anything on the remote that's absent locally -- this
// is what gives the system its mirror guarantee.
type Driver struct {
	opts Options
}

// NewDriver creates a reconcile driver.
func NewDriver(opts Options) *Driver {
	if opts.Exe == "" {
		opts.Exe = "rclone"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	return &Driver{opts: opts}
}

// Reconcile makes the remote destination an exact copy of srcDir. The call
// blocks until rclone exits or the timeout fires.
func (d *Driver) Reconcile(ctx context.Context, srcDir string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	args := []string{
		"sync", srcDir, d.opts.Dest,
		"--create-empty-src-dirs",
		"--delete-during",
		"--transfers", "4",
		"--checkers", "8",
		// The manifest and its lock are local bookkeeping, not mirror
		// content. Keeping them off the remote means the remote file set
		// matches the mirrored node set exactly.
		"--exclude", "/.mirror-manifest.json",
		"--exclude", "/.mirror-manifest.lock",
	}
	if d.opts.DriveUseTrash != nil {
		args = append(args, "--drive-use-trash", strconv.FormatBool(*d.opts.DriveUseTrash))
	}

	log.WithFields(log.Fields{"dest": d.opts.Dest, "src": srcDir}).Info("Reconciling remote mirror")
	cmd := execCommand(ctx, d.opts.Exe, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errors.RemoteSyncError{Dest: d.opts.Dest, Err: errors.New("rclone timed out")}
	}
	if err != nil {
		log.WithField("output", strings.TrimSpace(output.String())).Debug("rclone failed")
		return errors.RemoteSyncError{Dest: d.opts.Dest, Err: err}
	}
	return nil
}

// CheckVersion verifies that the installed rclone is recent enough. It's a
// preflight check so a stale install fails before any files move.
func (d *Driver) CheckVersion(ctx context.Context) error {
	cmd := execCommand(ctx, d.opts.Exe, "version")
	out, err := cmd.Output()
	if err != nil {
		return errors.NewFriendlyError("Couldn't run %q. Is rclone installed and on your PATH?\n"+
			"See https://rclone.org/install/ for instructions.", d.opts.Exe)
	}

	installed, err := parseVersion(string(out))
	if err != nil {
		return errors.WithContext(err, "parse rclone version")
	}

	min := goversion.Must(goversion.NewVersion(minVersion))
	if installed.LessThan(min) {
		return errors.NewFriendlyError("rclone %s is too old; %s or newer is required.\n"+
			"Run `rclone selfupdate` or reinstall from https://rclone.org/install/.",
			installed, minVersion)
	}
	return nil
}

// parseVersion extracts the release from `rclone version` output, whose
// first line looks like "rclone v1.62.2".
func parseVersion(output string) (*goversion.Version, error) {
	firstLine := output
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		firstLine = output[:idx]
	}
	fields := strings.Fields(strings.TrimSpace(firstLine))
	if len(fields) < 2 {
		return nil, errors.New("unexpected rclone version output: " + firstLine)
	}
	return goversion.NewVersion(strings.TrimPrefix(fields[1], "v"))
}
