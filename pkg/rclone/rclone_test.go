package rclone

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// fakeExec replays this test binary as the "rclone" process, per the usual
// helper-process trick.
func fakeExec(t *testing.T, mode string) func(context.Context, string, ...string) *exec.Cmd {
	t.Helper()
	original := execCommand
	t.Cleanup(func() { execCommand = original })

	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmdArgs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cmdArgs...)
		cmd.Env = append(os.Environ(), "GO_HELPER_PROCESS=1", "GO_HELPER_MODE="+mode)
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("GO_HELPER_MODE") {
	case "ok":
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "rclone: directory not found")
		os.Exit(1)
	case "version":
		fmt.Println("rclone v1.62.2")
		fmt.Println("- os/version: linux")
		os.Exit(0)
	case "old-version":
		fmt.Println("rclone v1.45")
		os.Exit(0)
	}
	os.Exit(2)
}

func TestReconcileArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	original := execCommand
	t.Cleanup(func() { execCommand = original })
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return fakeExec(t, "ok")(ctx, name, args...)
	}

	useTrash := false
	driver := NewDriver(Options{
		Exe:           "rclone",
		Dest:          "gdrive:notion",
		DriveUseTrash: &useTrash,
	})
	require.NoError(t, driver.Reconcile(context.Background(), "/mirror"))

	assert.Equal(t, "rclone", gotName)
	assert.Equal(t, []string{
		"sync", "/mirror", "gdrive:notion",
		"--create-empty-src-dirs",
		"--delete-during",
		"--transfers", "4",
		"--checkers", "8",
		"--exclude", "/.mirror-manifest.json",
		"--exclude", "/.mirror-manifest.lock",
		"--drive-use-trash", "false",
	}, gotArgs)
}

func TestReconcileFailure(t *testing.T) {
	execCommand = fakeExec(t, "fail")

	driver := NewDriver(Options{Dest: "gdrive:notion"})
	err := driver.Reconcile(context.Background(), "/mirror")
	require.Error(t, err)

	var syncErr errors.RemoteSyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "gdrive:notion", syncErr.Dest)
}

func TestReconcileTimeout(t *testing.T) {
	execCommand = fakeExec(t, "ok")

	driver := NewDriver(Options{Dest: "gdrive:notion", Timeout: time.Nanosecond})
	err := driver.Reconcile(context.Background(), "/mirror")
	require.Error(t, err)

	var syncErr errors.RemoteSyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Contains(t, err.Error(), "timed out")
}

func TestCheckVersion(t *testing.T) {
	execCommand = fakeExec(t, "version")
	driver := NewDriver(Options{})
	assert.NoError(t, driver.CheckVersion(context.Background()))
}

func TestCheckVersionTooOld(t *testing.T) {
	execCommand = fakeExec(t, "old-version")
	driver := NewDriver(Options{})
	err := driver.CheckVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, errors.GetPrintableMessage(err), "too old")
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("rclone v1.62.2\n- os/version: linux\n")
	require.NoError(t, err)
	assert.Equal(t, "1.62.2", v.String())

	_, err = parseVersion("garbage")
	assert.Error(t, err)
}
