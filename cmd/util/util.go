package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// HandleFatalError prints the user-facing message for the error and exits
// nonzero. The full error chain is logged at debug level for troubleshooting.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(os.Stderr, errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic converts a panic into an error message and a nonzero exit, so
// users see a bug report pointer instead of a bare stack trace.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "notionmirror hit an unexpected error: %v\n\n%s\n", r, debug.Stack())
	fmt.Fprintln(os.Stderr, "This is a bug. Please file an issue with the output above.")
	os.Exit(1)
}
