package errors

import (
	"errors"
	"fmt"
	"os"
)

// New returns an error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// ContextError annotates an error with a description of the operation that
// failed. The original error is preserved so that callers can still inspect
// the root cause.
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

func (err ContextError) Unwrap() error {
	return err.Err
}

// WithContext wraps an error with context on the operation that caused it.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// FriendlyError is an error with a message meant to be shown directly to the
// user, without any wrapping context.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage implements the friendlier interface.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a user-friendly error with the given format string.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

// friendlier is implemented by errors that have a user-friendly message in
// addition to their terse Error() string.
type friendlier interface {
	FriendlyMessage() string
}

// GetPrintableMessage returns the message that should be shown to the user
// for the given error. If any error in the chain has a friendly message, it's
// used instead of the default formatting.
func GetPrintableMessage(err error) string {
	for cause := err; cause != nil; cause = errors.Unwrap(cause) {
		if friendly, ok := cause.(friendlier); ok {
			return friendly.FriendlyMessage()
		}
	}
	return err.Error()
}

// RootCause returns the innermost error in the chain.
func RootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// IsNotExist reports whether the error indicates a missing file. It covers
// both the real filesystem and afero's in-memory one, which reports missing
// files with its own error value.
func IsNotExist(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	pathErr, ok := err.(*os.PathError)
	return ok && pathErr.Err.Error() == "file does not exist"
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
