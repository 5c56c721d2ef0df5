package errors

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext(t *testing.T) {
	root := New("connection refused")
	wrapped := WithContext(WithContext(root, "fetch page"), "walk workspace")

	assert.Equal(t, "walk workspace: fetch page: connection refused", wrapped.Error())
	assert.Equal(t, root, RootCause(wrapped))
}

func TestGetPrintableMessage(t *testing.T) {
	plain := WithContext(New("boom"), "do thing")
	assert.Equal(t, "do thing: boom", GetPrintableMessage(plain))

	friendly := NewFriendlyError("Something broke: %s", "reason")
	assert.Equal(t, "Something broke: reason", GetPrintableMessage(friendly))

	// A friendly error anywhere in the chain wins over the default formatting.
	wrapped := WithContext(RunAlreadyInProgress{LockPath: "/mirror/.lock"}, "acquire lock")
	assert.Contains(t, GetPrintableMessage(wrapped), "Another sync is already running")
}

func TestIsNotExist(t *testing.T) {
	_, err := os.Open("/does/not/exist")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))

	_, err = afero.NewMemMapFs().Open("/does/not/exist")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))

	assert.False(t, IsNotExist(New("boom")))
}

func TestTypedErrorsUnwrap(t *testing.T) {
	root := New("disk full")
	err := WithContext(MirrorWriteError{Path: "a/b.md", Err: root}, "build mirror")

	var writeErr MirrorWriteError
	assert.True(t, As(err, &writeErr))
	assert.Equal(t, "a/b.md", writeErr.Path)
	assert.True(t, Is(err, root))
}
