package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUploadAndCleanup(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	dir, err := store.CreateWorkDir("sess-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "sess-1-"))

	path, err := store.SaveUpload(dir, "doc.pdf", strings.NewReader("%PDF-stub"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-stub", string(data))

	store.Cleanup(dir)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveUploadStripsDirectories(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	dir, err := store.CreateWorkDir("sess-2")
	require.NoError(t, err)

	// path traversal in the client-supplied filename is ignored
	path, err := store.SaveUpload(dir, "../../etc/evil.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evil.pdf"), path)
}

func TestCleanupEmptyDirIsNoop(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	store.Cleanup("")
}
