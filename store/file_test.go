package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("access_token", "tok-1"))
	require.NoError(t, s.Set("session_id", "session_1_abc"))

	// A fresh store reads what the first one flushed.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok := reopened.Get("access_token")
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)
	v, ok = reopened.Get("session_id")
	assert.True(t, ok)
	assert.Equal(t, "session_1_abc", v)
}

func TestFileStoreDeleteAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "2"))

	require.NoError(t, s.Delete("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)

	require.NoError(t, s.Clear())
	_, ok = s.Get("b")
	assert.False(t, ok)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	_, ok = reopened.Get("b")
	assert.False(t, ok)
}

func TestFileStoreMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, ok := s.Get("anything")
	assert.False(t, ok)

	// First write creates the parent directory.
	require.NoError(t, s.Set("a", "1"))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt state file")
}
