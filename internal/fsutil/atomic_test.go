package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()

	t.Run("creates parent directories", func(t *testing.T) {
		dest := filepath.Join(dir, "deep", "nested", "file.txt")
		require.NoError(t, WriteAtomic(dest, strings.NewReader("content"), nil))

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "content", string(got))
		assert.False(t, Exists(dest+".tmp"))
	})

	t.Run("replaces existing file", func(t *testing.T) {
		dest := filepath.Join(dir, "replace.txt")
		require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))
		require.NoError(t, WriteAtomic(dest, strings.NewReader("new"), nil))

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("failed check keeps old content", func(t *testing.T) {
		dest := filepath.Join(dir, "checked.txt")
		require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

		boom := errors.New("bad content")
		err := WriteAtomic(dest, strings.NewReader("new"), func() error { return boom })
		assert.ErrorIs(t, err, boom)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "old", string(got))
		assert.False(t, Exists(dest+".tmp"))
	})
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
