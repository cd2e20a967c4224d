package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docmeta-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "out", "nested")
		store, err := local.New(local.Config{Dir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("DirIsAFile", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := local.New(local.Config{Dir: path})
		assert.Error(t, err)
	})

	t.Run("LeavesNoProbeFile", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		_, err := local.New(local.Config{Dir: dir})
		require.NoError(t, err)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{Dir: dir})
	require.NoError(t, err)

	t.Run("WritesFile", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "20240305-briefs.txt", "text/plain",
			strings.NewReader("https://example.org/a\n"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "20240305-briefs.txt")), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "20240305-briefs.txt"))
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/a\n", string(got))
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "out.json", "application/json", strings.NewReader("[1]"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "out.json", "application/json", strings.NewReader("[]"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "out.json"))
		require.NoError(t, err)
		assert.Equal(t, "[]", string(got))
	})

	t.Run("NestedPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "a/b/c.txt", "text/plain", strings.NewReader("nested"))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(dir, "a", "b", "c.txt"))
		require.NoError(t, err)
	})

	t.Run("RejectsEmptyAndEscapingPaths", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
		assert.Error(t, err)
		_, err = store.PutObject(context.Background(), "../escape.txt", "text/plain", strings.NewReader("x"))
		assert.Error(t, err)
	})
}
