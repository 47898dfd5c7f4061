package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresRoot(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestNewCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")

	store, err := New(root)
	require.NoError(t, err)
	require.DirExists(t, store.Root())
}

func TestSaveUploadNameShape(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	name, err := store.SaveUpload([]byte("payload"), "lesion.PNG")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^\d{14}_[0-9a-f]{16}\.png$`), name)

	data, err := os.ReadFile(store.Path(name))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestSaveUploadDefaultsExtension(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	name, err := store.SaveUpload([]byte("x"), "noext")
	require.NoError(t, err)
	require.Equal(t, ".jpg", filepath.Ext(name))
}

func TestSaveUploadNamesDoNotCollide(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	first, err := store.SaveUpload([]byte("a"), "a.jpg")
	require.NoError(t, err)
	second, err := store.SaveUpload([]byte("b"), "b.jpg")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestPathStripsDirectoryComponents(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, filepath.Join(store.Root(), "file.png"), store.Path("../../etc/file.png"))
}

func TestURL(t *testing.T) {
	require.Equal(t, "/static/img.png", URL("img.png"))
	require.Equal(t, "/static/img.png", URL("/some/dir/img.png"))
	require.Equal(t, "", URL(""))
}

func TestFilesAndRemove(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	name, err := store.SaveUpload([]byte("x"), "a.jpg")
	require.NoError(t, err)

	files, err := store.Files()
	require.NoError(t, err)
	require.Equal(t, []string{name}, files)

	require.NoError(t, store.Remove(name))
	require.NoError(t, store.Remove(name))

	files, err = store.Files()
	require.NoError(t, err)
	require.Empty(t, files)
}
