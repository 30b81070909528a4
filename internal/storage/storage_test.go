package storage_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tds/internal/storage"
)

func TestOpenFileStoragePreSizes(t *testing.T) {
	dir := t.TempDir()

	fs, err := storage.OpenFileStorage(dir, []storage.FileSpec{
		{Path: "a.bin", Length: 100},
		{Path: filepath.Join("sub", "b.bin"), Length: 50},
	})
	require.NoError(t, err)
	defer fs.Close()

	assert.Equal(t, int64(150), fs.Size())

	stat, err := os.Stat(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), stat.Size())

	stat, err = os.Stat(filepath.Join(dir, "sub", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(50), stat.Size())
}

func TestWriteReadAcrossFileBoundary(t *testing.T) {
	dir := t.TempDir()

	fs, err := storage.OpenFileStorage(dir, []storage.FileSpec{
		{Path: "first", Length: 10},
		{Path: "second", Length: 10},
	})
	require.NoError(t, err)
	defer fs.Close()

	data := []byte("0123456789abcdef")

	n, err := fs.WriteBlock(data, 5)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = fs.ReadBlock(got, 5)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, got))

	// Verify the split actually landed in both files.
	first, err := os.ReadFile(filepath.Join(dir, "first"))
	require.NoError(t, err)
	assert.Equal(t, "01234", string(first[5:]))

	second, err := os.ReadFile(filepath.Join(dir, "second"))
	require.NoError(t, err)
	assert.Equal(t, "56789abcdef", string(second[:11]))
}

func TestShortWritePastEnd(t *testing.T) {
	fs, err := storage.OpenFileStorage(t.TempDir(), []storage.FileSpec{
		{Path: "only", Length: 8},
	})
	require.NoError(t, err)
	defer fs.Close()

	n, err := fs.WriteBlock([]byte("0123456789"), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n, "write past the end of the torrent must be short")

	n, err = fs.ReadBlock(make([]byte, 4), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
