package certificates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPEM = "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"

func testCache(t *testing.T) *Cache {
	t.Helper()

	cache, err := NewCache(hclog.NewNullLogger(), filepath.Join(t.TempDir(), "certificates"))
	require.NoError(t, err)
	return cache
}

func TestCache_WriteAndRead(t *testing.T) {
	cache := testCache(t)

	changed, err := cache.Write("cert-A", []byte(testPEM))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, cache.Has("cert-A"))

	path, err := cache.Path("cert-A")
	require.NoError(t, err)
	assert.Equal(t, "cert-A", filepath.Base(path))

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testPEM, string(stored))
}

func TestCache_WriteNoChange(t *testing.T) {
	cache := testCache(t)

	changed, err := cache.Write("cert-A", []byte(testPEM))
	require.NoError(t, err)
	require.True(t, changed)

	// identical bytes must not rewrite the file
	path, err := cache.Path("cert-A")
	require.NoError(t, err)
	before, err := os.Stat(path)
	require.NoError(t, err)

	changed, err = cache.Write("cert-A", []byte(testPEM))
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	changed, err = cache.Write("cert-A", []byte(testPEM+"\n"))
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCache_WriteLeavesNoTemporaries(t *testing.T) {
	cache := testCache(t)

	_, err := cache.Write("cert-A", []byte(testPEM))
	require.NoError(t, err)
	_, err = cache.Write("cert-A", []byte("updated"))
	require.NoError(t, err)

	entries, err := os.ReadDir(cache.directory)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cert-A", entries[0].Name())
}

func TestCache_Delete(t *testing.T) {
	cache := testCache(t)

	found, err := cache.Delete("cert-A")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = cache.Write("cert-A", []byte(testPEM))
	require.NoError(t, err)

	found, err = cache.Delete("cert-A")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, cache.Has("cert-A"))

	_, err = cache.Path("cert-A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_ReloadSeedsFromDirectory(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "certificates")
	require.NoError(t, os.MkdirAll(directory, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(directory, "cert-A"), []byte(testPEM), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(directory, "cert-B"), []byte(testPEM), 0600))

	cache, err := NewCache(hclog.NewNullLogger(), directory)
	require.NoError(t, err)

	assert.Equal(t, []string{"cert-A", "cert-B"}, cache.IDs())

	// a file appearing behind the cache's back is picked up by Reload
	require.NoError(t, os.WriteFile(filepath.Join(directory, "cert-C"), []byte(testPEM), 0600))
	require.NoError(t, cache.Reload())
	assert.Equal(t, []string{"cert-A", "cert-B", "cert-C"}, cache.IDs())
}
