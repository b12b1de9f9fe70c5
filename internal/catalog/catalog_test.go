package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyCatalogue(t *testing.T) {
	dir := t.TempDir()
	svc, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, svc.Hashes())
}

func TestLoadMalformedFileYieldsEmptyCatalogue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yaml"), []byte("not: [valid: yaml"), 0o644))
	svc, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, svc.Hashes())
}

func TestSetGetDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	svc, err := Load(dir, nil)
	require.NoError(t, err)

	svc.Set("abc123", "websites/abc123.html")
	path, ok := svc.Get("abc123")
	assert.True(t, ok)
	assert.Equal(t, "websites/abc123.html", path)

	svc.Delete("abc123")
	_, ok = svc.Get("abc123")
	assert.False(t, ok)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	svc, err := Load(dir, nil)
	require.NoError(t, err)

	svc.Set("hash1", "websites/hash1.html")
	svc.Set("hash2", "tickets/hash2.txt")
	require.NoError(t, svc.Save())

	reloaded, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hash1", "hash2"}, reloaded.Hashes())
}

func TestResolvedPathsJoinsRelativeToDataPath(t *testing.T) {
	dir := t.TempDir()
	svc, err := Load(dir, nil)
	require.NoError(t, err)

	svc.Set("hash1", "websites/hash1.html")
	svc.Set("hash2", "/absolute/path/hash2.html")

	resolved := svc.ResolvedPaths()
	assert.Equal(t, filepath.Join(dir, "websites", "hash1.html"), resolved["hash1"])
	assert.Equal(t, "/absolute/path/hash2.html", resolved["hash2"])
}
