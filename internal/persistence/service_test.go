package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/resource"
)

func TestPersistScrapedWritesFileMetadataAndSources(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir, nil, nil)
	require.NoError(t, err)

	r := &resource.ScrapedResource{URL: "https://example.com/a", Suffix: "html", SourceType: "web"}
	path, err := svc.PersistScraped(context.Background(), r, svc.WebsitesDir())
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, content)

	_, err = os.Stat(path + ".meta.yaml")
	require.NoError(t, err)

	require.NoError(t, svc.FlushSources())
	raw, err := os.ReadFile(filepath.Join(dir, "sources.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), r.Hash())
}

func TestPersistTicketUpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir, nil, nil)
	require.NoError(t, err)

	r := &resource.TicketResource{TicketID: "CMS-1", Body: "ticket body", SourceType: "jira"}
	path, err := svc.PersistTicket(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.TicketsDir(), r.Filename()), path)

	require.NoError(t, svc.FlushTickets())
	raw, err := os.ReadFile(filepath.Join(dir, "tickets.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CMS-1")
}

func TestFlushSourcesNoopWhenClean(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.FlushSources())
	_, err = os.Stat(filepath.Join(dir, "sources.yml"))
	assert.True(t, os.IsNotExist(err), "flush with nothing dirty should not write a file")
}

func TestResetDirectoryRemovesContentsNotDirItself(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir, nil, nil)
	require.NoError(t, err)

	nested := filepath.Join(svc.GitDir(), "repo", "file.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))

	require.NoError(t, svc.ResetDirectory(svc.GitDir()))

	entries, err := os.ReadDir(svc.GitDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewLoadsExistingCatalogues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yml"), []byte("abc123: https://example.com\n"), 0o644))

	svc, err := New(dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"abc123": "https://example.com"}, svc.sources)
}

// TestPersistScrapedUpdatesCatalog exercises the wiring a maintainer
// flagged as missing: PersistScraped (via Write) must record its
// resource's hash in the catalog and flush it to disk, so a
// reconciliation pass can see it without any other code involved.
func TestPersistScrapedUpdatesCatalog(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	svc, err := New(dir, cat, nil)
	require.NoError(t, err)

	r := &resource.ScrapedResource{URL: "https://example.com/a", Body: []byte("hello"), Suffix: "txt", SourceType: "web"}
	path, err := svc.PersistScraped(context.Background(), r, svc.WebsitesDir())
	require.NoError(t, err)

	got, ok := cat.Get(r.Hash())
	require.True(t, ok, "expected PersistScraped to register the resource's hash in the catalog")
	assert.Equal(t, path, filepath.Join(dir, got))

	reloaded, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	_, ok = reloaded.Get(r.Hash())
	assert.True(t, ok, "expected the catalog update to be flushed to index.yaml, not just held in memory")
}

// TestTwoPersistsProduceTwoDistinctCatalogHashes is the Go realisation
// of the testable property that two ingestion passes over distinct
// content must leave two distinct resource_hash entries in the unified
// index -- the property the maintainer-flagged wiring bug falsified for
// any real process.
func TestTwoPersistsProduceTwoDistinctCatalogHashes(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	svc, err := New(dir, cat, nil)
	require.NoError(t, err)

	first := &resource.ScrapedResource{URL: "https://example.com/first", Body: []byte("first"), Suffix: "txt", SourceType: "web"}
	second := &resource.ScrapedResource{URL: "https://example.com/second", Body: []byte("second"), Suffix: "txt", SourceType: "web"}

	_, err = svc.PersistScraped(context.Background(), first, svc.WebsitesDir())
	require.NoError(t, err)
	_, err = svc.PersistScraped(context.Background(), second, svc.WebsitesDir())
	require.NoError(t, err)

	require.NotEqual(t, first.Hash(), second.Hash())
	hashes := cat.Hashes()
	assert.Len(t, hashes, 2)
	assert.Contains(t, hashes, first.Hash())
	assert.Contains(t, hashes, second.Hash())
}

func TestDeleteResourceRemovesFileSidecarAndIndexEntry(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	svc, err := New(dir, cat, nil)
	require.NoError(t, err)

	r := &resource.ScrapedResource{URL: "https://example.com/a", Body: []byte("hello"), Suffix: "txt", SourceType: "web"}
	path, err := svc.PersistScraped(context.Background(), r, svc.WebsitesDir())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteResource(r.Hash(), true))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected the resource file to be removed")
	_, err = os.Stat(path + ".meta.yaml")
	assert.True(t, os.IsNotExist(err), "expected the sidecar to be removed")
	_, ok := cat.Get(r.Hash())
	assert.False(t, ok, "expected the index entry to be removed")

	reloaded, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	_, ok = reloaded.Get(r.Hash())
	assert.False(t, ok, "expected the removal to be flushed to index.yaml")

	// Deleting again is a no-op, not an error.
	assert.NoError(t, svc.DeleteResource(r.Hash(), true))
}

func TestDeleteByMetadataFilterDeletesMatchingResources(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	svc, err := New(dir, cat, nil)
	require.NoError(t, err)

	matching := &resource.ScrapedResource{URL: "https://example.com/match", Body: []byte("x"), Suffix: "txt", SourceType: "jira"}
	other := &resource.ScrapedResource{URL: "https://example.com/other", Body: []byte("y"), Suffix: "txt", SourceType: "web"}

	_, err = svc.PersistScraped(context.Background(), matching, svc.WebsitesDir())
	require.NoError(t, err)
	_, err = svc.PersistScraped(context.Background(), other, svc.WebsitesDir())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByMetadataFilter("source_type", "jira"))

	_, ok := cat.Get(matching.Hash())
	assert.False(t, ok, "expected the jira-sourced resource to be deleted")
	_, ok = cat.Get(other.Hash())
	assert.True(t, ok, "expected the web-sourced resource to survive the filter")
}
