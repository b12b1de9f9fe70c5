package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebScraperCrawlFollowsSameHostLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/page2">next</a></body></html>`))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>leaf page</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	scraper := NewWebScraper(true, true, nil, nil)
	resources, err := scraper.Crawl(context.Background(), srv.URL+"/", 2)
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestWebScraperDetectsPDFBySuffix(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 fake"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	scraper := NewWebScraper(true, true, nil, nil)
	resources, err := scraper.Crawl(context.Background(), srv.URL+"/doc.pdf", 1)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "pdf", resources[0].Suffix)
}
