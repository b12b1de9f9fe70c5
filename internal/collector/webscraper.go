// Package collector implements a2rchi's source collectors: pure producers
// of resource.Resource instances that never touch the vectorstore
// directly, only PersistenceService.
package collector

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/resource"
)

// Authenticator supplies cookies for a session that has hit a 401/403 on
// a crawl target, so WebScraper can retry once after re-authenticating.
type Authenticator interface {
	Authenticate(ctx context.Context, startURL string) ([]*http.Cookie, error)
}

// WebScraper is a simple BFS crawler over same-hostname links, fetching
// with a shared HTTP client/cookie jar.
type WebScraper struct {
	VerifyURLs     bool
	EnableWarnings bool
	Authenticator  Authenticator

	logger *logging.Logger
	client *http.Client
}

// NewWebScraper builds a WebScraper. When verifyURLs is false, TLS
// certificate verification is disabled for the crawl's HTTP client.
func NewWebScraper(verifyURLs, enableWarnings bool, authenticator Authenticator, logger *logging.Logger) *WebScraper {
	if logger == nil {
		logger = logging.Nop()
	}
	transport := &http.Transport{}
	if !verifyURLs {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in via verify_urls=false
	}
	return &WebScraper{
		VerifyURLs:     verifyURLs,
		EnableWarnings: enableWarnings,
		Authenticator:  authenticator,
		logger:         logger,
		client:         &http.Client{Transport: transport},
	}
}

// Crawl fetches pages reachable by same-hostname links from startURL,
// breadth-first, up to maxDepth levels. The current frontier is fully
// drained before depth is incremented. Individual fetch failures are
// logged and skipped; a 401/403 triggers one re-authenticate-and-retry
// when an Authenticator is configured.
func (w *WebScraper) Crawl(ctx context.Context, startURL string, maxDepth int) ([]*resource.ScrapedResource, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}
	baseHostname := start.Hostname()

	visited := map[string]bool{}
	var toVisit []string
	var levelLinks []string
	var resources []*resource.ScrapedResource

	toVisit = append(toVisit, startURL)
	depth := 0

	for len(toVisit) > 0 && depth < maxDepth {
		current := toVisit[0]
		toVisit = toVisit[1:]

		if visited[current] {
			continue
		}

		w.logger.Info(ctx, "crawling page", zap.Int("depth", depth+1), zap.Int("max_depth", maxDepth), zap.String("url", current))

		res, links, err := w.fetchAndReap(ctx, current, baseHostname)
		if err != nil {
			if w.shouldReauth(err) && w.Authenticator != nil {
				res, links, err = w.reauthAndRetry(ctx, current, baseHostname)
			}
			if err != nil {
				w.logger.Warn(ctx, "error crawling", zap.String("url", current), zap.Error(err))
				visited[current] = true
				if len(toVisit) == 0 {
					toVisit = append(toVisit, levelLinks...)
					levelLinks = nil
					depth++
				}
				continue
			}
		}

		visited[current] = true
		resources = append(resources, res)

		for _, link := range links {
			if !visited[link] && !contains(toVisit, link) && !contains(levelLinks, link) {
				levelLinks = append(levelLinks, link)
			}
		}

		if len(toVisit) == 0 {
			toVisit = append(toVisit, levelLinks...)
			levelLinks = nil
			depth++
		}
	}

	w.logger.Info(ctx, "crawling complete", zap.Int("pages_visited", len(visited)))
	return resources, nil
}

func (w *WebScraper) fetchAndReap(ctx context.Context, current, baseHostname string) (*resource.ScrapedResource, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, &httpStatusError{url: current, status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	res := &resource.ScrapedResource{
		URL:        current,
		SourceType: "web",
		Extra:      map[string]interface{}{"content_type": contentType},
	}

	if strings.HasSuffix(strings.ToLower(current), ".pdf") {
		res.Suffix = "pdf"
		res.Body = body
		return res, nil, nil
	}

	res.Suffix = "html"
	res.Body = body
	links := sameHostnameLinks(body, current, baseHostname)
	return res, links, nil
}

func (w *WebScraper) reauthAndRetry(ctx context.Context, current, baseHostname string) (*resource.ScrapedResource, []string, error) {
	cookies, err := w.Authenticator.Authenticate(ctx, current)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, nil, &httpStatusError{url: current, status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	res := &resource.ScrapedResource{
		URL:        current,
		Suffix:     "html",
		SourceType: "web",
		Body:       body,
		Extra:      map[string]interface{}{"content_type": resp.Header.Get("Content-Type")},
	}
	links := sameHostnameLinks(body, current, baseHostname)
	return res, links, nil
}

func (w *WebScraper) shouldReauth(err error) bool {
	var statusErr *httpStatusError
	if se, ok := err.(*httpStatusError); ok {
		statusErr = se
	}
	return statusErr != nil && (statusErr.status == http.StatusUnauthorized || statusErr.status == http.StatusForbidden)
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return "request to " + e.url + " failed with status"
}

// sameHostnameLinks parses body as HTML and returns every absolute link
// whose hostname matches baseHostname.
func sameHostnameLinks(body []byte, pageURL, baseHostname string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				resolved, err := base.Parse(attr.Val)
				if err != nil {
					continue
				}
				if resolved.Hostname() != baseHostname {
					continue
				}
				if !seen[resolved.String()] {
					seen[resolved.String()] = true
					links = append(links, resolved.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
