package resource

import (
	"net/url"
	"strings"
)

// ScrapedResource is a single piece of content pulled from a web page by
// the webscraper or ssocollector, or from a repository by the gitscraper.
type ScrapedResource struct {
	URL        string
	Body       []byte
	Suffix     string // extension without leading dot, e.g. "html"
	SourceType string // "web", "sso" or "git"
	Extra      map[string]interface{}
}

var _ Resource = (*ScrapedResource)(nil)

// Hash returns the MD5-of-URL identifier shared by the persisted file name,
// the sidecar path, and the index.yaml key.
func (r *ScrapedResource) Hash() string {
	return hash12Hex(r.URL)
}

// Filename returns "{hash}.{suffix}".
func (r *ScrapedResource) Filename() string {
	return r.Hash() + "." + strings.TrimPrefix(r.Suffix, ".")
}

// Content returns the raw scraped bytes.
func (r *ScrapedResource) Content() ([]byte, error) {
	return r.Body, nil
}

// Metadata builds display metadata defaulting display_name to a shortened
// form of the URL (host plus first path segment) when not set explicitly.
func (r *ScrapedResource) Metadata() *Metadata {
	extra := make(map[string]interface{}, len(r.Extra)+3)
	for k, v := range r.Extra {
		extra[k] = v
	}
	if _, ok := extra["url"]; !ok {
		extra["url"] = r.URL
	}
	if _, ok := extra["suffix"]; !ok {
		extra["suffix"] = r.Suffix
	}
	if _, ok := extra["source_type"]; !ok {
		extra["source_type"] = r.SourceType
	}

	displayName, _ := extra["display_name"].(string)
	if displayName == "" {
		displayName = formatLinkDisplay(r.URL)
	}

	md, err := NewMetadata(displayName, extra)
	if err != nil {
		// URL is always non-empty by construction of ScrapedResource, so
		// display_name can only be empty if formatLinkDisplay itself
		// produced one; fall back to the raw URL rather than panic.
		md, _ = NewMetadata(r.URL, extra)
	}
	return md
}

func formatLinkDisplay(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	display := parsed.Hostname()
	if display == "" {
		display = link
	}
	if parsed.Path != "" && parsed.Path != "/" {
		trimmed := strings.Trim(parsed.Path, "/")
		firstSegment := strings.SplitN(trimmed, "/", 2)[0]
		if firstSegment != "" {
			display += "/" + firstSegment
		}
	}
	return display
}
