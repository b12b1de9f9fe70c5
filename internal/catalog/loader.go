package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"gopkg.in/yaml.v3"
)

// loadDocumentContent opens path, picks a loader by extension (mirroring
// internal/vstoremgr's reconciliation loader), and joins every page/
// section the loader returns into one string. An unrecognised extension
// falls back to reading the file as plain text rather than silently
// returning nothing, since a catalog lookup (unlike reconciliation) is
// always for one specific, caller-chosen hash.
func loadDocumentContent(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	switch ext {
	case ".html", ".htm":
		docs, err := documentloaders.NewHTML(f).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", path, err)
		}
		return joinDocuments(docs), nil
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", path, err)
		}
		return joinDocuments(docs), nil
	default:
		docs, err := documentloaders.NewText(f).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", path, err)
		}
		return joinDocuments(docs), nil
	}
}

func joinDocuments(docs []schema.Document) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(d.PageContent)
	}
	return b.String()
}

// loadSidecarMetadata reads "<path>.meta.yaml" if present and flattens it
// to string values, returning an empty (never nil) map when the sidecar
// is absent or malformed.
func loadSidecarMetadata(path string) map[string]string {
	data, err := os.ReadFile(path + ".meta.yaml")
	if err != nil {
		return map[string]string{}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return map[string]string{}
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
