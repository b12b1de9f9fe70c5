package vstoremgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"gopkg.in/yaml.v3"
)

// loadChunks opens path, picks a loader by extension, splits the result
// into chunk_size/chunk_overlap pieces, and attaches any sidecar
// "<path>.meta.yaml" metadata plus chunk_index to every chunk. It
// returns (nil, nil) for an extension with no known loader, matching
// the original's "format not supported, skip" behaviour.
func loadChunks(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	docs, err := loadDocuments(ctx, path)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		return nil, nil
	}

	split, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", path, err)
	}

	fileMeta := loadSidecarMetadata(path)
	for i := range split {
		if split[i].Metadata == nil {
			split[i].Metadata = map[string]any{}
		}
		for k, v := range fileMeta {
			split[i].Metadata[k] = v
		}
		split[i].Metadata["chunk_index"] = strconv.Itoa(i)
	}
	return split, nil
}

func loadDocuments(ctx context.Context, path string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	switch ext {
	case ".txt", ".c", ".md", ".py":
		return documentloaders.NewText(f).Load(ctx)
	case ".html", ".htm":
		return documentloaders.NewHTML(f).Load(ctx)
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		return documentloaders.NewPDF(f, info.Size()).Load(ctx)
	default:
		return nil, nil
	}
}

// loadSidecarMetadata reads "<path>.meta.yaml" if present and flattens it
// to string values, mirroring the Python manager's per-file metadata
// sidecar. A missing or malformed sidecar yields no metadata rather than
// an error.
func loadSidecarMetadata(path string) map[string]string {
	metaPath := path + ".meta.yaml"
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
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

// newSplitter builds the character-based splitter VectorStoreManager
// chunks every document with.
func newSplitter(chunkSize, chunkOverlap int) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
}
