package resource

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LocalFileResource is a file copied from the host filesystem by the
// local files collector.
type LocalFileResource struct {
	SourcePath string // absolute path to the source file
	Body       []byte
	SourceType string // defaults to "local_files"
	BaseDir    string // collection root SourcePath was discovered under, optional
}

var _ Resource = (*LocalFileResource)(nil)

// Hash is stable across re-collection of the same file: it hashes the path
// relative to BaseDir when known, so a changed file overwrites in place
// rather than duplicating under a content hash.
func (r *LocalFileResource) Hash() string {
	return hash12Hex(r.hashKey())
}

// Filename returns "{hash}{ext}", omitting the extension entirely if the
// source file has none.
func (r *LocalFileResource) Filename() string {
	ext := filepath.Ext(r.SourcePath)
	if ext == "" {
		return r.Hash()
	}
	return r.Hash() + ext
}

// Content returns the file bytes captured at collection time.
func (r *LocalFileResource) Content() ([]byte, error) {
	return r.Body, nil
}

// Metadata stats the source file for size/mtime and records the path
// relative to BaseDir when the file lives under it.
func (r *LocalFileResource) Metadata() *Metadata {
	sourceType := r.SourceType
	if sourceType == "" {
		sourceType = "local_files"
	}

	extra := map[string]interface{}{
		"source_type":   sourceType,
		"original_path": r.SourcePath,
		"suffix":        filepath.Ext(r.SourcePath),
	}

	if info, err := os.Stat(r.SourcePath); err == nil {
		extra["size_bytes"] = strconv.FormatInt(info.Size(), 10)
		extra["modified_at"] = info.ModTime().UTC().Format(time.RFC3339)
	}

	relativePath := r.relativePath()
	displayName := relativePath
	if displayName == "" {
		displayName = filepath.Base(r.SourcePath)
	}
	if relativePath != "" {
		extra["relative_path"] = relativePath
	}
	if r.BaseDir != "" {
		extra["base_path"] = r.BaseDir
	}

	md, _ := NewMetadata(displayName, extra)
	return md
}

func (r *LocalFileResource) relativePath() string {
	if r.BaseDir == "" {
		return ""
	}
	rel, err := filepath.Rel(r.BaseDir, r.SourcePath)
	if err != nil {
		return ""
	}
	return rel
}

func (r *LocalFileResource) hashKey() string {
	if rel := r.relativePath(); rel != "" {
		return rel
	}
	abs, err := filepath.Abs(r.SourcePath)
	if err != nil {
		return r.SourcePath
	}
	return abs
}
