// Package catalog maintains the unified index.yaml mapping resource
// hashes to their on-disk paths, plus read-mostly access to each
// resource's content and metadata sidecar. PersistenceService is the
// only writer of the index (via Set/Delete/Save); VectorStoreManager
// diffs the index against the vector store's existing hashes to decide
// what to embed and what to drop, and the agent pipeline's catalog
// tools search it directly.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/a2rchi/a2rchi/internal/logging"
)

const defaultIndexFilename = "index.yaml"

// Service owns the unified resource index for one data directory.
type Service struct {
	dataPath  string
	indexPath string
	logger    *logging.Logger

	mu    sync.RWMutex
	index map[string]string // resource hash -> path, relative to dataPath when written under it
}

// Entry pairs a catalogued hash with its (possibly relative) stored path.
type Entry struct {
	Hash string
	Path string
}

// Document is one catalogued resource's content, loaded with the loader
// appropriate for its file suffix, plus its sidecar metadata.
type Document struct {
	Hash     string
	Path     string
	Content  string
	Metadata map[string]string
}

// MetadataMatch pairs a hash with its full sidecar metadata, returned by
// MetadataByFilter.
type MetadataMatch struct {
	Hash     string
	Metadata map[string]string
}

// Load reads (or lazily creates) the index.yaml catalogue rooted at
// dataPath. A missing or malformed file yields an empty catalogue rather
// than an error, matching the collectors' tolerance for a fresh data
// directory.
func Load(dataPath string, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		dataPath:  dataPath,
		indexPath: filepath.Join(dataPath, defaultIndexFilename),
		logger:    logger,
		index:     map[string]string{},
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh reloads the hash -> path index from disk, discarding any
// in-memory changes that were never flushed via Save. It is cheap (a
// single YAML parse) and safe to call at any time; it never touches
// document content or metadata sidecars, which are always read live
// from disk by DocumentForHash/MetadataForHash rather than cached.
func (s *Service) Refresh() error {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.index = map[string]string{}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading %s: %w", s.indexPath, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		s.logger.Warn(context.Background(), "failed to parse index, defaulting to empty", zap.String("path", s.indexPath), zap.Error(err))
		s.mu.Lock()
		s.index = map[string]string{}
		s.mu.Unlock()
		return nil
	}

	sanitized := make(map[string]string, len(raw))
	for k, v := range raw {
		str, ok := v.(string)
		if !ok {
			s.logger.Warn(context.Background(), "ignoring non-string index entry", zap.String("key", k))
			continue
		}
		sanitized[k] = str
	}

	s.mu.Lock()
	s.index = sanitized
	s.mu.Unlock()
	return nil
}

// Get returns the stored path for hash and whether it was present.
func (s *Service) Get(hash string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.index[hash]
	return path, ok
}

// Set records hash -> path in the in-memory index. Callers must call Save
// to persist the change.
func (s *Service) Set(hash, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[hash] = path
}

// Delete removes hash from the in-memory index.
func (s *Service) Delete(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, hash)
}

// Hashes returns every hash currently in the index.
func (s *Service) Hashes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.index))
	for h := range s.index {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// IterFiles returns every catalogued (hash, path) entry, sorted by hash,
// for callers (the agent's catalog tools, diagnostics) that want to walk
// the whole catalogue rather than look up one hash at a time.
func (s *Service) IterFiles() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.index))
	for hash, path := range s.index {
		out = append(out, Entry{Hash: hash, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// ResolvedPaths returns a copy of the index with every relative path
// resolved against dataPath, for callers (e.g. the reconciliation loader)
// that need an absolute path to open the file.
func (s *Service) ResolvedPaths() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.index))
	for hash, stored := range s.index {
		out[hash] = s.resolve(stored)
	}
	return out
}

func (s *Service) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(s.dataPath, path))
}

// DocumentForHash loads the content catalogued under hash using the
// loader appropriate for its file suffix, merged with its sidecar
// metadata. It returns ok=false if hash is not in the index.
func (s *Service) DocumentForHash(ctx context.Context, hash string) (Document, bool, error) {
	path, ok := s.Get(hash)
	if !ok {
		return Document{}, false, nil
	}
	resolved := s.resolve(path)

	content, err := loadDocumentContent(ctx, resolved)
	if err != nil {
		return Document{}, true, fmt.Errorf("loading document for %s: %w", hash, err)
	}

	return Document{
		Hash:     hash,
		Path:     resolved,
		Content:  content,
		Metadata: loadSidecarMetadata(resolved),
	}, true, nil
}

// MetadataForHash parses the YAML sidecar for hash and returns it as a
// flat string map, or an empty map when the sidecar is absent or
// malformed. The second return value reports whether hash is catalogued
// at all.
func (s *Service) MetadataForHash(hash string) (map[string]string, bool) {
	path, ok := s.Get(hash)
	if !ok {
		return map[string]string{}, false
	}
	return loadSidecarMetadata(s.resolve(path)), true
}

// MetadataByFilter returns every catalogued (hash, metadata) pair whose
// metadata has key set to exactly value.
func (s *Service) MetadataByFilter(key, value string) []MetadataMatch {
	var out []MetadataMatch
	for _, entry := range s.IterFiles() {
		md, ok := s.MetadataForHash(entry.Hash)
		if !ok {
			continue
		}
		if v, present := md[key]; present && v == value {
			out = append(out, MetadataMatch{Hash: entry.Hash, Metadata: md})
		}
	}
	return out
}

// Save writes the current index to index.yaml atomically (write to a
// temp file, then rename), so a crash mid-write never leaves a partially
// written catalogue.
func (s *Service) Save() error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.index))
	for k, v := range s.index {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	data, err := yamlMarshalSorted(snapshot)
	if err != nil {
		return fmt.Errorf("marshalling index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(s.indexPath), err)
	}

	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.indexPath); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, s.indexPath, err)
	}
	return nil
}

func yamlMarshalSorted(m map[string]string) ([]byte, error) {
	// yaml.v3 already sorts map keys on marshal; this wrapper exists so
	// Save's sorting guarantee is documented at one call site rather than
	// relied on implicitly.
	return yaml.Marshal(m)
}
