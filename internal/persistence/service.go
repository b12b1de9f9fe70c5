// Package persistence writes collected resources to content-addressed
// storage on the local filesystem, maintains the small per-collector
// catalogues (sources.yml, tickets.yml) collectors use to avoid
// re-fetching content they already hold, and keeps internal/catalog's
// unified index.yaml in step with every write and delete.
package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/resource"
)

// TicketRecord is the sidecar entry tracked for a persisted ticket,
// allowing ticket collectors to detect whether a ticket has already been
// collected and whether its content has changed since.
type TicketRecord struct {
	DisplayName string            `yaml:"display_name"`
	UpdatedAt   string            `yaml:"updated_at,omitempty"`
	Extra       map[string]string `yaml:"extra,omitempty"`
}

// Service is shared filesystem persistence for collected resources.
type Service struct {
	dataPath         string
	websitesDir      string
	gitDir           string
	ticketsDir       string
	sourcesPath      string
	ticketsIndexPath string
	catalog          *catalog.Service
	logger           *logging.Logger

	mu           sync.Mutex
	sources      map[string]string
	sourcesDirty bool
	ticketsIndex map[string]TicketRecord
	ticketsDirty bool
}

// New constructs a Service rooted at dataPath, creating the websites/,
// git/ and tickets/ subdirectories and loading any existing catalogues.
// cat is the unified index every successful Write/DeleteResource call
// keeps current; a nil cat degrades Write to file-and-sidecar writes
// only, which is only appropriate for tests that don't exercise
// reconciliation.
func New(dataPath string, cat *catalog.Service, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		dataPath:         dataPath,
		websitesDir:      filepath.Join(dataPath, "websites"),
		gitDir:           filepath.Join(dataPath, "git"),
		ticketsDir:       filepath.Join(dataPath, "tickets"),
		sourcesPath:      filepath.Join(dataPath, "sources.yml"),
		ticketsIndexPath: filepath.Join(dataPath, "tickets.yml"),
		catalog:          cat,
		logger:           logger,
	}
	for _, dir := range []string{s.websitesDir, s.gitDir, s.ticketsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	sources, err := loadYAMLMap[string](s.sourcesPath, logger)
	if err != nil {
		return nil, err
	}
	s.sources = sources

	tickets, err := loadYAMLMap[TicketRecord](s.ticketsIndexPath, logger)
	if err != nil {
		return nil, err
	}
	s.ticketsIndex = tickets

	return s, nil
}

// WebsitesDir is the default target directory for web-scraped resources.
func (s *Service) WebsitesDir() string { return s.websitesDir }

// GitDir is the default target directory for git-scraped resources.
func (s *Service) GitDir() string { return s.gitDir }

// TicketsDir is the target directory for persisted tickets.
func (s *Service) TicketsDir() string { return s.ticketsDir }

// Write persists r's content (and metadata sidecar, if any) under
// targetDir, then records hash -> path in the unified catalog index and
// flushes it to disk, so a reconciliation pass started immediately after
// Write returns sees the new resource. It always overwrites: re-writing
// the same hash supersedes the previous content in place. Callers that
// also want source/ticket bookkeeping should use PersistScraped/
// PersistTicket instead of calling Write directly.
//
// An IO error here leaves the catalog index unchanged: the file is only
// committed to the index after it and its sidecar have been written
// successfully, per the atomic-persist contract (file, then sidecar,
// then index entry).
func (s *Service) Write(r resource.Resource, targetDir string) (string, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", targetDir, err)
	}

	content, err := r.Content()
	if err != nil {
		return "", fmt.Errorf("reading resource content: %w", err)
	}

	path := filepath.Join(targetDir, r.Filename())
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	if md := r.Metadata(); md != nil {
		sidecarPath := path + ".meta.yaml"
		data, err := yaml.Marshal(md.AsMap())
		if err != nil {
			return "", fmt.Errorf("marshalling metadata for %s: %w", path, err)
		}
		if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
			return "", fmt.Errorf("writing sidecar %s: %w", sidecarPath, err)
		}
	}

	if s.catalog != nil {
		s.catalog.Set(r.Hash(), s.indexPath(path))
		if err := s.catalog.Save(); err != nil {
			return "", fmt.Errorf("updating catalog index for %s: %w", path, err)
		}
	}

	return path, nil
}

// indexPath returns path relative to dataPath when it lives under it
// (the form the catalog stores and ResolvedPaths later re-resolves),
// falling back to the absolute path otherwise.
func (s *Service) indexPath(path string) string {
	rel, err := filepath.Rel(s.dataPath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// PersistScraped writes a scraped web resource into targetDir and records
// its hash -> URL mapping in the sources catalogue.
func (s *Service) PersistScraped(ctx context.Context, r *resource.ScrapedResource, targetDir string) (string, error) {
	path, err := s.Write(r, targetDir)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sources[r.Hash()] = r.URL
	s.sourcesDirty = true
	s.mu.Unlock()

	s.logger.Info(ctx, "stored resource", zap.String("url", r.URL), zap.String("path", path))
	return path, nil
}

// PersistTicket writes a ticket resource into the tickets directory and
// records its index entry in the tickets catalogue.
func (s *Service) PersistTicket(ctx context.Context, r *resource.TicketResource) (string, error) {
	path, err := s.Write(r, s.ticketsDir)
	if err != nil {
		return "", err
	}

	record := TicketRecord{Extra: map[string]string{}}
	if md := r.Metadata(); md != nil {
		record.DisplayName = md.DisplayName()
		record.Extra = md.AsMap()
	}
	if r.CreatedAt != "" {
		record.UpdatedAt = r.CreatedAt
	}

	s.mu.Lock()
	s.ticketsIndex[r.Filename()] = record
	s.ticketsDirty = true
	s.mu.Unlock()

	s.logger.Info(ctx, "stored ticket", zap.String("ticket_id", r.TicketID), zap.String("path", path))
	return path, nil
}

// ResetDirectory removes every file and subdirectory under dir, leaving
// dir itself in place. Used by collectors that re-scrape a source from
// scratch rather than reconciling incrementally (e.g. full git re-clone).
func (s *Service) ResetDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// FlushSources writes the sources catalogue to disk if it has changed
// since the last flush.
func (s *Service) FlushSources() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sourcesDirty {
		return nil
	}
	if err := writeYAMLMap(s.sourcesPath, s.sources); err != nil {
		return err
	}
	s.sourcesDirty = false
	return nil
}

// FlushTickets writes the tickets catalogue to disk if it has changed
// since the last flush.
func (s *Service) FlushTickets() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ticketsDirty {
		return nil
	}
	if err := writeYAMLMap(s.ticketsIndexPath, s.ticketsIndex); err != nil {
		return err
	}
	s.ticketsDirty = false
	return nil
}

// FlushIndex atomically rewrites the catalog's index.yaml, mirroring
// FlushSources/FlushTickets for the unified resource index that backs
// vector store reconciliation.
func (s *Service) FlushIndex() error {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.Save()
}

// FlushAll flushes the sources catalogue, the tickets catalogue, and the
// unified index.
func (s *Service) FlushAll() error {
	if err := s.FlushSources(); err != nil {
		return err
	}
	if err := s.FlushTickets(); err != nil {
		return err
	}
	return s.FlushIndex()
}

// DeleteResource removes hash's file, sidecar, and catalog index entry.
// Deleting a hash absent from the catalog (or when no catalog was
// configured) is a no-op success, matching the idempotent delete the
// lifecycle contract requires. When flush is true the index is
// rewritten to disk immediately; otherwise the removal only applies to
// the in-memory index and a later FlushIndex/FlushAll call (or a
// subsequent Write) is responsible for persisting it. The vectorstore
// entry for hash is not touched here: it is dropped on the next
// VectorStoreManager.UpdateVectorstore reconciliation, once it observes
// hash missing from the catalog.
func (s *Service) DeleteResource(hash string, flush bool) error {
	if s.catalog == nil {
		return nil
	}
	path, ok := s.catalog.Get(hash)
	if !ok {
		return nil
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.dataPath, resolved)
	}
	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", resolved, err)
	}
	if err := os.Remove(resolved + ".meta.yaml"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting sidecar for %s: %w", resolved, err)
	}

	s.catalog.Delete(hash)
	if flush {
		return s.catalog.Save()
	}
	return nil
}

// DeleteByMetadataFilter deletes every catalogued resource whose sidecar
// metadata has key set to exactly value, flushing the index once
// afterwards rather than once per match.
func (s *Service) DeleteByMetadataFilter(key, value string) error {
	if s.catalog == nil {
		return nil
	}
	matches := s.catalog.MetadataByFilter(key, value)
	for _, m := range matches {
		if err := s.DeleteResource(m.Hash, false); err != nil {
			return err
		}
	}
	if len(matches) == 0 {
		return nil
	}
	return s.catalog.Save()
}

func loadYAMLMap[V any](path string, logger *logging.Logger) (map[string]V, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]V{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var out map[string]V
	if err := yaml.Unmarshal(data, &out); err != nil {
		logger.Warn(context.Background(), "failed to parse catalogue, starting empty", zap.String("path", path), zap.Error(err))
		return map[string]V{}, nil
	}
	if out == nil {
		out = map[string]V{}
	}
	return out, nil
}

func writeYAMLMap[V any](path string, data map[string]V) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
