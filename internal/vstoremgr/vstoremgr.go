// Package vstoremgr reconciles the on-disk resource catalogue with a
// vector collection: it embeds and indexes newly catalogued files and
// removes entries whose source file has disappeared from the catalogue.
package vstoremgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/config"
	"github.com/a2rchi/a2rchi/internal/embeddings"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// Connector owns one vector collection's reconciliation against a
// catalogue of indexed resources.
type Connector struct {
	Collection vectorcollection.Collection
	Catalog    *catalog.Service
	Embedder   embeddings.Embedder

	cfg    config.VectorStoreConfig
	logger *logging.Logger
}

// NewConnector builds a Connector. collection, cat, and embedder must be
// non-nil; they are constructed and wired once by the top-level process
// and handed down here, never rediscovered.
func NewConnector(collection vectorcollection.Collection, cat *catalog.Service, embedder embeddings.Embedder, cfg config.VectorStoreConfig, logger *logging.Logger) *Connector {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Connector{
		Collection: collection,
		Catalog:    cat,
		Embedder:   embedder,
		cfg:        cfg,
		logger:     logger,
	}
}

// FetchCollection returns the managed collection, logging its current
// size. The collection itself is created (get-or-create semantics) by
// whichever vectorcollection constructor produced it; this just confirms
// it's reachable before reconciliation begins.
func (c *Connector) FetchCollection(ctx context.Context) (vectorcollection.Collection, error) {
	ctx, span := vstoremgrTracer.Start(ctx, "Connector.FetchCollection")
	defer span.End()

	n, err := c.Collection.Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching collection: %w", err)
	}
	span.SetAttributes(attribute.Int("count", n))
	collectionSize.Set(float64(n))
	c.logger.Info(ctx, "fetched collection", zap.Int("count", n))
	return c.Collection, nil
}

// DeleteExistingCollectionIfReset clears every entry in the collection
// when ResetCollection is configured, so the next UpdateVectorstore call
// rebuilds it from scratch instead of diffing against stale state.
func (c *Connector) DeleteExistingCollectionIfReset(ctx context.Context) error {
	if !c.cfg.ResetCollection {
		return nil
	}

	hashes, err := c.vstoreHashes(ctx)
	if err != nil {
		return fmt.Errorf("resetting collection: %w", err)
	}
	for hash := range hashes {
		if err := c.Collection.Delete(ctx, map[string]string{"resource_hash": hash}); err != nil {
			return fmt.Errorf("resetting collection: deleting %s: %w", hash, err)
		}
	}
	c.logger.Info(ctx, "collection reset", zap.Int("removed", len(hashes)))
	return nil
}

// UpdateVectorstore synchronises the collection with the catalogue:
// resources present in the collection but no longer catalogued are
// removed; resources catalogued but not yet embedded are loaded,
// chunked, embedded, and added.
func (c *Connector) UpdateVectorstore(ctx context.Context) (err error) {
	ctx, span := vstoremgrTracer.Start(ctx, "Connector.UpdateVectorstore")
	start := time.Now()
	defer func() {
		updateDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			updatesTotal.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			updatesTotal.WithLabelValues("success").Inc()
		}
		span.End()
	}()

	if _, err = c.FetchCollection(ctx); err != nil {
		return err
	}

	filesInVstore, err := c.vstoreHashes(ctx)
	if err != nil {
		return fmt.Errorf("updating vectorstore: %w", err)
	}
	filesInData := c.filesInData()

	if sameKeys(filesInVstore, filesInData) {
		c.logger.Info(ctx, "vectorstore is up to date")
		return nil
	}

	toRemove := setMinus(keys(filesInVstore), keys(filesInData))
	if len(toRemove) > 0 {
		c.logger.Info(ctx, "removing stale resources", zap.Strings("hashes", toRemove))
		for _, hash := range toRemove {
			if err := c.Collection.Delete(ctx, map[string]string{"resource_hash": hash}); err != nil {
				return fmt.Errorf("removing %s: %w", hash, err)
			}
		}
		resourcesRemoved.Add(float64(len(toRemove)))
	}

	toAdd := setMinus(keys(filesInData), keys(filesInVstore))
	if len(toAdd) > 0 {
		c.logger.Info(ctx, "adding new resources", zap.Int("count", len(toAdd)))
		if err := c.addToVectorstore(ctx, toAdd, filesInData); err != nil {
			return fmt.Errorf("adding resources: %w", err)
		}
		resourcesAdded.Add(float64(len(toAdd)))
	}

	n, _ := c.Collection.Count(ctx)
	span.SetAttributes(attribute.Int("count", n))
	c.logger.Info(ctx, "vectorstore update complete", zap.Int("count", n))
	return nil
}

type processedFile struct {
	filename  string
	chunks    []string
	metadatas []map[string]string
}

// addToVectorstore loads and chunks every hash in toAdd concurrently
// (bounded by ParallelWorkers), then embeds and writes each file's
// chunks serially in sorted-hash order, so results are deterministic
// regardless of how the parallel stage interleaves.
func (c *Connector) addToVectorstore(ctx context.Context, toAdd []string, filesInData map[string]string) error {
	splitter := newSplitter(c.cfg.ChunkSize, c.cfg.ChunkOverlap)

	limit := c.cfg.ParallelWorkers
	if limit <= 0 {
		limit = min(64, runtime.NumCPU()+4)
	}

	var mu sync.Mutex
	processed := make(map[string]*processedFile, len(toAdd))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, hash := range toAdd {
		hash, path := hash, filesInData[hash]
		g.Go(func() error {
			result, err := c.processFile(gctx, hash, path, splitter)
			if err != nil {
				c.logger.Error(ctx, "failed to process file, skipping", zap.String("path", path), zap.Error(err))
				return nil
			}
			if result == nil {
				return nil
			}
			mu.Lock()
			processed[hash] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sortedHashes := make([]string, 0, len(toAdd))
	for _, hash := range toAdd {
		if _, ok := processed[hash]; ok {
			sortedHashes = append(sortedHashes, hash)
		}
	}
	sort.Strings(sortedHashes)

	for _, hash := range sortedHashes {
		p := processed[hash]
		vectors, err := c.Embedder.EmbedDocuments(ctx, p.chunks)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", p.filename, err)
		}
		if len(vectors) != len(p.chunks) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks of %s", len(vectors), len(p.chunks), p.filename)
		}

		entries := make([]vectorcollection.Entry, len(p.chunks))
		for i, chunk := range p.chunks {
			meta := p.metadatas[i]
			meta["filename"] = p.filename
			meta["resource_hash"] = hash
			entries[i] = vectorcollection.Entry{
				ID:        fmt.Sprintf("%s-%06d", hash, i),
				Content:   chunk,
				Metadata:  meta,
				Embedding: vectors[i],
			}
		}
		if err := c.Collection.Add(ctx, entries); err != nil {
			return fmt.Errorf("adding %s: %w", p.filename, err)
		}
	}
	return nil
}

// processFile loads and chunks one file, optionally stemming each
// chunk's text. It returns (nil, nil) for an unsupported extension or a
// file that yields no non-empty chunks.
func (c *Connector) processFile(ctx context.Context, hash, path string, splitter textsplitter.TextSplitter) (*processedFile, error) {
	docs, err := loadChunks(ctx, path, splitter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	chunks := make([]string, 0, len(docs))
	metadatas := make([]map[string]string, 0, len(docs))
	for _, doc := range docs {
		text := doc.PageContent
		if c.cfg.Stemming {
			text = stemText(text)
		}
		if text == "" {
			continue
		}
		chunks = append(chunks, text)
		metadatas = append(metadatas, stringifyMetadata(doc.Metadata))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	return &processedFile{
		filename:  filepath.Base(path),
		chunks:    chunks,
		metadatas: metadatas,
	}, nil
}

// vstoreHashes builds a map of resource_hash -> filename for every entry
// currently stored in the collection, collapsing chunks of the same file
// to a single entry (first filename wins, matching the Python
// setdefault-based original).
func (c *Connector) vstoreHashes(ctx context.Context) (map[string]string, error) {
	entries, err := c.Collection.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing collection: %w", err)
	}

	out := make(map[string]string)
	for _, e := range entries {
		hash := e.Metadata["resource_hash"]
		filename := e.Metadata["filename"]
		if hash == "" || filename == "" {
			continue
		}
		if _, ok := out[hash]; !ok {
			out[hash] = filename
		}
	}
	return out, nil
}

// filesInData resolves the catalogue's hash -> path entries to absolute
// paths, dropping any whose file no longer exists or is a directory --
// e.g. a source that was deleted from disk since it was catalogued.
func (c *Connector) filesInData() map[string]string {
	resolved := c.Catalog.ResolvedPaths()
	out := make(map[string]string, len(resolved))
	for hash, path := range resolved {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		out[hash] = path
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sameKeys(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// setMinus returns the elements of a not present in b, sorted.
func setMinus(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := inB[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// stemText tokenizes text on whitespace and Porter-stems each token,
// matching the original's nltk.word_tokenize + PorterStemmer pass.
func stemText(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = porterStem(f)
	}
	return strings.Join(fields, " ")
}

func stringifyMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

