package vectorcollection

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemCollection adapts a chromem-go collection (an embedded, pure-Go
// vector database) to the Collection contract. chromem-go's own API has
// no "list/get by filter" primitive, only Query (similarity search) and
// Delete(where); ChromemCollection keeps a small parallel in-memory index
// of entries so Get is exact and doesn't require a similarity search.
// Count asks chromem-go directly. The index holds only entries added
// through this value, so Get on a freshly reopened persisted collection
// returns nothing until entries are added again.
type ChromemCollection struct {
	collection *chromem.Collection
	embedder   Embedder

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewChromemCollection creates (or opens) a named collection in db, using
// embedder both to embed documents added without a precomputed vector and
// to embed queries for similarity search. metric only affects newly
// created collections; chromem-go itself always uses cosine distance
// internally, so non-cosine metrics are accepted for interface
// compatibility but recorded as collection metadata rather than changing
// chromem-go's search behaviour.
func NewChromemCollection(db *chromem.DB, name string, metric DistanceMetric, embedder Embedder) (*ChromemCollection, error) {
	if embedder == nil {
		return nil, fmt.Errorf("vectorcollection: embedder is required")
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}

	collection, err := db.GetOrCreateCollection(name, map[string]string{"distance_metric": string(metric)}, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	c := &ChromemCollection{
		collection: collection,
		embedder:   embedder,
		entries:    map[string]Entry{},
	}
	return c, nil
}

// Add embeds any entries missing a precomputed embedding in one batch call,
// then upserts everything into the chromem collection.
func (c *ChromemCollection) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyEntries
	}

	toEmbed := make([]string, 0, len(entries))
	toEmbedIdx := make([]int, 0, len(entries))
	for i, e := range entries {
		if e.Embedding == nil {
			toEmbed = append(toEmbed, e.Content)
			toEmbedIdx = append(toEmbedIdx, i)
		}
	}
	if len(toEmbed) > 0 {
		embeddings, err := c.embedder.EmbedDocuments(ctx, toEmbed)
		if err != nil {
			return fmt.Errorf("embedding documents: %w", err)
		}
		if len(embeddings) != len(toEmbed) {
			return fmt.Errorf("embedder returned %d vectors for %d documents", len(embeddings), len(toEmbed))
		}
		for j, idx := range toEmbedIdx {
			entries[idx].Embedding = embeddings[j]
		}
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Embedding: e.Embedding,
		}
	}

	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	c.mu.Lock()
	for _, e := range entries {
		c.entries[e.ID] = e
	}
	c.mu.Unlock()
	return nil
}

// Get returns every entry whose metadata matches where exactly.
func (c *ChromemCollection) Get(ctx context.Context, where map[string]string) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if matches(e.Metadata, where) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Delete removes every entry (from both chromem and the parallel index)
// whose metadata matches where exactly.
func (c *ChromemCollection) Delete(ctx context.Context, where map[string]string) error {
	if err := c.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	c.mu.Lock()
	for id, e := range c.entries {
		if matches(e.Metadata, where) {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()
	return nil
}

// Count returns the number of entries currently stored.
func (c *ChromemCollection) Count(ctx context.Context) (int, error) {
	return c.collection.Count(), nil
}

// SimilaritySearchWithScore embeds query (via the collection's embedder)
// and returns the k nearest documents with their chromem similarity
// scores, best match first.
func (c *ChromemCollection) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredEntry, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	n := c.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	results, err := c.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]ScoredEntry, len(results))
	for i, r := range results {
		out[i] = ScoredEntry{
			Entry: Entry{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Score: r.Similarity,
		}
	}
	return out, nil
}

func matches(metadata, where map[string]string) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
