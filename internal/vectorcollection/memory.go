package vectorcollection

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryCollection is a brute-force, in-process Collection. It backs unit
// tests and any deployment that runs without chromem-go's on-disk
// persistence.
type MemoryCollection struct {
	embedder Embedder
	metric   DistanceMetric

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCollection builds an empty MemoryCollection using metric for
// scoring and embedder to embed documents/queries lacking a precomputed
// vector.
func NewMemoryCollection(metric DistanceMetric, embedder Embedder) *MemoryCollection {
	return &MemoryCollection{
		embedder: embedder,
		metric:   metric,
		entries:  map[string]Entry{},
	}
}

// Add embeds any entries missing a precomputed embedding, then upserts them.
func (c *MemoryCollection) Add(ctx context.Context, entries []Entry) error {
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
			return err
		}
		for j, idx := range toEmbedIdx {
			entries[idx].Embedding = embeddings[j]
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[e.ID] = e
	}
	return nil
}

// Get returns every entry whose metadata matches where exactly.
func (c *MemoryCollection) Get(ctx context.Context, where map[string]string) ([]Entry, error) {
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

// Delete removes every entry whose metadata matches where exactly.
func (c *MemoryCollection) Delete(ctx context.Context, where map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if matches(e.Metadata, where) {
			delete(c.entries, id)
		}
	}
	return nil
}

// Count returns the number of entries currently stored.
func (c *MemoryCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// SimilaritySearchWithScore embeds query and scores every stored entry
// against it, returning the k best matches.
func (c *MemoryCollection) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredEntry, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	queryEmbedding, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	scored := make([]ScoredEntry, 0, len(c.entries))
	for _, e := range c.entries {
		scored = append(scored, ScoredEntry{Entry: e, Score: c.score(queryEmbedding, e.Embedding)})
	}
	c.mu.RUnlock()

	betterFirst := c.metric != DistanceL2
	sort.Slice(scored, func(i, j int) bool {
		if betterFirst {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Score < scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (c *MemoryCollection) score(a, b []float32) float32 {
	switch c.metric {
	case DistanceIP:
		return dot(a, b)
	case DistanceL2:
		return l2(a, b)
	default: // cosine
		return cosine(a, b)
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if i >= len(b) {
			break
		}
		sum += a[i] * b[i]
	}
	return sum
}

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		if i >= len(b) {
			break
		}
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func cosine(a, b []float32) float32 {
	num := dot(a, b)
	var na, nb float64
	for _, v := range a {
		na += float64(v) * float64(v)
	}
	for _, v := range b {
		nb += float64(v) * float64(v)
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return float32(float64(num) / denom)
}
