// Package vectorcollection defines the contract a2rchi's retrievers and
// VectorStoreManager use to talk to a vector database, independent of
// which embedded or external store backs it: get matching documents, add
// documents, delete by metadata filter, count, and run a similarity
// search that returns scores alongside the matching documents.
package vectorcollection

import (
	"context"
	"errors"

	"github.com/a2rchi/a2rchi/internal/embeddings"
)

// DistanceMetric is the similarity metric a collection is created with;
// it cannot be changed after creation.
type DistanceMetric string

const (
	DistanceL2     DistanceMetric = "l2"
	DistanceCosine DistanceMetric = "cosine"
	DistanceIP     DistanceMetric = "ip"
)

// Entry is one document stored in a collection.
type Entry struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32 // optional; computed from Content via the collection's embedder when nil
}

// ScoredEntry is an Entry returned from a similarity search, with its
// distance-derived score. Score is metric-dependent: higher is more
// similar for cosine/ip, lower is more similar for l2 -- callers that need
// a uniform "higher is better" ordering should consult the collection's
// DistanceMetric.
type ScoredEntry struct {
	Entry
	Score float32
}

// Embedder is an alias for embeddings.Embedder, kept so callers that only
// ever touch collections don't need a second import.
type Embedder = embeddings.Embedder

// Collection is the vector-database contract realised by ChromemCollection
// (chromem-go, embedded) and MemoryCollection (brute-force, for tests).
type Collection interface {
	// Add embeds (if Entry.Embedding is nil) and upserts entries.
	Add(ctx context.Context, entries []Entry) error

	// Get returns every entry whose metadata matches where exactly
	// (AND across keys). An empty where returns every entry.
	Get(ctx context.Context, where map[string]string) ([]Entry, error)

	// Delete removes every entry whose metadata matches where exactly.
	Delete(ctx context.Context, where map[string]string) error

	// Count returns the number of entries currently stored.
	Count(ctx context.Context) (int, error)

	// SimilaritySearchWithScore embeds query and returns the k
	// nearest entries along with their scores, ordered best-first.
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredEntry, error)
}

var (
	// ErrEmptyEntries is returned by Add when called with no entries.
	ErrEmptyEntries = errors.New("vectorcollection: no entries provided")
	// ErrInvalidK is returned by a similarity search with a non-positive k.
	ErrInvalidK = errors.New("vectorcollection: k must be positive")
)
