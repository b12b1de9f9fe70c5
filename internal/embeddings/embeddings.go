// Package embeddings defines the embedding provider contract used by
// internal/vectorcollection and internal/vstoremgr, plus a registry of
// factories keyed by provider name. a2rchi treats the concrete embedding
// provider as an external collaborator (§1 scope): only a deterministic
// test double, DumbEmbedder, ships a factory.
package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies an embedding provider.
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindHuggingFace Kind = "huggingface"
	KindTEI         Kind = "tei"
	KindDumb        Kind = "dumb"
)

// Embedder turns text into vectors for storage in, or querying of, a
// vector collection.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Factory constructs an Embedder from a provider-specific config map.
type Factory func(cfg map[string]any) (Embedder, error)

var (
	mu       sync.RWMutex
	registry = map[Kind]Factory{}
)

func init() {
	Register(KindDumb, func(cfg map[string]any) (Embedder, error) {
		dims := 16
		if v, ok := cfg["dimensions"].(int); ok && v > 0 {
			dims = v
		}
		return &DumbEmbedder{Dimensions: dims}, nil
	})
}

// Register installs f as the factory for kind, overwriting any previous
// registration. Called from package init for built-ins and by deployments
// that wire in a concrete provider.
func Register(kind Kind, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = f
}

// New constructs an Embedder of the given kind.
func New(kind Kind, cfg map[string]any) (Embedder, error) {
	mu.RLock()
	f, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("embeddings: no factory registered for kind %q", kind)
	}
	return f(cfg)
}
