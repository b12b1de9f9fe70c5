package embeddings

import (
	"context"
	"hash/fnv"
)

// DumbEmbedder is a deterministic, zero-dependency Embedder for tests: it
// hashes text into a small fixed-size vector rather than calling a model.
// It has no notion of semantic similarity beyond "identical text embeds
// identically" -- it exists to exercise Collection implementations, not
// to produce meaningful search rankings.
type DumbEmbedder struct {
	Dimensions int
}

// NewDumbEmbedder returns a DumbEmbedder with a sensible default width.
func NewDumbEmbedder() *DumbEmbedder {
	return &DumbEmbedder{Dimensions: 16}
}

// EmbedDocuments embeds each text independently.
func (e *DumbEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (e *DumbEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *DumbEmbedder) embed(text string) []float32 {
	dims := e.Dimensions
	if dims <= 0 {
		dims = 16
	}
	vec := make([]float32, dims)
	h := fnv.New32a()
	for i := 0; i < dims; i++ {
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		sum := h.Sum32()
		vec[i] = float32(sum%1000) / 1000.0
	}
	return vec
}
