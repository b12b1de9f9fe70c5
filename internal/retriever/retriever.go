// Package retriever implements the document retrievers a2rchi's
// pipelines query before calling a model: a semantic retriever over a
// vector collection, a lexical BM25 retriever, a weighted ensemble of
// the two, and a bare-similarity retriever used by the grading
// pipeline. A fresh retriever is built per pipeline invocation; none of
// them mutate the collection they read from.
package retriever

import (
	"context"

	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// Document is the minimal retrieved-chunk shape every retriever returns.
type Document struct {
	Content  string
	Metadata map[string]string
}

// ScoredDocument pairs a Document with its retrieval score. The scoring
// convention is retriever-specific: SemanticRetriever and GradingRetriever
// return the backing collection's own score (which direction is more
// similar depends on the distance metric, see
// vectorcollection.ScoredEntry); BM25LexicalRetriever returns raw BM25
// scores (higher is more relevant); HybridRetriever returns the
// placeholder -1.0 for every result.
type ScoredDocument struct {
	Document
	Score float32
}

// Retriever returns an ordered, best-first list of documents relevant to
// query.
type Retriever interface {
	GetRelevantDocuments(ctx context.Context, query string) ([]ScoredDocument, error)
}

func entryToDocument(e vectorcollection.Entry) Document {
	return Document{Content: e.Content, Metadata: e.Metadata}
}
