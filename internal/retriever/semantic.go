package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// instructionAwareModels is the explicit allow-list of embedding models
// known to understand an "Instruct: ...\nQuery:..." prefix.
var instructionAwareModels = map[string]bool{
	"Qwen/Qwen3-Embedding-0.6B": true,
	"Qwen/Qwen3-Embedding-4B":   true,
	"Qwen/Qwen3-Embedding-8B":   true,
}

// SemanticRetriever queries a vector collection directly via its
// embedding-backed similarity search.
type SemanticRetriever struct {
	Collection    vectorcollection.Collection
	K             int
	EmbeddingName string
	Instructions  string

	logger *logging.Logger
}

// NewSemanticRetriever builds a SemanticRetriever. K defaults to 3 if
// non-positive. Instructions, if non-empty, is prepended to the query
// as "Instruct: {instructions}\nQuery:{query}" only when embeddingName
// is in the instruction-aware allow-list; otherwise it is logged and
// ignored.
func NewSemanticRetriever(collection vectorcollection.Collection, k int, embeddingName, instructions string, logger *logging.Logger) *SemanticRetriever {
	if k <= 0 {
		k = 3
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SemanticRetriever{
		Collection:    collection,
		K:             k,
		EmbeddingName: embeddingName,
		Instructions:  instructions,
		logger:        logger,
	}
}

// GetRelevantDocuments runs the configured similarity search.
func (r *SemanticRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]ScoredDocument, error) {
	r.logger.Info(ctx, "retrieving documents", zap.Int("k", r.K))

	if r.Instructions != "" {
		if instructionAwareModels[r.EmbeddingName] {
			query = makeInstructionQuery(r.Instructions, query)
		} else {
			r.logger.Warn(ctx, "instructions provided but embedding model is not instruction-aware",
				zap.String("embedding_model", r.EmbeddingName))
		}
	}

	results, err := r.Collection.SimilaritySearchWithScore(ctx, query, r.K)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredDocument, len(results))
	for i, res := range results {
		out[i] = ScoredDocument{Document: entryToDocument(res.Entry), Score: res.Score}
	}
	return out, nil
}

func makeInstructionQuery(instructions, query string) string {
	return fmt.Sprintf("Instruct: %s\nQuery:%s", instructions, query)
}
