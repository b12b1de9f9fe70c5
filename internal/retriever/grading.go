package retriever

import (
	"context"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// GradingRetriever is a bare similarity-search wrapper used by the
// grading pipeline, with no instruction-query or score-interpretation
// logic beyond SemanticRetriever's.
type GradingRetriever struct {
	Collection vectorcollection.Collection
	K          int

	logger *logging.Logger
}

// NewGradingRetriever builds a GradingRetriever. K defaults to 3 if
// non-positive.
func NewGradingRetriever(collection vectorcollection.Collection, k int, logger *logging.Logger) *GradingRetriever {
	if k <= 0 {
		k = 3
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &GradingRetriever{Collection: collection, K: k, logger: logger}
}

// GetRelevantDocuments runs a plain similarity search.
func (r *GradingRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]ScoredDocument, error) {
	r.logger.Info(ctx, "retrieving documents for grading", zap.Int("k", r.K))

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
