package retriever

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// HybridRetriever linearly combines a BM25LexicalRetriever and a
// SemanticRetriever. Ranking only (not score calibration) is currently
// supported: every returned document carries the placeholder score
// -1.0, matching the original's "scores are not yet properly
// implemented" caveat. Falls back to semantic-only retrieval when the
// BM25 corpus failed to load or is empty.
type HybridRetriever struct {
	Semantic *SemanticRetriever
	BM25     *BM25LexicalRetriever

	BM25Weight     float64
	SemanticWeight float64
	K              int

	logger *logging.Logger
}

// NewHybridRetriever builds a HybridRetriever over collection. k1/b
// configure the BM25 side; bm25Weight/semanticWeight default to 0.6/0.4.
func NewHybridRetriever(ctx context.Context, collection vectorcollection.Collection, k int, bm25Weight, semanticWeight, k1, b float64, logger *logging.Logger) (*HybridRetriever, error) {
	if k <= 0 {
		k = 3
	}
	if bm25Weight == 0 && semanticWeight == 0 {
		bm25Weight, semanticWeight = 0.6, 0.4
	}
	if logger == nil {
		logger = logging.Nop()
	}

	bm25, err := NewBM25LexicalRetriever(ctx, collection, k, k1, b, logger)
	if err != nil {
		logger.Error(ctx, "failed to initialize BM25 side of hybrid retriever", zap.Error(err))
		bm25 = &BM25LexicalRetriever{}
	}

	return &HybridRetriever{
		Semantic:       NewSemanticRetriever(collection, k, "", "", logger),
		BM25:           bm25,
		BM25Weight:     bm25Weight,
		SemanticWeight: semanticWeight,
		K:              k,
		logger:         logger,
	}, nil
}

// GetRelevantDocuments combines BM25 and semantic rankings by a weighted
// reciprocal-rank fusion, or falls back to semantic-only search when the
// BM25 index is not ready.
func (r *HybridRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]ScoredDocument, error) {
	ctx, span := retrieverTracer.Start(ctx, "HybridRetriever.GetRelevantDocuments")
	defer span.End()
	start := time.Now()

	if !r.BM25.Ready() {
		r.logger.Info(ctx, "no BM25 corpus available, falling back to semantic search only")
		docs, err := r.Semantic.GetRelevantDocuments(ctx, query)
		retrievalDuration.WithLabelValues("semantic_fallback").Observe(time.Since(start).Seconds())
		documentsReturned.WithLabelValues("semantic_fallback").Observe(float64(len(docs)))
		return docs, err
	}

	r.logger.Info(ctx, "using hybrid search (BM25 + semantic)", zap.Int("k", r.K))

	bm25Docs, err := r.BM25.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, err
	}
	semanticDocs, err := r.Semantic.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, err
	}

	fused := r.fuse(bm25Docs, semanticDocs)

	r.logger.Info(ctx, "using placeholder score (-1) for hybrid search results")
	out := make([]ScoredDocument, len(fused))
	for i, d := range fused {
		out[i] = ScoredDocument{Document: d, Score: -1.0}
	}
	retrievalDuration.WithLabelValues("hybrid").Observe(time.Since(start).Seconds())
	documentsReturned.WithLabelValues("hybrid").Observe(float64(len(out)))
	return out, nil
}

// fuse combines two ranked lists by reciprocal rank, weighted by
// BM25Weight/SemanticWeight, and returns the merged top-K documents.
func (r *HybridRetriever) fuse(bm25Docs, semanticDocs []ScoredDocument) []Document {
	const rrfK = 60.0

	type scored struct {
		doc   Document
		score float64
	}

	byContent := map[string]*scored{}
	var order []string

	accumulate := func(docs []ScoredDocument, weight float64) {
		for rank, d := range docs {
			key := d.Content
			if byContent[key] == nil {
				byContent[key] = &scored{doc: d.Document}
				order = append(order, key)
			}
			byContent[key].score += weight / (rrfK + float64(rank+1))
		}
	}

	accumulate(bm25Docs, r.BM25Weight)
	accumulate(semanticDocs, r.SemanticWeight)

	results := make([]scored, 0, len(order))
	for _, key := range order {
		results = append(results, *byContent[key])
	}
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].score > results[j-1].score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}

	k := r.K
	if k > len(results) {
		k = len(results)
	}
	out := make([]Document, k)
	for i := 0; i < k; i++ {
		out[i] = results[i].doc
	}
	return out
}
