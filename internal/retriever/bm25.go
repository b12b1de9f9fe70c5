package retriever

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// bm25Document is one corpus entry with its token frequencies precomputed.
type bm25Document struct {
	doc    Document
	tokens []string
	freq   map[string]int
}

// BM25LexicalRetriever is a lightweight BM25 index built once, at
// construction, from every chunk currently in a vector collection.
// There is no dedicated BM25 library anywhere in the corpus, so the
// standard Okapi BM25 scoring formula is implemented directly.
type BM25LexicalRetriever struct {
	K  int
	K1 float64
	B  float64

	docs       []bm25Document
	df         map[string]int // document frequency per term
	avgDocLen  float64
	ready      bool

	logger *logging.Logger
}

// NewBM25LexicalRetriever loads every entry from collection and builds a
// BM25 index. K, k1, b default to 3, 0.5, 0.75 respectively if
// non-positive/zero. If the collection is empty, the retriever is left
// unready and GetRelevantDocuments returns no documents rather than
// erroring, matching the corpus-loading-failure behavior pipelines fall
// back from.
func NewBM25LexicalRetriever(ctx context.Context, collection vectorcollection.Collection, k int, k1, b float64, logger *logging.Logger) (*BM25LexicalRetriever, error) {
	if k <= 0 {
		k = 3
	}
	if k1 <= 0 {
		k1 = 0.5
	}
	if b <= 0 {
		b = 0.75
	}
	if logger == nil {
		logger = logging.Nop()
	}

	r := &BM25LexicalRetriever{K: k, K1: k1, B: b, df: map[string]int{}, logger: logger}

	entries, err := collection.Get(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		logger.Warn(ctx, "no documents found for BM25 corpus; skipping BM25 setup")
		return r, nil
	}

	var totalLen int
	for _, e := range entries {
		tokens := tokenize(e.Content)
		freq := map[string]int{}
		seen := map[string]bool{}
		for _, tok := range tokens {
			freq[tok]++
			if !seen[tok] {
				seen[tok] = true
				r.df[tok]++
			}
		}
		r.docs = append(r.docs, bm25Document{doc: entryToDocument(e), tokens: tokens, freq: freq})
		totalLen += len(tokens)
	}
	r.avgDocLen = float64(totalLen) / float64(len(r.docs))
	r.ready = true

	logger.Debug(ctx, "BM25 retriever created", zap.Int("documents", len(r.docs)))
	return r, nil
}

// Ready reports whether the BM25 index was successfully built.
func (r *BM25LexicalRetriever) Ready() bool {
	return r.ready
}

// GetRelevantDocuments scores every corpus document against query with
// Okapi BM25 and returns the top K, best-first. Returns an empty result
// (no error) if the index is not ready.
func (r *BM25LexicalRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]ScoredDocument, error) {
	if !r.ready {
		r.logger.Warn(ctx, "BM25 retriever not initialised; returning no documents")
		return nil, nil
	}

	queryTokens := tokenize(query)
	n := float64(len(r.docs))

	scores := make([]float64, len(r.docs))
	for i, d := range r.docs {
		docLen := float64(len(d.tokens))
		var score float64
		for _, term := range queryTokens {
			df := r.df[term]
			if df == 0 {
				continue
			}
			idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
			f := float64(d.freq[term])
			score += idf * (f * (r.K1 + 1)) / (f + r.K1*(1-r.B+r.B*docLen/r.avgDocLen))
		}
		scores[i] = score
	}

	idx := make([]int, len(r.docs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	k := r.K
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]ScoredDocument, k)
	for i := 0; i < k; i++ {
		out[i] = ScoredDocument{Document: r.docs[idx[i]].doc, Score: float32(scores[idx[i]])}
	}
	return out, nil
}
