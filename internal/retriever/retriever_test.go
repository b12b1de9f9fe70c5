package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/embeddings"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

func seedCollection(t *testing.T, docs map[string]string) vectorcollection.Collection {
	t.Helper()
	col := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())
	var entries []vectorcollection.Entry
	for id, content := range docs {
		entries = append(entries, vectorcollection.Entry{ID: id, Content: content})
	}
	require.NoError(t, col.Add(context.Background(), entries))
	return col
}

func TestSemanticRetrieverReturnsDocuments(t *testing.T) {
	col := seedCollection(t, map[string]string{
		"a": "a2rchi answers questions about CMS software",
		"b": "the weather today is sunny",
	})

	r := NewSemanticRetriever(col, 2, "", "", nil)
	docs, err := r.GetRelevantDocuments(context.Background(), "a2rchi questions")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSemanticRetrieverKeepsInstructionsForInstructionAwareModel(t *testing.T) {
	col := seedCollection(t, map[string]string{"a": "some content"})
	r := NewSemanticRetriever(col, 1, "Qwen/Qwen3-Embedding-0.6B", "find similar docs", nil)

	assert.Equal(t, "find similar docs", r.Instructions)
	_, err := r.GetRelevantDocuments(context.Background(), "query")
	require.NoError(t, err)
}

func TestBM25RetrieverScoresRareTermsHigher(t *testing.T) {
	col := seedCollection(t, map[string]string{
		"a": "a2rchi is a retrieval augmented question answering platform",
		"b": "the platform is a retrieval augmented system",
		"c": "unrelated document about gardening and plants",
	})

	bm25, err := NewBM25LexicalRetriever(context.Background(), col, 2, 0.5, 0.75, nil)
	require.NoError(t, err)
	require.True(t, bm25.Ready())

	docs, err := bm25.GetRelevantDocuments(context.Background(), "a2rchi")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Contains(t, docs[0].Content, "a2rchi")
}

func TestBM25RetrieverHandlesEmptyCollection(t *testing.T) {
	col := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())

	bm25, err := NewBM25LexicalRetriever(context.Background(), col, 3, 0.5, 0.75, nil)
	require.NoError(t, err)
	assert.False(t, bm25.Ready())

	docs, err := bm25.GetRelevantDocuments(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHybridRetrieverReturnsPlaceholderScore(t *testing.T) {
	col := seedCollection(t, map[string]string{
		"a": "a2rchi is a retrieval augmented question answering platform",
		"b": "the platform is a retrieval augmented system",
	})

	hybrid, err := NewHybridRetriever(context.Background(), col, 2, 0.6, 0.4, 0.5, 0.75, nil)
	require.NoError(t, err)

	docs, err := hybrid.GetRelevantDocuments(context.Background(), "retrieval augmented platform")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for _, d := range docs {
		assert.Equal(t, float32(-1.0), d.Score)
	}
}

func TestHybridRetrieverFallsBackToSemanticWhenBM25Empty(t *testing.T) {
	col := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())

	// The BM25 index is built from the collection's contents at
	// construction, so building the retriever while the collection is
	// still empty leaves the BM25 side empty.
	hybrid, err := NewHybridRetriever(context.Background(), col, 1, 0.6, 0.4, 0.5, 0.75, nil)
	require.NoError(t, err)
	assert.False(t, hybrid.BM25.Ready())
	require.NoError(t, col.Add(context.Background(), []vectorcollection.Entry{{ID: "a", Content: "some content"}}))

	docs, err := hybrid.GetRelevantDocuments(context.Background(), "content")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.NotEqual(t, float32(-1.0), docs[0].Score)
}

func TestGradingRetrieverReturnsDocuments(t *testing.T) {
	col := seedCollection(t, map[string]string{"a": "grading content", "b": "other content"})
	r := NewGradingRetriever(col, 1, nil)

	docs, err := r.GetRelevantDocuments(context.Background(), "grading")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
