package a2rchi

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/config"
	"github.com/a2rchi/a2rchi/internal/embeddings"
	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/persistence"
	"github.com/a2rchi/a2rchi/internal/pipeline"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/resource"
	"github.com/a2rchi/a2rchi/internal/retriever"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
	"github.com/a2rchi/a2rchi/internal/vstoremgr"
)

func testVectorStoreConfig() config.VectorStoreConfig {
	return config.VectorStoreConfig{
		Provider:        "memory",
		CollectionName:  "test",
		ChunkSize:       4000,
		ChunkOverlap:    0,
		ParallelWorkers: 2,
	}
}

func newQAFacade(t *testing.T) (*Facade, vectorcollection.Collection) {
	t.Helper()

	dataPath := t.TempDir()
	cat, err := catalog.Load(dataPath, nil)
	require.NoError(t, err)

	collection := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())
	connector := vstoremgr.NewConnector(collection, cat, embeddings.NewDumbEmbedder(), testVectorStoreConfig(), nil)

	condensePrompt, err := prompt.New("condense", "History: {history}\nQuestion: {question}", nil)
	require.NoError(t, err)
	chatPrompt, err := prompt.New("chat", "Documents: {retriever_output}\nCondensed: {condensed_output}\nQuestion: {question}", nil)
	require.NoError(t, err)

	condenseModel, err := llm.NewDumbModel(1000, true)
	require.NoError(t, err)
	chatModel, err := llm.NewDumbModel(1000, true)
	require.NoError(t, err)

	qa, err := pipeline.NewQAPipeline(
		condenseModel, chatModel,
		condensePrompt, chatPrompt,
		nil, nil,
		1000,
		pipeline.HybridRetrieverConfig{K: 4, BM25Weight: 0.5, SemanticWeight: 0.5, BM25K1: 1.2, BM25B: 0.75},
		map[string]bool{"user": true, "assistant": true},
		nil,
	)
	require.NoError(t, err)

	facade, err := New(connector, map[string]pipeline.Pipeline{"qa": qa}, "qa", nil)
	require.NoError(t, err)

	return facade, collection
}

// TestQAWithOneSource exercises the output-metadata half of end-to-end
// scenario 1 against an empty catalog: the question reaches QAPipeline
// through the façade and is preserved verbatim in the output metadata.
// Retrieval of a catalogued source is covered by
// TestQAWithOneSourceRetrievesCataloguedFile below.
func TestQAWithOneSource(t *testing.T) {
	facade, _ := newQAFacade(t)
	ctx := context.Background()

	out, err := facade.Invoke(ctx, pipeline.Input{
		History: []prompt.Message{{Role: "user", Content: "What is the capital of France?"}},
	})
	require.NoError(t, err)

	require.Equal(t, "What is the capital of France?", out.Metadata["question"])
}

// TestQAWithOneSourceRetrievesCataloguedFile additionally persists the
// scenario's file through persistence.Service -- the same path the
// local-files collector uses -- so the catalogue entry UpdateVectorstore
// reconciles against is the product of the real persist-then-index
// sequence, not a hand-inserted catalog.Set bypassing it.
func TestQAWithOneSourceRetrievesCataloguedFile(t *testing.T) {
	dataPath := t.TempDir()
	cat, err := catalog.Load(dataPath, nil)
	require.NoError(t, err)

	collection := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())
	connector := vstoremgr.NewConnector(collection, cat, embeddings.NewDumbEmbedder(), testVectorStoreConfig(), nil)

	persistenceSvc, err := persistence.New(dataPath, cat, nil)
	require.NoError(t, err)

	r := &resource.LocalFileResource{SourcePath: dataPath + "/hello.txt", Body: []byte("Paris is the capital of France."), SourceType: "local_files"}
	_, err = persistenceSvc.Write(r, persistenceSvc.WebsitesDir())
	require.NoError(t, err)

	_, ok := cat.Get(r.Hash())
	require.True(t, ok, "expected persistence.Write to register the resource in the catalog")

	ctx := context.Background()
	require.NoError(t, connector.UpdateVectorstore(ctx))

	hybrid, err := retriever.NewHybridRetriever(ctx, collection, 4, 0.5, 0.5, 1.2, 0.75, nil)
	require.NoError(t, err)

	docs, err := hybrid.GetRelevantDocuments(ctx, "What is the capital of France?")
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	found := false
	for _, d := range docs {
		if strings.Contains(d.Content, "Paris") {
			found = true
		}
	}
	require.True(t, found, "expected the catalogued hello.txt content to be retrievable")
}
