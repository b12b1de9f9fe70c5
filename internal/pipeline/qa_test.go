package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/a2rchi/a2rchi/internal/embeddings"
	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

func seedQACollection(t *testing.T) vectorcollection.Collection {
	t.Helper()
	coll := vectorcollection.NewMemoryCollection(vectorcollection.DistanceCosine, embeddings.NewDumbEmbedder())
	err := coll.Add(context.Background(), []vectorcollection.Entry{
		{ID: "1", Content: "The capital of France is Paris.", Metadata: map[string]string{"source": "geo"}},
		{ID: "2", Content: "Go channels communicate between goroutines.", Metadata: map[string]string{"source": "lang"}},
	})
	if err != nil {
		t.Fatalf("seeding collection: %v", err)
	}
	return coll
}

func newTestQAPipeline(t *testing.T) *QAPipeline {
	t.Helper()

	condensePrompt, err := prompt.New("condense", "Given this history: {history}\nStandalone question for: {question}", nil)
	if err != nil {
		t.Fatalf("condense prompt: %v", err)
	}
	chatPrompt, err := prompt.New("chat", "Documents: {retriever_output}\nCondensed: {condensed_output}\nQuestion: {question}", nil)
	if err != nil {
		t.Fatalf("chat prompt: %v", err)
	}

	condenseModel, err := llm.NewDumbModel(1000, false)
	if err != nil {
		t.Fatalf("condense model: %v", err)
	}
	chatModel, err := llm.NewDumbModel(1000, false)
	if err != nil {
		t.Fatalf("chat model: %v", err)
	}

	p, err := NewQAPipeline(
		condenseModel, chatModel,
		condensePrompt, chatPrompt,
		nil, nil,
		1000,
		HybridRetrieverConfig{K: 2, BM25Weight: 0.5, SemanticWeight: 0.5, BM25K1: 1.2, BM25B: 0.75},
		map[string]bool{"user": true, "assistant": true},
		nil,
	)
	if err != nil {
		t.Fatalf("NewQAPipeline: %v", err)
	}
	return p
}

func TestQAPipelineInvokeEndToEnd(t *testing.T) {
	p := newTestQAPipeline(t)
	p.UpdateRetriever(seedQACollection(t))

	out, err := p.Invoke(context.Background(), Input{
		History: []prompt.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello, how can I help?"},
			{Role: "user", Content: "What is the capital of France?"},
		},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if out.Answer == "" {
		t.Fatal("expected a non-empty answer")
	}
	if out.Metadata["question"] != "What is the capital of France?" {
		t.Errorf("Metadata[question] = %v, want the final history turn", out.Metadata["question"])
	}
	if _, ok := out.Metadata["condensed_output"]; !ok {
		t.Error("Metadata missing condensed_output")
	}
	scores, ok := out.Metadata["retriever_scores"].([]float32)
	if !ok {
		t.Fatalf("Metadata[retriever_scores] has unexpected type %T", out.Metadata["retriever_scores"])
	}
	if len(scores) != len(out.SourceDocuments) {
		t.Errorf("retriever_scores length %d != SourceDocuments length %d", len(scores), len(out.SourceDocuments))
	}
}

func TestQAPipelineInvokeWithoutRetriever(t *testing.T) {
	p := newTestQAPipeline(t)

	out, err := p.Invoke(context.Background(), Input{
		History: []prompt.Message{{Role: "user", Content: "What is Go?"}},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(out.SourceDocuments) != 0 {
		t.Errorf("expected no source documents before UpdateRetriever, got %d", len(out.SourceDocuments))
	}
}

func TestQAPipelineEmptyHistoryLogsAndContinues(t *testing.T) {
	p := newTestQAPipeline(t)
	out, err := p.Invoke(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Invoke with empty history should not error: %v", err)
	}
	if out.Metadata["question"] != "" {
		t.Errorf("expected empty question, got %q", out.Metadata["question"])
	}
}

func TestToTokenLimitHistoryPreservesOrderAndContent(t *testing.T) {
	history := []prompt.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
	}
	converted := toTokenLimitHistory(history)
	if len(converted) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(converted))
	}
	for i, m := range history {
		if converted[i].Role != m.Role || converted[i].Content != m.Content {
			t.Errorf("message %d: got %+v, want %+v", i, converted[i], m)
		}
	}
}

func TestRenderAndInvokeAppliesFormatter(t *testing.T) {
	tmpl, err := prompt.New("t", "Question: {question}", nil)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	model, err := llm.NewDumbModel(1000, true)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	formatter := prompt.NewPromptFormatter(prompt.StyleBase, false, nil)

	out, err := renderAndInvoke(context.Background(), model, tmpl, formatter, map[string]string{"question": "hello"})
	if err != nil {
		t.Fatalf("renderAndInvoke: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected echoed output to contain %q, got %q", "hello", out)
	}
}
