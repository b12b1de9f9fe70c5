package tokenlimit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/llm"
)

func TestPruneStaysWithinBudget(t *testing.T) {
	model, err := llm.NewDumbModel(4000, true)
	require.NoError(t, err)

	limiter := New(model, 200, 0, 0, nil, nil)

	var history []Message
	for i := 0; i < 20; i++ {
		history = append(history, Message{Role: "user", Content: strings.Repeat("word ", 20)})
	}
	docs := make([]Document, 0, 10)
	for i := 0; i < 10; i++ {
		docs = append(docs, Document{Content: strings.Repeat("doc content ", 20)})
	}

	out := limiter.Prune(context.Background(), Input{
		Question: "what is a2rchi?",
		History:  history,
		DocLists: map[string][]Document{"context_docs": docs},
	})

	total := model.GetNumTokens(out.Question)
	for _, m := range out.History {
		total += model.GetNumTokens(m.Content)
	}
	for _, d := range out.DocLists["context_docs"] {
		total += model.GetNumTokens(d.Content)
	}
	assert.LessOrEqual(t, total, limiter.EffectiveMaxTokens)
}

func TestPruneNeverDropsQuestionOrUnprunable(t *testing.T) {
	model, err := llm.NewDumbModel(4000, true)
	require.NoError(t, err)

	limiter := New(model, 50, 0, 0, []string{"must_keep"}, nil)
	limiter.MinHistoryMessages = 0
	limiter.MinDocs = 0

	out := limiter.Prune(context.Background(), Input{
		Question: "short question",
		History:  []Message{{Role: "user", Content: strings.Repeat("x ", 500)}},
		Extras:   map[string]string{"must_keep": strings.Repeat("y ", 500), "droppable": strings.Repeat("z ", 500)},
	})

	assert.Equal(t, "short question", out.Question)
	assert.Contains(t, out.Extras, "must_keep")
}

func TestCheckInputSizeRejectsOversizedMessage(t *testing.T) {
	model, err := llm.NewDumbModel(4000, true)
	require.NoError(t, err)

	limiter := New(model, 20, 0, 0, nil, nil)
	assert.False(t, limiter.CheckInputSize(strings.Repeat("word ", 1000)))
	assert.True(t, limiter.CheckInputSize("hi"))
}
