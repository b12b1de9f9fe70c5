package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/retriever"
)

// scriptedModel returns its canned Responses in order, one per Invoke
// call, so a test can drive a BaseReActAgent through an exact sequence
// of Thought/Action/Final Answer turns.
type scriptedModel struct {
	Responses []string
	calls     int
}

func (m *scriptedModel) Invoke(ctx context.Context, text string) (string, error) {
	if m.calls >= len(m.Responses) {
		return "Final Answer: out of script", nil
	}
	r := m.Responses[m.calls]
	m.calls++
	return r, nil
}

func (m *scriptedModel) GetNumTokens(text string) int { return len(text) }

func newAgentPrompt(t *testing.T) *prompt.ValidatedPromptTemplate {
	t.Helper()
	tmpl, err := prompt.New("react",
		"Tools:\n{tools}\nNames: {tool_names}\nQuestion: {question}\n{agent_scratchpad}",
		nil)
	require.NoError(t, err)
	return tmpl
}

func TestBaseReActAgentCallsToolThenReturnsFinalAnswer(t *testing.T) {
	model := &scriptedModel{Responses: []string{
		"Thought: I should search.\nAction: echo\nAction Input: hello",
		"Thought: I have it.\nFinal Answer: the answer is hello",
	}}

	echo := &fakeEchoTool{}
	agent, err := NewBaseReActAgent(model, newAgentPrompt(t), nil, []Tool{echo}, 0, nil)
	require.NoError(t, err)

	memory := NewToolMemory()
	answer, steps, err := agent.Run(context.Background(), "say hello", memory)
	require.NoError(t, err)

	assert.Equal(t, "the answer is hello", answer)
	assert.Len(t, steps, 2)
	assert.Equal(t, 1, echo.calls)
	assert.Len(t, memory.All(), 1)
}

func TestBaseReActAgentUnknownToolReportsErrorAndContinues(t *testing.T) {
	model := &scriptedModel{Responses: []string{
		"Action: nonexistent\nAction Input: x",
		"Final Answer: recovered",
	}}

	agent, err := NewBaseReActAgent(model, newAgentPrompt(t), nil, nil, 0, nil)
	require.NoError(t, err)

	answer, steps, err := agent.Run(context.Background(), "q", NewToolMemory())
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.Contains(t, steps[0], "no such tool")
}

func TestBaseReActAgentExceedsMaxIterations(t *testing.T) {
	model := &scriptedModel{Responses: []string{
		"Action: echo\nAction Input: a",
		"Action: echo\nAction Input: b",
	}}
	echo := &fakeEchoTool{}

	agent, err := NewBaseReActAgent(model, newAgentPrompt(t), nil, []Tool{echo}, 2, nil)
	require.NoError(t, err)

	_, _, err = agent.Run(context.Background(), "q", NewToolMemory())
	require.Error(t, err)
}

func TestNewBaseReActAgentRejectsPromptMissingVariables(t *testing.T) {
	tmpl, err := prompt.New("bad", "Question: {question}", nil)
	require.NoError(t, err)

	_, err = NewBaseReActAgent(&scriptedModel{}, tmpl, nil, nil, 0, nil)
	require.Error(t, err)
}

type fakeEchoTool struct{ calls int }

func (t *fakeEchoTool) Name() string        { return "echo" }
func (t *fakeEchoTool) Description() string { return "echoes its input" }
func (t *fakeEchoTool) Call(ctx context.Context, input string) (ToolResult, error) {
	t.calls++
	text := "echoed: " + input
	return ToolResult{Text: text, Documents: []retriever.ScoredDocument{{Document: retriever.Document{Content: text}}}}, nil
}

func TestRetrieverToolWithoutRetrieverReportsUnavailable(t *testing.T) {
	tool := &RetrieverTool{}
	result, err := tool.Call(context.Background(), "q")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "no retriever")
	assert.Empty(t, result.Documents)
}

func TestCatalogFileSearchToolFindsSnippet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/doc.txt", []byte("the quick brown fox jumps over the lazy dog"), 0o644))
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	cat.Set("deadbeefcafe", "doc.txt")
	require.NoError(t, cat.Save())

	tool := &CatalogFileSearchTool{Catalog: cat}
	result, err := tool.Call(context.Background(), "brown")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "deadbeefcafe")
	assert.Contains(t, result.Text, "brown")
	assert.Len(t, result.Documents, 1)
}

func TestCatalogFileSearchToolRejectsInvalidPattern(t *testing.T) {
	cat, err := catalog.Load(t.TempDir(), nil)
	require.NoError(t, err)
	tool := &CatalogFileSearchTool{Catalog: cat}
	_, err = tool.Call(context.Background(), "(unterminated")
	require.Error(t, err)
}

func TestCatalogMetadataSearchToolMatchesSubstring(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/doc.txt", []byte("body"), 0o644))
	require.NoError(t, os.WriteFile(dir+"/doc.txt.meta.yaml", []byte("source_type: jira_ticket\n"), 0o644))
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	cat.Set("abc123", "doc.txt")
	require.NoError(t, cat.Save())

	tool := &CatalogMetadataSearchTool{Catalog: cat}
	result, err := tool.Call(context.Background(), "source_type=jira")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "abc123")
	assert.Len(t, result.Documents, 1)
}

func TestCatalogMetadataSearchToolRejectsMalformedInput(t *testing.T) {
	cat, err := catalog.Load(t.TempDir(), nil)
	require.NoError(t, err)
	tool := &CatalogMetadataSearchTool{Catalog: cat}
	_, err = tool.Call(context.Background(), "no-equals-sign")
	require.Error(t, err)
}

func TestCMSCompOpsAgentInvokeUsesCatalogTools(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/doc.txt", []byte("the runbook says restart the squid proxy"), 0o644))
	cat, err := catalog.Load(dir, nil)
	require.NoError(t, err)
	cat.Set("feedface0001", "doc.txt")
	require.NoError(t, cat.Save())

	model := &scriptedModel{Responses: []string{
		"Thought: let me check the runbooks.\nAction: catalog_file_search\nAction Input: runbook",
		"Thought: found it.\nFinal Answer: restart the squid proxy",
	}}

	agent, err := NewCMSCompOpsAgent(model, newAgentPrompt(t), nil, cat, HybridRetrieverConfig{K: 2, BM25Weight: 0.5, SemanticWeight: 0.5, BM25K1: 1.2, BM25B: 0.75}, 0, nil)
	require.NoError(t, err)

	out, err := agent.Invoke(context.Background(), Input{
		History: []prompt.Message{{Role: "user", Content: "how do I fix the squid proxy?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "restart the squid proxy", out.Answer)
	assert.NotEmpty(t, out.SourceDocuments)
	assert.Equal(t, "how do I fix the squid proxy?", out.Metadata["question"])
}
