package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/retriever"
)

// ToolResult is what a Tool call contributes to the agent loop: the
// text placed into the transcript as an Observation, plus whichever
// documents the call surfaced, for the caller to fold into per-run
// ToolMemory.
type ToolResult struct {
	Text      string
	Documents []retriever.ScoredDocument
}

// Tool is something a ReAct agent can invoke by name during its
// reasoning loop.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (ToolResult, error)
}

// ToolMemory accumulates every document a tool call surfaced during one
// agent Invoke, keyed by the tool that produced it, for downstream
// auditing (source_documents on the returned Output). A fresh ToolMemory
// is built per Invoke call; it is never shared across runs, so tools
// themselves stay stateless and safe to reuse across concurrent
// invocations of the same agent.
type ToolMemory struct {
	order     []string
	documents map[string][]retriever.ScoredDocument
}

// NewToolMemory builds an empty ToolMemory.
func NewToolMemory() *ToolMemory {
	return &ToolMemory{documents: map[string][]retriever.ScoredDocument{}}
}

// Record appends docs under tool's name, in call order.
func (m *ToolMemory) Record(tool string, docs []retriever.ScoredDocument) {
	if len(docs) == 0 {
		return
	}
	if _, ok := m.documents[tool]; !ok {
		m.order = append(m.order, tool)
	}
	m.documents[tool] = append(m.documents[tool], docs...)
}

// All returns every recorded document, tool-call order preserved.
func (m *ToolMemory) All() []retriever.ScoredDocument {
	var out []retriever.ScoredDocument
	for _, tool := range m.order {
		out = append(out, m.documents[tool]...)
	}
	return out
}

// RetrieverTool adapts any Retriever to a Tool that returns a rendered
// passage list, mirroring how a pipeline's chat chain stuffs retrieved
// documents into its prompt.
type RetrieverTool struct {
	Retriever retriever.Retriever
}

func (t *RetrieverTool) Name() string { return "retriever" }

func (t *RetrieverTool) Description() string {
	return "Searches indexed documents for passages relevant to the input query and returns the best matches as a numbered passage list."
}

func (t *RetrieverTool) Call(ctx context.Context, input string) (ToolResult, error) {
	if t.Retriever == nil {
		return ToolResult{Text: "no retriever is currently available"}, nil
	}
	docs, err := t.Retriever.GetRelevantDocuments(ctx, input)
	if err != nil {
		return ToolResult{}, err
	}
	if len(docs) == 0 {
		return ToolResult{Text: "no relevant passages found"}, nil
	}

	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Content)
	}
	return ToolResult{Text: b.String(), Documents: docs}, nil
}

// defaultSnippetWindow is how many characters of context CatalogFileSearchTool
// includes on either side of a match when neither is enough.
const defaultSnippetWindow = 80

// CatalogFileSearchTool searches the raw contents of every catalogued
// file for a regular expression and returns matching snippets with
// surrounding context, one per hit.
type CatalogFileSearchTool struct {
	Catalog       *catalog.Service
	SnippetWindow int // characters of context per side; defaultSnippetWindow when <= 0
}

func (t *CatalogFileSearchTool) Name() string { return "catalog_file_search" }

func (t *CatalogFileSearchTool) Description() string {
	return "Searches the raw contents of every catalogued file for a regular expression and returns matching snippets with surrounding context."
}

func (t *CatalogFileSearchTool) Call(ctx context.Context, input string) (ToolResult, error) {
	if t.Catalog == nil {
		return ToolResult{Text: "no catalog is currently available"}, nil
	}
	re, err := regexp.Compile(input)
	if err != nil {
		return ToolResult{}, fmt.Errorf("invalid search pattern %q: %w", input, err)
	}
	window := t.SnippetWindow
	if window <= 0 {
		window = defaultSnippetWindow
	}

	var b strings.Builder
	var hits []retriever.ScoredDocument
	for _, entry := range t.Catalog.IterFiles() {
		doc, ok, err := t.Catalog.DocumentForHash(ctx, entry.Hash)
		if err != nil || !ok {
			continue
		}
		for _, loc := range re.FindAllStringIndex(doc.Content, -1) {
			start, end := loc[0]-window, loc[1]+window
			if start < 0 {
				start = 0
			}
			if end > len(doc.Content) {
				end = len(doc.Content)
			}
			snippet := doc.Content[start:end]
			fmt.Fprintf(&b, "[%s] ...%s...\n", entry.Hash, snippet)
			hits = append(hits, retriever.ScoredDocument{
				Document: retriever.Document{Content: snippet, Metadata: doc.Metadata},
				Score:    -1,
			})
		}
	}
	if len(hits) == 0 {
		return ToolResult{Text: "no matches found"}, nil
	}
	return ToolResult{Text: b.String(), Documents: hits}, nil
}

// CatalogMetadataSearchTool searches catalogued metadata for a
// "key=substring" match and returns the matching hashes with their full
// metadata. Unlike catalog.Service.MetadataByFilter (exact match, used
// by persistence.Service.DeleteByMetadataFilter), this is a substring
// search, since it's meant for a model to explore metadata with rather
// than delete by it precisely.
type CatalogMetadataSearchTool struct {
	Catalog *catalog.Service
}

func (t *CatalogMetadataSearchTool) Name() string { return "catalog_metadata_search" }

func (t *CatalogMetadataSearchTool) Description() string {
	return `Searches catalogued file metadata for a "key=substring" match and returns the matching hashes with their full metadata.`
}

func (t *CatalogMetadataSearchTool) Call(ctx context.Context, input string) (ToolResult, error) {
	if t.Catalog == nil {
		return ToolResult{Text: "no catalog is currently available"}, nil
	}
	key, substr, ok := strings.Cut(input, "=")
	if !ok {
		return ToolResult{}, fmt.Errorf(`expected input in the form "key=substring", got %q`, input)
	}
	key, substr = strings.TrimSpace(key), strings.TrimSpace(substr)

	var b strings.Builder
	var hits []retriever.ScoredDocument
	for _, entry := range t.Catalog.IterFiles() {
		md, ok := t.Catalog.MetadataForHash(entry.Hash)
		if !ok {
			continue
		}
		v, present := md[key]
		if !present || !strings.Contains(v, substr) {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s=%s\n", entry.Hash, key, v)
		hits = append(hits, retriever.ScoredDocument{
			Document: retriever.Document{Content: fmt.Sprintf("%v", md), Metadata: md},
			Score:    -1,
		})
	}
	if len(hits) == 0 {
		return ToolResult{Text: "no matches found"}, nil
	}
	return ToolResult{Text: b.String(), Documents: hits}, nil
}
