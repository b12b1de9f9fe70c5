package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/retriever"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// defaultMaxIterations bounds a BaseReActAgent run so a model that never
// emits "Final Answer:" can't loop forever.
const defaultMaxIterations = 6

var (
	finalAnswerPattern = regexp.MustCompile(`(?m)^\s*Final Answer:\s*(.*)$`)
	actionPattern      = regexp.MustCompile(`(?m)^\s*Action:\s*(.+)$`)
	actionInputPattern = regexp.MustCompile(`(?m)^\s*Action Input:\s*(.*)$`)
)

// BaseReActAgent drives a Thought/Action/Action Input/Observation loop
// against a single LLM: it renders the available tools and the
// transcript so far into a scratchpad prompt, asks the model for its
// next step, executes the named tool, appends the Observation, and
// repeats until the model emits a Final Answer or MaxIterations is
// reached.
type BaseReActAgent struct {
	Model     llm.Model
	Prompt    *prompt.ValidatedPromptTemplate // must declare tools, tool_names, question, agent_scratchpad
	Formatter *prompt.PromptFormatter

	Tools         []Tool
	MaxIterations int

	logger *logging.Logger
}

// NewBaseReActAgent builds a BaseReActAgent. tmpl must declare the four
// input variables the loop fills on every iteration.
func NewBaseReActAgent(
	model llm.Model,
	tmpl *prompt.ValidatedPromptTemplate,
	formatter *prompt.PromptFormatter,
	tools []Tool,
	maxIterations int,
	logger *logging.Logger,
) (*BaseReActAgent, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	for _, v := range []string{"tools", "tool_names", "question", "agent_scratchpad"} {
		if !containsString(tmpl.InputVariables, v) {
			return nil, fmt.Errorf("pipeline: agent prompt must declare input variable %q", v)
		}
	}

	return &BaseReActAgent{
		Model:         model,
		Prompt:        tmpl,
		Formatter:     formatter,
		Tools:         tools,
		MaxIterations: maxIterations,
		logger:        logger,
	}, nil
}

func (a *BaseReActAgent) toolByName(name string) Tool {
	for _, t := range a.Tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *BaseReActAgent) renderTools() (list, names string) {
	var lb, nb strings.Builder
	for i, t := range a.Tools {
		fmt.Fprintf(&lb, "%s: %s\n", t.Name(), t.Description())
		if i > 0 {
			nb.WriteString(", ")
		}
		nb.WriteString(t.Name())
	}
	return lb.String(), nb.String()
}

// Run executes the ReAct loop for question. It returns the final answer,
// every Thought/Action/Observation step emitted (for Output.
// IntermediateSteps), and records each tool call's retrieved documents
// into memory, which callers should build fresh per Invoke.
func (a *BaseReActAgent) Run(ctx context.Context, question string, memory *ToolMemory) (string, []string, error) {
	toolList, toolNames := a.renderTools()
	var scratchpad strings.Builder
	var steps []string

	for i := 0; i < a.MaxIterations; i++ {
		rendered, err := a.Prompt.Format(map[string]string{
			"tools":            toolList,
			"tool_names":       toolNames,
			"question":         question,
			"agent_scratchpad": scratchpad.String(),
		})
		if err != nil {
			return "", steps, err
		}
		if a.Formatter != nil {
			result, err := a.Formatter.Format(rendered)
			if err != nil {
				return "", steps, err
			}
			rendered = result.Prompt
		}

		raw, err := a.Model.Invoke(ctx, rendered)
		if err != nil {
			return "", steps, err
		}

		if answer, ok := parseFinalAnswer(raw); ok {
			steps = append(steps, raw)
			return answer, steps, nil
		}

		action, actionInput, ok := parseAction(raw)
		if !ok {
			// The model didn't follow the Thought/Action format; treat its
			// raw output as the answer rather than loop on unparsable text.
			steps = append(steps, raw)
			return raw, steps, nil
		}

		tool := a.toolByName(action)
		var observation string
		if tool == nil {
			observation = fmt.Sprintf("no such tool %q; available tools: %s", action, toolNames)
		} else {
			result, err := tool.Call(ctx, actionInput)
			if err != nil {
				observation = fmt.Sprintf("tool error: %v", err)
			} else {
				observation = result.Text
				if memory != nil {
					memory.Record(tool.Name(), result.Documents)
				}
			}
		}

		step := fmt.Sprintf("%s\nObservation: %s", raw, observation)
		steps = append(steps, step)
		scratchpad.WriteString(step)
		scratchpad.WriteString("\n")
	}

	return "", steps, fmt.Errorf("pipeline: agent exceeded %d iterations without a final answer", a.MaxIterations)
}

func parseFinalAnswer(text string) (string, bool) {
	m := finalAnswerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func parseAction(text string) (action, input string, ok bool) {
	am := actionPattern.FindStringSubmatch(text)
	im := actionInputPattern.FindStringSubmatch(text)
	if am == nil || im == nil {
		return "", "", false
	}
	return strings.TrimSpace(am[1]), strings.TrimSpace(im[1]), true
}

// CMSCompOpsAgent is the concrete ReAct agent a2rchi runs for
// computing-operations questions: a BaseReActAgent wired with a
// retriever tool, a catalog file-search tool, and a catalog
// metadata-search tool. A fresh ToolMemory is built per Invoke call, so
// documents one request's tool calls surface never leak into another's
// source_documents.
type CMSCompOpsAgent struct {
	agent   *BaseReActAgent
	catalog *catalog.Service

	retrieverCfg HybridRetrieverConfig
	retriever    retriever.Retriever

	logger *logging.Logger
}

var _ Pipeline = (*CMSCompOpsAgent)(nil)

// NewCMSCompOpsAgent builds a CMSCompOpsAgent. cat may be nil, in which
// case the catalog tools report themselves unavailable rather than
// erroring.
func NewCMSCompOpsAgent(
	model llm.Model,
	tmpl *prompt.ValidatedPromptTemplate,
	formatter *prompt.PromptFormatter,
	cat *catalog.Service,
	retrieverCfg HybridRetrieverConfig,
	maxIterations int,
	logger *logging.Logger,
) (*CMSCompOpsAgent, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &CMSCompOpsAgent{catalog: cat, retrieverCfg: retrieverCfg, logger: logger}

	base, err := NewBaseReActAgent(model, tmpl, formatter, a.buildTools(), maxIterations, logger)
	if err != nil {
		return nil, err
	}
	a.agent = base
	return a, nil
}

func (a *CMSCompOpsAgent) buildTools() []Tool {
	return []Tool{
		&RetrieverTool{Retriever: a.retriever},
		&CatalogFileSearchTool{Catalog: a.catalog},
		&CatalogMetadataSearchTool{Catalog: a.catalog},
	}
}

// UpdateRetriever rebuilds the agent's HybridRetriever against
// collection and re-wires the retriever tool to it.
func (a *CMSCompOpsAgent) UpdateRetriever(collection vectorcollection.Collection) {
	cfg := a.retrieverCfg
	hybrid, err := retriever.NewHybridRetriever(context.Background(), collection, cfg.K, cfg.BM25Weight, cfg.SemanticWeight, cfg.BM25K1, cfg.BM25B, a.logger)
	if err != nil {
		a.logger.Error(context.Background(), "failed to build hybrid retriever for agent", zap.Error(err))
		return
	}
	a.retriever = hybrid
	a.agent.Tools = a.buildTools()
}

// Invoke runs the ReAct loop over the last message in in.History and
// returns the documents every tool call surfaced as SourceDocuments.
func (a *CMSCompOpsAgent) Invoke(ctx context.Context, in Input) (Output, error) {
	ctx, span := pipelineTracer.Start(ctx, "CMSCompOpsAgent.Invoke")
	defer span.End()

	var question string
	if len(in.History) > 0 {
		question = in.History[len(in.History)-1].Content
	} else {
		a.logger.Error(ctx, "no question found in history")
	}

	memory := NewToolMemory()
	answer, steps, err := a.agent.Run(ctx, question, memory)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Answer:            answer,
		SourceDocuments:   memory.All(),
		IntermediateSteps: steps,
		Metadata: map[string]any{
			"question": question,
		},
	}, nil
}
