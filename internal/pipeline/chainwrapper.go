package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/tokenlimit"
)

// ChainFunc invokes the underlying chain (a prompt-filled call to an
// LLM, or any other transformation) once its input variables have been
// assembled and pruned to budget.
type ChainFunc func(ctx context.Context, vars map[string]string) (string, error)

// ChainWrapper harmonizes a chain with a2rchi's prompt and token-budget
// conventions: it checks the prompt declares every RequiredInputVariables
// entry, prunes inputs to the model's effective token budget before
// every call, fills any variable the prompt expects but the caller
// didn't supply with an empty string, and rejects a call outright (with
// a fixed warning, no LLM call) when an unprunable variable alone
// exceeds the budget.
type ChainWrapper struct {
	Chain  ChainFunc
	Model  llm.Model
	Prompt *prompt.ValidatedPromptTemplate
	Limits *tokenlimit.Limiter

	RequiredInputVariables   []string
	UnprunableInputVariables []string

	logger *logging.Logger
}

// InputSizeWarning is returned as the answer, without invoking the
// chain, when an unprunable variable alone is too large for the model.
const InputSizeWarning = "WARNING: your last message is too large for the model A2rchi is running on. Please reduce the size of your message, and try again. The variable %s was found to be too large."

// NewChainWrapper builds a ChainWrapper. maxTokens is the model's total
// token budget; reservedTokens is withheld on top of that; the prompt's
// own token cost (rendered with every variable blank) is computed and
// withheld automatically.
func NewChainWrapper(
	chain ChainFunc,
	model llm.Model,
	tmpl *prompt.ValidatedPromptTemplate,
	requiredInputVariables, unprunableInputVariables []string,
	maxTokens, reservedTokens int,
	logger *logging.Logger,
) (*ChainWrapper, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	for _, v := range requiredInputVariables {
		if !containsString(tmpl.InputVariables, v) {
			return nil, fmt.Errorf("pipeline: chain requires input variable %q in the prompt, but could not find it", v)
		}
	}

	blank := make(map[string]string, len(tmpl.InputVariables))
	for _, v := range tmpl.InputVariables {
		blank[v] = ""
	}
	renderedBlank, err := tmpl.Format(blank)
	if err != nil {
		return nil, err
	}
	promptTokens := model.GetNumTokens(renderedBlank)

	limiter := tokenlimit.New(model, maxTokens, reservedTokens, promptTokens, unprunableInputVariables, logger)

	return &ChainWrapper{
		Chain:                    chain,
		Model:                    model,
		Prompt:                   tmpl,
		Limits:                   limiter,
		RequiredInputVariables:   requiredInputVariables,
		UnprunableInputVariables: unprunableInputVariables,
		logger:                   logger,
	}, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Invoke prunes in to budget, fills any prompt variable missing from
// the result with "", and calls Chain. It returns the chain's answer
// plus every variable actually fed to it.
func (w *ChainWrapper) Invoke(ctx context.Context, in tokenlimit.Input) (answer string, vars map[string]string, err error) {
	for _, v := range w.UnprunableInputVariables {
		text := in.Question
		if v != "question" {
			text = in.Extras[v]
		}
		if !w.Limits.CheckInputSize(text) {
			return fmt.Sprintf(InputSizeWarning, v), nil, nil
		}
	}

	pruned := w.Limits.Prune(ctx, in)

	vars = map[string]string{}
	for k, v := range pruned.Extras {
		vars[k] = v
	}
	vars["question"] = pruned.Question
	if _, ok := vars["history"]; !ok {
		vars["history"] = stringifyPrunedHistory(pruned.History)
	}
	for name, docs := range pruned.DocLists {
		if _, ok := vars[name]; !ok {
			vars[name] = stringifyDocs(docs)
		}
	}

	for _, v := range w.Prompt.InputVariables {
		if _, ok := vars[v]; !ok {
			w.logger.Debug(ctx, "input variable not provided, initializing to empty string", zap.String("variable", v))
			vars[v] = ""
		}
	}

	answer, err = w.Chain(ctx, vars)
	if err != nil {
		return "", nil, err
	}
	return answer, vars, nil
}

func stringifyPrunedHistory(history []tokenlimit.Message) string {
	roles := map[string]bool{}
	msgs := make([]prompt.Message, len(history))
	for i, m := range history {
		msgs[i] = prompt.Message{Role: m.Role, Content: m.Content}
		roles[m.Role] = true
	}
	s, _ := prompt.StringifyHistory(msgs, roles)
	return s
}

func stringifyDocs(docs []tokenlimit.Document) string {
	var out string
	for _, d := range docs {
		out += d.Content + "\n\n"
	}
	return out
}
