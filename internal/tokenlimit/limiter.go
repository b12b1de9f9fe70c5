// Package tokenlimit prunes a pipeline's prompt inputs down to a model's
// effective token budget, preferring to drop large or old conversation
// history, then trailing retrieved documents, then free-form extra
// inputs -- never the user's question, and never a variable the caller
// has marked unprunable.
package tokenlimit

import (
	"context"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
)

const defaultMaxTokens = 10_000_000_000

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// Document is the minimal shape TokenLimiter needs from a retrieved
// document: its text content, for counting and (when pruned) dropping.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Input is everything a pipeline wants to pass into a prompt template.
// DocLists lets multiple named document sets (e.g. "context_docs",
// "related_docs") be pruned round-robin against each other. Extras holds
// any other string-valued template variables.
type Input struct {
	Question string
	History  []Message
	DocLists map[string][]Document
	Extras   map[string]string
}

// Limiter reduces an Input's total token count below a model's
// effective budget by dropping the lowest-priority content first.
type Limiter struct {
	Model          llm.Model
	MaxTokens      int
	ReservedTokens int
	PromptTokens   int

	MinHistoryMessages int
	MinDocs            int
	LargeMsgFraction   float64 // fraction of the effective budget above which one message is "too large" to keep at all
	Unprunable         map[string]bool

	EffectiveMaxTokens int

	logger *logging.Logger
}

// New builds a Limiter. promptTokens is the token cost of the prompt
// template itself with every input variable blanked out, so it only
// needs computing once per template rather than per request.
func New(model llm.Model, maxTokens, reservedTokens, promptTokens int, unprunable []string, logger *logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Nop()
	}
	unprunableSet := make(map[string]bool, len(unprunable))
	for _, v := range unprunable {
		unprunableSet[v] = true
	}
	unprunableSet["question"] = true

	l := &Limiter{
		Model:               model,
		MaxTokens:           effectiveMax(maxTokens),
		ReservedTokens:      reservedTokens,
		PromptTokens:        promptTokens,
		MinHistoryMessages:  2,
		MinDocs:             0,
		LargeMsgFraction:    0.5,
		Unprunable:          unprunableSet,
		logger:              logger,
	}
	l.EffectiveMaxTokens = l.calculateEffectiveMaxTokens()
	return l
}

func effectiveMax(v int) int {
	if v <= 0 {
		return defaultMaxTokens
	}
	return v
}

func (l *Limiter) calculateEffectiveMaxTokens() int {
	eff := l.MaxTokens - l.ReservedTokens - l.PromptTokens
	if eff <= 0 {
		l.logger.Error(context.Background(), "effective max tokens is at or below zero, falling back to 1000",
			zap.Int("max_tokens", l.MaxTokens), zap.Int("reserved_tokens", l.ReservedTokens), zap.Int("prompt_tokens", l.PromptTokens))
		return 1000
	}
	if eff < 100 {
		l.logger.Warn(context.Background(), "effective max tokens is very low", zap.Int("effective_max_tokens", eff))
	}
	return eff
}

func (l *Limiter) tokenCount(text string) int {
	if text == "" {
		return 0
	}
	n := l.Model.GetNumTokens(text)
	if n < 0 {
		return max(len(text)/4, 1)
	}
	return n
}

// CheckInputSize reports whether text alone fits within the effective
// budget, for rejecting an oversized user message up front.
func (l *Limiter) CheckInputSize(text string) bool {
	return l.tokenCount(text) <= l.EffectiveMaxTokens
}

// Prune reduces in to fit within EffectiveMaxTokens, in priority order:
// drop oversized history messages, then oldest history messages, then
// trailing documents (round-robin across DocLists), then extras
// (largest first). The question and any Unprunable variable are never
// removed.
func (l *Limiter) Prune(ctx context.Context, in Input) Input {
	out := Input{
		Question: in.Question,
		DocLists: map[string][]Document{},
		Extras:   map[string]string{},
	}

	questionTokens := l.tokenCount(in.Question)

	extraTokens := make(map[string]int, len(in.Extras))
	for k, v := range in.Extras {
		extraTokens[k] = l.tokenCount(v)
	}

	history := append([]Message(nil), in.History...)
	historyTokens := make([]int, len(history))
	for i, m := range history {
		historyTokens[i] = l.tokenCount(m.Content)
	}

	docLists := make(map[string][]Document, len(in.DocLists))
	docTokens := make(map[string][]int, len(in.DocLists))
	for k, docs := range in.DocLists {
		if l.Unprunable[k] {
			out.DocLists[k] = docs
			continue
		}
		docLists[k] = append([]Document(nil), docs...)
		tokens := make([]int, len(docs))
		for i, d := range docs {
			tokens[i] = l.tokenCount(d.Content)
		}
		docTokens[k] = tokens
	}

	total := func() int {
		sum := questionTokens
		for _, t := range historyTokens {
			sum += t
		}
		for _, tokens := range docTokens {
			for _, t := range tokens {
				sum += t
			}
		}
		for _, t := range extraTokens {
			sum += t
		}
		return sum
	}

	// Step 1a: drop oversized history messages outright.
	if !l.Unprunable["history"] {
		threshold := int(float64(l.EffectiveMaxTokens) * l.LargeMsgFraction)
		var keptMsgs []Message
		var keptTokens []int
		for i, m := range history {
			if historyTokens[i] <= threshold {
				keptMsgs = append(keptMsgs, m)
				keptTokens = append(keptTokens, historyTokens[i])
			} else {
				l.logger.Info(ctx, "dropped oversized history message", zap.Int("tokens", historyTokens[i]))
			}
		}
		history, historyTokens = keptMsgs, keptTokens

		// Step 1b: drop oldest messages while over budget.
		for total() > l.EffectiveMaxTokens && len(history) > l.MinHistoryMessages {
			removed := historyTokens[0]
			history = history[1:]
			historyTokens = historyTokens[1:]
			l.logger.Info(ctx, "dropped old history message", zap.Int("tokens", removed))
		}
	}
	out.History = history

	// Step 2: drop trailing documents round-robin across prunable lists.
	for total() > l.EffectiveMaxTokens && anyAboveMinDocs(docLists, l.MinDocs) {
		progressed := false
		for k, docs := range docLists {
			if len(docs) <= l.MinDocs {
				continue
			}
			n := len(docs)
			removedTokens := docTokens[k][n-1]
			docLists[k] = docs[:n-1]
			docTokens[k] = docTokens[k][:n-1]
			l.logger.Info(ctx, "dropped trailing document", zap.String("list", k), zap.Int("tokens", removedTokens))
			progressed = true
			if total() <= l.EffectiveMaxTokens {
				break
			}
		}
		if !progressed {
			break
		}
	}
	for k, docs := range docLists {
		out.DocLists[k] = docs
	}

	// Step 3: drop extras, largest first, last resort.
	for k, v := range in.Extras {
		out.Extras[k] = v
	}
	if total() > l.EffectiveMaxTokens {
		for _, k := range sortedByTokensDesc(extraTokens) {
			if total() <= l.EffectiveMaxTokens {
				break
			}
			if l.Unprunable[k] {
				continue
			}
			l.logger.Info(ctx, "dropped extra input", zap.String("key", k), zap.Int("tokens", extraTokens[k]))
			delete(out.Extras, k)
			delete(extraTokens, k)
		}
	}

	return out
}

func anyAboveMinDocs(lists map[string][]Document, min int) bool {
	for _, docs := range lists {
		if len(docs) > min {
			return true
		}
	}
	return false
}

func sortedByTokensDesc(tokens map[string]int) []string {
	keys := make([]string, 0, len(tokens))
	for k := range tokens {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && tokens[keys[j]] > tokens[keys[j-1]]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
