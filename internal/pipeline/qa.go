package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/retriever"
	"github.com/a2rchi/a2rchi/internal/tokenlimit"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// HybridRetrieverConfig configures the HybridRetriever QAPipeline
// rebuilds on every UpdateRetriever call.
type HybridRetrieverConfig struct {
	K              int
	BM25Weight     float64
	SemanticWeight float64
	BM25K1         float64
	BM25B          float64
}

// QAPipeline condenses a conversation's history and latest question into
// a standalone query, retrieves supporting documents with a hybrid
// retriever, then answers the question with those documents stuffed
// into the chat prompt.
type QAPipeline struct {
	CondenseChain *ChainWrapper
	ChatChain     *ChainWrapper

	ChatFormatter *prompt.PromptFormatter

	retrieverCfg HybridRetrieverConfig
	retriever    retriever.Retriever
	allowedRoles map[string]bool
	logger       *logging.Logger
}

// NewQAPipeline builds a QAPipeline. condensePrompt must declare
// "history"; chatPrompt must declare "question" (and is expected to
// also reference "retriever_output"/"condensed_output").
func NewQAPipeline(
	condenseModel, chatModel llm.Model,
	condensePrompt, chatPrompt *prompt.ValidatedPromptTemplate,
	condenseFormatter, chatFormatter *prompt.PromptFormatter,
	maxTokens int,
	retrieverCfg HybridRetrieverConfig,
	allowedRoles map[string]bool,
	logger *logging.Logger,
) (*QAPipeline, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	condenseChain, err := NewChainWrapper(
		func(ctx context.Context, vars map[string]string) (string, error) {
			return renderAndInvoke(ctx, condenseModel, condensePrompt, condenseFormatter, vars)
		},
		condenseModel, condensePrompt,
		[]string{"history"}, nil,
		maxTokens, 0, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building condense chain: %w", err)
	}

	chatChain, err := NewChainWrapper(
		func(ctx context.Context, vars map[string]string) (string, error) {
			return renderAndInvoke(ctx, chatModel, chatPrompt, chatFormatter, vars)
		},
		chatModel, chatPrompt,
		[]string{"question"}, []string{"question"},
		maxTokens, 0, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building chat chain: %w", err)
	}

	return &QAPipeline{
		CondenseChain: condenseChain,
		ChatChain:     chatChain,
		ChatFormatter: chatFormatter,
		retrieverCfg:  retrieverCfg,
		allowedRoles:  allowedRoles,
		logger:        logger,
	}, nil
}

// toTokenLimitHistory converts a truncated conversation history into the
// message form tokenlimit.Limiter prunes directly (step 1a/1b), rather
// than pre-stringifying it into an opaque Extra the limiter can only
// drop wholesale.
func toTokenLimitHistory(history []prompt.Message) []tokenlimit.Message {
	out := make([]tokenlimit.Message, len(history))
	for i, m := range history {
		out[i] = tokenlimit.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func renderAndInvoke(ctx context.Context, model llm.Model, tmpl *prompt.ValidatedPromptTemplate, formatter *prompt.PromptFormatter, vars map[string]string) (string, error) {
	rendered, err := tmpl.Format(vars)
	if err != nil {
		return "", err
	}
	if formatter != nil {
		result, err := formatter.Format(rendered)
		if err != nil {
			return "", err
		}
		rendered = result.Prompt
	}
	return model.Invoke(ctx, rendered)
}

// UpdateRetriever rebuilds the pipeline's HybridRetriever against collection.
func (p *QAPipeline) UpdateRetriever(collection vectorcollection.Collection) {
	cfg := p.retrieverCfg
	hybrid, err := retriever.NewHybridRetriever(context.Background(), collection, cfg.K, cfg.BM25Weight, cfg.SemanticWeight, cfg.BM25K1, cfg.BM25B, p.logger)
	if err != nil {
		p.logger.Error(context.Background(), "failed to build hybrid retriever", zap.Error(err))
		return
	}
	p.retriever = hybrid
}

// Invoke condenses in.History's last turn into a standalone question,
// retrieves documents for it, and answers via the chat chain.
func (p *QAPipeline) Invoke(ctx context.Context, in Input) (Output, error) {
	ctx, span := pipelineTracer.Start(ctx, "QAPipeline.Invoke")
	defer span.End()

	history := in.History
	var question string
	if len(history) > 0 {
		question = history[len(history)-1].Content
		history = history[:len(history)-1]
	} else {
		p.logger.Error(ctx, "no question found in history")
	}

	fullHistoryText, err := prompt.StringifyHistory(in.History, p.allowedRoles)
	if err != nil {
		return Output{}, err
	}

	condenseAnswer, _, err := p.CondenseChain.Invoke(ctx, tokenlimit.Input{
		Question: question,
		History:  toTokenLimitHistory(history),
		Extras: map[string]string{
			"full_history": fullHistoryText,
		},
	})
	if err != nil {
		return Output{}, err
	}

	var documents []retriever.ScoredDocument
	if p.retriever != nil {
		documents, err = p.retriever.GetRelevantDocuments(ctx, condenseAnswer)
		if err != nil {
			return Output{}, err
		}
	}

	var docLists map[string][]tokenlimit.Document
	if len(documents) > 0 {
		docs := make([]tokenlimit.Document, len(documents))
		for i, d := range documents {
			docs[i] = tokenlimit.Document{Content: d.Content, Metadata: d.Metadata}
		}
		docLists = map[string][]tokenlimit.Document{"retriever_output": docs}
	}

	chatAnswer, _, err := p.ChatChain.Invoke(ctx, tokenlimit.Input{
		Question: question,
		DocLists: docLists,
		Extras: map[string]string{
			"condensed_output": condenseAnswer,
		},
	})
	if err != nil {
		return Output{}, err
	}

	scores := make([]float32, len(documents))
	for i, d := range documents {
		scores[i] = d.Score
	}

	return Output{
		Answer:          chatAnswer,
		SourceDocuments: documents,
		Metadata: map[string]any{
			"retriever_scores": scores,
			"condensed_output": condenseAnswer,
			"question":         question,
		},
	}, nil
}
