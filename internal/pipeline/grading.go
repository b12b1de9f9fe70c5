package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/retriever"
	"github.com/a2rchi/a2rchi/internal/tokenlimit"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// GradingPipeline grades a submission against a rubric through up to
// three sub-chains: an optional summary, an optional analysis (informed
// by the summary and any retrieved reference material), and a required
// final grade. The summary and analysis chains are optional because a
// deployment may configure only the prompts it needs.
type GradingPipeline struct {
	SummaryChain    *ChainWrapper // nil if no summary_prompt configured
	AnalysisChain   *ChainWrapper // nil if no analysis_prompt configured
	FinalGradeChain *ChainWrapper

	retrieverK int
	retriever  retriever.Retriever
	logger     *logging.Logger
}

// NewGradingPipeline builds a GradingPipeline. summaryPrompt/analysisPrompt
// may be nil to skip that sub-chain.
func NewGradingPipeline(
	finalGradeModel llm.Model,
	analysisModel llm.Model,
	summaryPrompt, analysisPrompt, finalGradePrompt *prompt.ValidatedPromptTemplate,
	formatter *prompt.PromptFormatter,
	maxTokens int,
	retrieverK int,
	logger *logging.Logger,
) (*GradingPipeline, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	p := &GradingPipeline{retrieverK: retrieverK, logger: logger}

	if summaryPrompt != nil {
		chain, err := NewChainWrapper(
			func(ctx context.Context, vars map[string]string) (string, error) {
				return renderAndInvoke(ctx, finalGradeModel, summaryPrompt, formatter, vars)
			},
			finalGradeModel, summaryPrompt,
			[]string{"submission_text"}, nil,
			maxTokens, 0, logger,
		)
		if err != nil {
			return nil, err
		}
		p.SummaryChain = chain
	}

	if analysisPrompt != nil {
		chain, err := NewChainWrapper(
			func(ctx context.Context, vars map[string]string) (string, error) {
				return renderAndInvoke(ctx, analysisModel, analysisPrompt, formatter, vars)
			},
			analysisModel, analysisPrompt,
			[]string{"submission_text", "rubric_text", "summary"}, nil,
			maxTokens, 0, logger,
		)
		if err != nil {
			return nil, err
		}
		p.AnalysisChain = chain
	}

	finalChain, err := NewChainWrapper(
		func(ctx context.Context, vars map[string]string) (string, error) {
			return renderAndInvoke(ctx, finalGradeModel, finalGradePrompt, formatter, vars)
		},
		finalGradeModel, finalGradePrompt,
		[]string{"rubric_text", "submission_text", "analysis"}, nil,
		maxTokens, 0, logger,
	)
	if err != nil {
		return nil, err
	}
	p.FinalGradeChain = finalChain

	return p, nil
}

// UpdateRetriever rebuilds the pipeline's SemanticRetriever against
// collection, used to surface reference material for the analysis step.
func (p *GradingPipeline) UpdateRetriever(collection vectorcollection.Collection) {
	p.retriever = retriever.NewSemanticRetriever(collection, p.retrieverK, "", "", p.logger)
}

// Invoke runs summary -> analysis -> final grade in sequence, skipping
// any sub-chain that was not configured.
func (p *GradingPipeline) Invoke(ctx context.Context, in Input) (Output, error) {
	ctx, span := pipelineTracer.Start(ctx, "GradingPipeline.Invoke")
	defer span.End()

	summary := "No solution summary."
	if p.SummaryChain != nil {
		answer, _, err := p.SummaryChain.Invoke(ctx, tokenlimit.Input{
			Extras: map[string]string{"submission_text": in.SubmissionText},
		})
		if err != nil {
			return Output{}, err
		}
		summary = answer
	}

	var documents []retriever.ScoredDocument
	if p.retriever != nil {
		docs, err := p.retriever.GetRelevantDocuments(ctx, in.SubmissionText)
		if err != nil {
			p.logger.Error(ctx, "retrieval failed during grading", zap.Error(err))
		} else {
			documents = docs
		}
	}

	analysis := "No preliminary analysis step."
	if p.AnalysisChain != nil {
		summaryForAnalysis := summary
		if p.SummaryChain == nil {
			summaryForAnalysis = "No solution summary provided. Complete the analysis without it."
		}
		answer, _, err := p.AnalysisChain.Invoke(ctx, tokenlimit.Input{
			Extras: map[string]string{
				"submission_text": in.SubmissionText,
				"rubric_text":     in.RubricText,
				"summary":         summaryForAnalysis,
			},
		})
		if err != nil {
			return Output{}, err
		}
		analysis = answer
	}

	analysisForFinal := analysis
	if p.AnalysisChain == nil {
		analysisForFinal = "No analysis summary, complete the final grading without it."
	}
	finalGrade, _, err := p.FinalGradeChain.Invoke(ctx, tokenlimit.Input{
		Extras: map[string]string{
			"rubric_text":         in.RubricText,
			"submission_text":     in.SubmissionText,
			"analysis":            analysisForFinal,
			"additional_comments": in.AdditionalComments,
		},
	})
	if err != nil {
		return Output{}, err
	}

	var steps []string
	if p.SummaryChain != nil {
		steps = append(steps, summary)
	}
	if p.AnalysisChain != nil {
		steps = append(steps, analysis)
	}

	return Output{
		Answer:            finalGrade,
		SourceDocuments:   documents,
		IntermediateSteps: steps,
		Metadata: map[string]any{
			"summary":             summary,
			"analysis":            analysis,
			"additional_comments": in.AdditionalComments,
		},
	}, nil
}
