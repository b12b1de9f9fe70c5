// Package pipeline implements a2rchi's request pipelines: the classic
// generation built on a shared ChainWrapper (prompt validation,
// token-budget pruning, chain invocation) -- QAPipeline
// (condense-then-retrieve-then-answer), GradingPipeline (summary/
// analysis/final-grade sub-chains), ImageProcessingPipeline (single
// multimodal chain) -- plus the agent generation, CMSCompOpsAgent, a
// BaseReActAgent wired with a retriever tool and two catalog search
// tools. Every pipeline implements the common Pipeline contract so the
// a2rchi façade can invoke any of them uniformly.
package pipeline

import (
	"context"

	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/retriever"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// Input is everything any classic pipeline might need from a single
// request. Each pipeline reads only the fields it uses; this mirrors
// the teacher's own preference for one explicit, statically-typed
// request shape over Python's dynamically-typed **kwargs dispatch.
type Input struct {
	History            []prompt.Message
	SubmissionText     string
	RubricText         string
	AdditionalComments string
	Images             [][]byte
}

// Output is the uniform result every pipeline returns.
type Output struct {
	Answer            string
	SourceDocuments   []retriever.ScoredDocument
	IntermediateSteps []string
	Metadata          map[string]any
}

// Pipeline is the contract every classic pipeline implements.
type Pipeline interface {
	// UpdateRetriever rebuilds any retrievers the pipeline holds
	// against a freshly fetched collection snapshot.
	UpdateRetriever(collection vectorcollection.Collection)

	// Invoke runs the pipeline end to end and returns its Output.
	Invoke(ctx context.Context, in Input) (Output, error)
}
