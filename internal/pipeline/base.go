package pipeline

import (
	"context"

	"github.com/a2rchi/a2rchi/internal/vectorcollection"
)

// DefaultPipeline is a no-op Pipeline: UpdateRetriever does nothing and
// Invoke returns a fixed placeholder answer without touching a model or
// a retriever. No pipeline registry in this module falls back to it; it
// is usable as a test double wherever only the Pipeline contract matters.
type DefaultPipeline struct{}

func (DefaultPipeline) UpdateRetriever(vectorcollection.Collection) {}

func (DefaultPipeline) Invoke(ctx context.Context, in Input) (Output, error) {
	return Output{
		Answer:            "Stat rosa pristina nomine, nomina nuda tenemus.",
		SourceDocuments:   nil,
		IntermediateSteps: nil,
	}, nil
}
