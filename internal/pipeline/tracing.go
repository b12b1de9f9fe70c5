package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// pipelineTracer traces pipeline invocations end to end, mirroring the
// teacher's chromemTracer pattern for the vector store.
var pipelineTracer trace.Tracer = otel.Tracer("github.com/a2rchi/a2rchi/internal/pipeline")
