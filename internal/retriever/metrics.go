package retriever

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// retrieverTracer traces individual retriever calls, mirroring the
// teacher's chromemTracer for its vector store package.
var retrieverTracer trace.Tracer = otel.Tracer("github.com/a2rchi/a2rchi/internal/retriever")

// retrievalDuration tracks GetRelevantDocuments latency by retriever
// kind (bm25, semantic, hybrid).
var retrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "a2rchi",
	Subsystem: "retriever",
	Name:      "retrieval_duration_seconds",
	Help:      "Duration of retriever GetRelevantDocuments calls in seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"kind"})

// documentsReturned tracks how many documents a retriever call returned.
var documentsReturned = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "a2rchi",
	Subsystem: "retriever",
	Name:      "documents_returned",
	Help:      "Number of documents returned per retriever call",
	Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
}, []string{"kind"})
