package vstoremgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// vstoremgrTracer traces catalogue/collection reconciliation, mirroring
// the teacher's chromemTracer for its vector store package.
var vstoremgrTracer trace.Tracer = otel.Tracer("github.com/a2rchi/a2rchi/internal/vstoremgr")

var (
	// updateDuration tracks how long a full UpdateVectorstore pass takes.
	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "a2rchi",
		Subsystem: "vstoremgr",
		Name:      "update_duration_seconds",
		Help:      "Duration of vectorstore reconciliation passes in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	// updatesTotal counts reconciliation passes by result.
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "a2rchi",
		Subsystem: "vstoremgr",
		Name:      "updates_total",
		Help:      "Total number of vectorstore reconciliation passes",
	}, []string{"result"})

	// collectionSize reports the collection's entry count after the most
	// recent successful reconciliation.
	collectionSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "a2rchi",
		Subsystem: "vstoremgr",
		Name:      "collection_size",
		Help:      "Number of entries in the managed vector collection",
	})

	// resourcesAdded/resourcesRemoved count files reconciled in or out of
	// the collection across all passes.
	resourcesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "a2rchi",
		Subsystem: "vstoremgr",
		Name:      "resources_added_total",
		Help:      "Total number of resources added to the vector collection",
	})
	resourcesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "a2rchi",
		Subsystem: "vstoremgr",
		Name:      "resources_removed_total",
		Help:      "Total number of resources removed from the vector collection",
	})
)
