package agenda

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheLookups counts parse cache lookups.
	// Labels: result (hit, miss)
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planmark",
			Subsystem: "agenda",
			Name:      "cache_lookups_total",
			Help:      "Document parse cache lookups by result",
		},
		[]string{"result"},
	)

	aggregateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "planmark",
			Subsystem: "agenda",
			Name:      "aggregate_duration_seconds",
			Help:      "Duration of agenda aggregations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	documentsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "planmark",
			Subsystem: "agenda",
			Name:      "documents_skipped_total",
			Help:      "Documents skipped because the store failed to return them",
		},
	)
)
