package octree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	octreeLabel = "octree"
	stageLabel  = "stage"
	queryLabel  = "query"

	updateStage   = "update"
	reinsertStage = "reinsert"
)

var (
	octreeDrawables = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_drawables",
		Help: "The number of drawables indexed by an octree.",
	}, []string{octreeLabel})

	octreeOctants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "octree_octants",
		Help: "The number of allocated octants.",
	}, []string{octreeLabel})

	octreeStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "octree_stage_latency_seconds",
		Help:    "The duration of the octree update stages.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{octreeLabel, stageLabel})

	octreeReinsertions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_reinsertions_total",
		Help: "The total number of drawables moved to another octant.",
	}, []string{octreeLabel})

	octreeStaleEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_stale_queue_entries_total",
		Help: "The total number of skipped queue entries whose drawable left the octree.",
	}, []string{octreeLabel, stageLabel})

	octreeQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "octree_query_latency_seconds",
		Help:    "The duration of octree queries.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{octreeLabel, queryLabel})
)

func instrumentSize(o *Octree) {
	octreeDrawables.
		With(prometheus.Labels{octreeLabel: o.name}).
		Set(float64(o.numDrawables))

	octreeOctants.
		With(prometheus.Labels{octreeLabel: o.name}).
		Set(float64(o.numOctants))
}

func instrumentStageLatency(octree, stage string, start time.Time) {
	octreeStageLatency.
		With(prometheus.Labels{
			octreeLabel: octree,
			stageLabel:  stage,
		}).
		Observe(time.Since(start).Seconds())
}

func instrumentReinsertions(octree string, count int) {
	octreeReinsertions.
		With(prometheus.Labels{octreeLabel: octree}).
		Add(float64(count))
}

func instrumentStaleEntries(octree, stage string, count int) {
	octreeStaleEntries.
		With(prometheus.Labels{
			octreeLabel: octree,
			stageLabel:  stage,
		}).
		Add(float64(count))
}

func instrumentQueryLatency(octree, query string, start time.Time) {
	octreeQueryLatency.
		With(prometheus.Labels{
			octreeLabel: octree,
			queryLabel:  query,
		}).
		Observe(time.Since(start).Seconds())
}
