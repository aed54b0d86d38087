package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindLabel = "kind"
)

var (
	sceneCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_count",
		Help: "The number of scenes.",
	})

	sceneCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_count_total",
		Help: "The total number of scenes.",
	})

	sceneObjectCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_object_count",
		Help: "The number of objects in all the scenes.",
	}, []string{kindLabel})

	sceneFrameLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_frame_latency_seconds",
		Help:    "The duration of a scene frame pass.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
	})

	sceneVisibleDrawables = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_visible_drawables",
		Help:    "The number of drawables visible from the camera in a frame.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

func instrumentIncreaseSceneGauge() {
	sceneCount.Inc()
}

func instrumentDecreaseSceneGauge() {
	sceneCount.Dec()
}

func instrumentCountScene() {
	sceneCountTotal.Inc()
}

func instrumentAddObject(kind string) {
	sceneObjectCount.
		With(prometheus.Labels{kindLabel: kind}).
		Inc()
}

func instrumentRemoveObject(kind string) {
	sceneObjectCount.
		With(prometheus.Labels{kindLabel: kind}).
		Dec()
}

func instrumentFrame(start time.Time, visible int) {
	sceneFrameLatency.Observe(time.Since(start).Seconds())
	sceneVisibleDrawables.Observe(float64(visible))
}
