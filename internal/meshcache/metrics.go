package meshcache

import "github.com/prometheus/client_golang/prometheus"

type cacheMetrics struct {
	scheduled    prometheus.Counter
	committed    prometheus.Counter
	stale        prometheus.Counter
	failed       prometheus.Counter
	uploads      prometheus.Counter
	buildSeconds prometheus.Histogram
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	m := &cacheMetrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshcache",
			Name:      "builds_scheduled_total",
			Help:      "Заданий на построение меша отправлено в пул.",
		}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshcache",
			Name:      "builds_committed_total",
			Help:      "Мешей зафиксировано в кеше.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshcache",
			Name:      "builds_stale_total",
			Help:      "Результатов отброшено как устаревшие.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshcache",
			Name:      "builds_failed_total",
			Help:      "Построений, завершившихся ошибкой.",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshcache",
			Name:      "uploads_total",
			Help:      "Мешей передано рендеру.",
		}),
		buildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meshcache",
			Name:      "build_duration_seconds",
			Help:      "Длительность построения меша одного чанка.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scheduled, m.committed, m.stale, m.failed, m.uploads, m.buildSeconds)
	}
	return m
}
