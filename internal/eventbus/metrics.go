package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter публикует счётчики шины как Prometheus-метрики.
// Значения читаются из EventBus.Metrics() в момент сбора, отдельного
// цикла обновления нет.
type MetricsExporter struct {
	collectors []prometheus.Collector
	reg        prometheus.Registerer
}

// NewMetricsExporter регистрирует метрики шины в reg. Метка bus различает
// несколько шин одного процесса (local, jetstream). reg == nil означает,
// что метрики создаются, но не регистрируются.
func NewMetricsExporter(bus EventBus, name string, reg prometheus.Registerer) (*MetricsExporter, error) {
	labels := prometheus.Labels{"bus": name}
	counter := func(metric, help string, read func(Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "eventbus",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read(bus.Metrics())) })
	}

	me := &MetricsExporter{reg: reg}
	me.collectors = []prometheus.Collector{
		counter("messages_published_total", "Общее число опубликованных сообщений.",
			func(s Stats) uint64 { return s.Published }),
		counter("messages_consumed_total", "Общее число доставленных сообщений подписчикам.",
			func(s Stats) uint64 { return s.Consumed }),
		counter("messages_dropped_total", "Сообщений, отброшенных из-за ошибок или back-pressure.",
			func(s Stats) uint64 { return s.Dropped }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "eventbus",
			Name:        "messages_inflight",
			Help:        "Количество сообщений в очередях подписчиков.",
			ConstLabels: labels,
		}, func() float64 { return float64(bus.Metrics().InFlight) }),
	}

	if reg == nil {
		return me, nil
	}
	for i, c := range me.collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range me.collectors[:i] {
				reg.Unregister(done)
			}
			return nil, err
		}
	}
	return me, nil
}

// Collectors возвращает созданные метрики
func (m *MetricsExporter) Collectors() []prometheus.Collector {
	return m.collectors
}

// Stop снимает метрики с регистрации
func (m *MetricsExporter) Stop() {
	if m.reg == nil {
		return
	}
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
}
