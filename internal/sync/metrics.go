package sync

import "github.com/prometheus/client_golang/prometheus"

type serverMetrics struct {
	intentsAccepted prometheus.Counter
	intentsRejected *prometheus.CounterVec
	mutationsSent   prometheus.Counter
	packetsSent     prometheus.Counter
	resends         prometheus.Counter
	sendErrors      prometheus.Counter
	clients         prometheus.Gauge
	logLength       prometheus.Gauge
	tickSeconds     prometheus.Histogram
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		intentsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "intents_accepted_total",
			Help: "Намерений клиентов применено к миру.",
		}),
		intentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "intents_rejected_total",
			Help: "Намерений клиентов отклонено, по причинам.",
		}, []string{"reason"}),
		mutationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "mutations_sent_total",
			Help: "Мутаций отправлено клиентам (с повторами).",
		}),
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "packets_sent_total",
			Help: "Пакетов передано транспорту.",
		}),
		resends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "resends_total",
			Help: "Откатов курсора отправки к подтверждённому номеру.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "send_errors_total",
			Help: "Ошибок передачи пакета транспорту.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "clients",
			Help: "Подключённых клиентов.",
		}),
		logLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sync", Subsystem: "server",
			Name: "log_length",
			Help: "Мутаций в общем журнале, ещё не подтверждённых всеми клиентами.",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sync", Subsystem: "server",
			Name:    "tick_duration_seconds",
			Help:    "Длительность сетевого тика сервера.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.intentsAccepted, m.intentsRejected, m.mutationsSent, m.packetsSent,
			m.resends, m.sendErrors, m.clients, m.logLength, m.tickSeconds)
	}
	return m
}

type clientMetrics struct {
	applied    prometheus.Counter
	confirmed  prometheus.Counter
	mismatches prometheus.Counter
	expired    prometheus.Counter
	duplicates prometheus.Counter
	gaps       prometheus.Counter
	pending    prometheus.Gauge
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	m := &clientMetrics{
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "mutations_applied_total",
			Help: "Авторитетных мутаций применено к локальному миру.",
		}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "predictions_confirmed_total",
			Help: "Предсказаний, совпавших с сервером.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "reconciliation_mismatches_total",
			Help: "Предсказаний, исправленных сервером.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "predictions_expired_total",
			Help: "Предсказаний, откатанных по таймауту.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "duplicates_total",
			Help: "Повторно полученных мутаций.",
		}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "buffered_total",
			Help: "Мутаций, отложенных до заполнения пропуска.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sync", Subsystem: "client",
			Name: "pending_predictions",
			Help: "Неподтверждённых предсказаний.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.applied, m.confirmed, m.mismatches, m.expired, m.duplicates, m.gaps, m.pending)
	}
	return m
}
