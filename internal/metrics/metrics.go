package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgw_messages_total",
			Help: "Messages lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|sent|failed
	)

	SessionRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgw_session_rebuilds_total",
			Help: "Device session rebuilds by outcome",
		},
		[]string{"outcome"}, // ok|failed|suspended
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smsgw_queue_depth",
			Help: "Send requests waiting for the device session",
		},
	)

	IntakeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgw_intake_messages_total",
			Help: "Kafka intake records by outcome",
		},
		[]string{"outcome"}, // sent|failed|poison|requeued
	)

	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smsgw_send_duration_seconds",
			Help:    "Time spent in the send executor per request, retries included",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)
)

var registerOnce sync.Once

// MustRegister registers collectors once; later calls are no-ops so the
// server and workers can both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			MessagesTotal,
			SessionRebuildsTotal,
			QueueDepth,
			SendDuration,
			IntakeTotal,
		)
	})
}
