package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duet_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_messages_persisted_total",
			Help: "Messages appended to the message store",
		},
		[]string{"kind"}, // text, file, mixed
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_send_failures_total",
			Help: "Send attempts rejected or failed, by error code",
		},
		[]string{"code"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_deliveries_total",
			Help: "Dispatch outcomes of persisted messages",
		},
		[]string{"outcome"},
	)

	SocketPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_socket_pushes_total",
			Help: "Pushes to individual sockets",
		},
		[]string{"result"}, // ok, failed
	)

	LiveSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_live_sockets",
			Help: "Sockets currently registered",
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duet_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"op"},
	)
)
