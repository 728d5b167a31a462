package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/tcpros/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcpros",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "handshake",
			Name:      "total",
			Help:      "Handshake attempts by role and outcome.",
		},
		[]string{"role", "outcome"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcpros",
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Handshake duration in seconds, dial included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)
	published = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "publisher",
			Name:      "messages_total",
			Help:      "Messages serialized for publication.",
		},
		[]string{"topic"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "publisher",
			Name:      "deliveries_total",
			Help:      "Per-peer message writes that succeeded.",
		},
		[]string{"topic"},
	)
	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "publisher",
			Name:      "evictions_total",
			Help:      "Peers removed after a failed write.",
		},
		[]string{"topic"},
	)
	livePeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tcpros",
			Subsystem: "publisher",
			Name:      "live_peers",
			Help:      "Peers currently in the fan-out set.",
		},
		[]string{"topic"},
	)
	fanoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcpros",
			Subsystem: "publisher",
			Name:      "fanout_duration_seconds",
			Help:      "Time to write one message to every live peer.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
	received = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "subscriber",
			Name:      "messages_total",
			Help:      "Messages decoded from publishers.",
		},
		[]string{"topic"},
	)
	queueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "subscriber",
			Name:      "queue_dropped_total",
			Help:      "Values discarded by the drop-oldest queue policy.",
		},
		[]string{"topic"},
	)
	streamEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpros",
			Subsystem: "subscriber",
			Name:      "stream_end_total",
			Help:      "Subscriber decode loops that exited, by reason.",
		},
		[]string{"topic", "reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			handshakes, handshakeDuration,
			published, deliveries, evictions, livePeers, fanoutDuration,
			received, queueDrops, streamEnds,
		)
	})
}

// Outcome maps a transport error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrMismatch):
		return "mismatch"
	case errors.Is(err, protocol.ErrFormat):
		return "format"
	case errors.Is(err, protocol.ErrDecode):
		return "decode"
	case errors.Is(err, protocol.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordHandshake(role string, err error, duration time.Duration) {
	RegisterMetrics()
	handshakes.WithLabelValues(role, Outcome(err)).Inc()
	handshakeDuration.WithLabelValues(role).Observe(duration.Seconds())
}

func RecordPublish(topic string, delivered, evicted int, duration time.Duration) {
	RegisterMetrics()
	published.WithLabelValues(topic).Inc()
	deliveries.WithLabelValues(topic).Add(float64(delivered))
	evictions.WithLabelValues(topic).Add(float64(evicted))
	fanoutDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func SetLivePeers(topic string, n int) {
	RegisterMetrics()
	livePeers.WithLabelValues(topic).Set(float64(n))
}

func RecordReceived(topic string) {
	RegisterMetrics()
	received.WithLabelValues(topic).Inc()
}

func RecordQueueDrop(topic string) {
	RegisterMetrics()
	queueDrops.WithLabelValues(topic).Inc()
}

// RecordStreamEnd counts a decode loop exit; a nil err is an orderly end.
func RecordStreamEnd(topic string, err error) {
	RegisterMetrics()
	reason := Outcome(err)
	if err == nil {
		reason = "eof"
	}
	streamEnds.WithLabelValues(topic, reason).Inc()
}
