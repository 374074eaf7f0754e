package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tazamem"

type Metrics struct {
	Evictions          prometheus.Counter
	Flushes            *prometheus.CounterVec
	MessagesWritten    prometheus.Counter
	Rotations          prometheus.Counter
	ShutdownSkipped    prometheus.Counter
	ProtocolViolations prometheus.Counter
	Threads            prometheus.Gauge
}

// NewMetrics registers the memory metrics with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_pairs_total",
			Help:      "Pairs moved from the context window to the pending batch.",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Durable flush attempts by trigger and result.",
		}, []string{"reason", "result"}),
		MessagesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "Messages accepted by the durable store.",
		}),
		Rotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rotations_total",
			Help:      "Sessions rotated after exceeding the idle threshold.",
		}),
		ShutdownSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shutdown_skipped_threads_total",
			Help:      "Threads not flushed before the shutdown deadline.",
		}),
		ProtocolViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "StartTurn or CompleteTurn calls made out of order.",
		}),
		Threads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "Conversation threads held in the registry.",
		}),
	}
}
