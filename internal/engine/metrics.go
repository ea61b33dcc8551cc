package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

var (
	// mutationsTotal counts writer-loop mutations by name and outcome.
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifesignal_engine_mutations_total",
		Help: "Snapshot mutations by name and outcome",
	}, []string{"mutation", "outcome"})

	// remoteCallsTotal counts remote calls by operation and error code.
	remoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifesignal_engine_remote_calls_total",
		Help: "Remote contact service calls by operation and result code",
	}, []string{"op", "code"})

	// remoteCallDuration tracks remote call latency.
	remoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifesignal_engine_remote_call_duration_seconds",
		Help:    "Remote contact service call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"op"})

	// fanOutFailures counts best-effort mirror writes that failed.
	fanOutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifesignal_engine_fanout_failures_total",
		Help: "Best-effort counterpart record writes that failed",
	}, []string{"op"})

	// resubscribesTotal counts stream reconnect attempts.
	resubscribesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifesignal_engine_resubscribes_total",
		Help: "Update stream resubscribe attempts",
	})
)

func codeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if c := contact.CodeOf(err); c != "" {
		return string(c)
	}
	return "error"
}
