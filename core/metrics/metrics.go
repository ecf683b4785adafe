// Package metrics exposes the Prometheus collectors shared by the bot runtime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	handledUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_handled_total",
			Help: "Updates processed by router handlers",
		},
		[]string{"handler", "status"},
	)

	handlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_handler_duration_seconds",
			Help:    "Time spent inside router handlers",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"handler"},
	)

	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_messages_sent_total",
			Help: "Messages sent or edited in reply to updates",
		},
		[]string{"keyboard"},
	)

	sendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_send_failures_total",
			Help: "Outbound Telegram calls that failed after retries",
		},
	)

	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Event store operations",
		},
		[]string{"op", "status"},
	)

	storeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Event store operation latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"op"},
	)

	panics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_handler_panics_total",
			Help: "Handler panics recovered by the router",
		},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_rate_limited_total",
			Help: "Updates dropped by the per-user rate limit",
		},
		[]string{"kind"},
	)

	sessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_sessions_evicted_total",
			Help: "Idle dialogue sessions removed by the sweeper",
		},
	)
)

// ObserveHandler records the outcome and latency of one routed update.
func ObserveHandler(handler string, err error, took time.Duration) {
	handledUpdates.WithLabelValues(handler, status(err)).Inc()
	handlerDuration.WithLabelValues(handler).Observe(took.Seconds())
}

// ObserveStore records the outcome and latency of one store operation.
func ObserveStore(op string, err error, took time.Duration) {
	storeOperations.WithLabelValues(op, status(err)).Inc()
	storeDuration.WithLabelValues(op).Observe(took.Seconds())
}

// MessageSent counts a reply, labelled by whether it carried a keyboard.
func MessageSent(withKeyboard bool) {
	label := "false"
	if withKeyboard {
		label = "true"
	}
	messagesSent.WithLabelValues(label).Inc()
}

// SendFailed counts an outbound call that exhausted its retries.
func SendFailed() {
	sendFailures.Inc()
}

func PanicRecovered() {
	panics.Inc()
}

// RateLimited counts a dropped update of the given kind.
func RateLimited(kind string) {
	rateLimited.WithLabelValues(kind).Inc()
}

// SessionsEvicted adds n to the evicted sessions counter.
func SessionsEvicted(n int) {
	if n > 0 {
		sessionsEvicted.Add(float64(n))
	}
}

func status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
