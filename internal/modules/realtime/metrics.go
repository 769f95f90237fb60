// README: Prometheus counters for realtime fan-out.
package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medtrans",
			Name:      "realtime_publish_total",
			Help:      "Realtime channel publishes by event kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	droppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medtrans",
			Name:      "realtime_dropped_total",
			Help:      "Messages dropped because a client buffer was full",
		},
	)
)
