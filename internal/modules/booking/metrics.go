// README: Prometheus counters for dispatch outcomes and status changes.
package booking

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medtrans",
			Name:      "dispatch_total",
			Help:      "Claim, assign and release attempts by outcome",
		},
		[]string{"op", "outcome"},
	)
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medtrans",
			Name:      "status_transitions_total",
			Help:      "Applied status changes by target status and actor kind",
		},
		[]string{"to", "actor"},
	)
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrIneligible):
		return "ineligible"
	case errors.Is(err, ErrTerminalState), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoDriverAssigned):
		return "rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
