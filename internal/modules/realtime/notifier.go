// README: Notifier fans booking events out to channels (via a Broker) and to export sinks.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	applog "medtrans/internal/log"
)

// Broker delivers a payload to every subscriber of a channel, possibly on other instances.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Sink receives every envelope once, regardless of channels (e.g. a message queue export).
type Sink interface {
	Export(ctx context.Context, env Envelope) error
}

const publishTimeout = 2 * time.Second

type Notifier struct {
	broker Broker
	sinks  []Sink
	log    zerolog.Logger
}

func NewNotifier(broker Broker, sinks ...Sink) *Notifier {
	return &Notifier{broker: broker, sinks: sinks, log: applog.WithComponent("realtime")}
}

// Publish is best-effort: failures are logged and counted, never returned, so a broken
// broker cannot undo a committed state change.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	env := Encode(ev)
	payload, err := json.Marshal(env)
	if err != nil {
		n.log.Error().Err(err).Int64("booking_id", env.BookingID).Msg("marshal event")
		return
	}

	kind := dedupeKind(ev)
	for _, ch := range Channels(ev) {
		if err := n.broker.Publish(ctx, ch, payload); err != nil {
			publishTotal.WithLabelValues(kind, "error").Inc()
			n.log.Warn().Err(err).
				Str("channel", ch).
				Str("kind", kind).
				Int64("booking_id", env.BookingID).
				Msg("realtime publish failed")
			continue
		}
		publishTotal.WithLabelValues(kind, "ok").Inc()
	}

	for _, s := range n.sinks {
		if err := s.Export(ctx, env); err != nil {
			n.log.Warn().Err(err).Str("kind", kind).Int64("booking_id", env.BookingID).Msg("event export failed")
		}
	}
}
