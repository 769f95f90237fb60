// README: Sink exporting every envelope to a topic exchange for downstream consumers.
package realtime

import "context"

type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type AMQPSink struct {
	pub JSONPublisher
}

func NewAMQPSink(pub JSONPublisher) *AMQPSink {
	return &AMQPSink{pub: pub}
}

// Export routes by kind, e.g. "booking.accepted" or "booking-updated.STATUS_UPDATE".
func (s *AMQPSink) Export(ctx context.Context, env Envelope) error {
	return s.pub.PublishJSON(ctx, RoutingKey(env), env)
}

func RoutingKey(env Envelope) string {
	if env.Type != "" {
		return string(env.Kind) + "." + string(env.Type)
	}
	return string(env.Kind)
}
