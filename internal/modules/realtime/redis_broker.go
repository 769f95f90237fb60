// README: Redis Pub/Sub broker so every API instance delivers events to its own websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	applog "medtrans/internal/log"
)

type frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker publishes frames to one Redis channel; Run relays them into the local Hub.
type RedisBroker struct {
	client *redis.Client
	topic  string
	hub    *Hub
	log    zerolog.Logger
}

func NewRedisBroker(client *redis.Client, topic string, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, topic: topic, hub: hub, log: applog.WithComponent("realtime.redis")}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	data, err := json.Marshal(frame{Channel: channel, Payload: payload})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.topic, data).Err()
}

// Run subscribes until ctx is done. Frames published while not subscribed are lost;
// clients recover by refetching on reconnect.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	b.log.Info().Str("topic", b.topic).Msg("realtime relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			var f frame
			if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
				b.log.Warn().Err(err).Msg("discarding malformed frame")
				continue
			}
			b.hub.Deliver(f.Channel, f.Payload)
		}
	}
}
