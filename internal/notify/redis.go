package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge relays task events through a Redis channel so that viewers connected
// to different engine instances observe the same lifecycle stream. Bridge
// failures are logged and never fatal: a single-instance deployment works
// with no Redis at all, and a partitioned instance keeps serving its local
// subscribers.
type Bridge struct {
	client  *redis.Client
	hub     *Hub
	channel string
	origin  string
}

// bridgeMessage is the wire shape on the Redis channel. Origin identifies the
// publishing instance so it can discard its own echo: Redis pub/sub delivers
// to every subscriber including the publisher, and republishing the echo
// locally would reorder a task's event stream.
type bridgeMessage struct {
	Origin string    `json:"origin"`
	Event  TaskEvent `json:"event"`
}

// NewBridge connects to Redis and wraps the hub. The connection is verified
// up front so a misconfigured address fails at startup, not at first publish.
func NewBridge(address, password string, db int, channel string, hub *Hub) (*Bridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if channel == "" {
		channel = "task-engine.events"
	}

	return &Bridge{
		client:  client,
		hub:     hub,
		channel: channel,
		origin:  uuid.New().String(),
	}, nil
}

// Publish fans the event out locally and mirrors it to the Redis channel.
// Implements the tasks.Notifier interface.
func (b *Bridge) Publish(ev TaskEvent) {
	b.hub.Publish(ev)

	payload, err := json.Marshal(bridgeMessage{Origin: b.origin, Event: ev})
	if err != nil {
		slog.Error("failed to marshal task event", "error", err)
		return
	}

	if err := b.client.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		slog.Warn("failed to mirror event to redis", "channel", b.channel, "error", err)
	}
}

// Start subscribes to the Redis channel and relays remote events into the
// local hub until the context is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	go b.relay(ctx)
}

func (b *Bridge) relay(ctx context.Context) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	slog.Info("redis event bridge started", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("redis event bridge stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				slog.Warn("redis subscription closed")
				return
			}
			b.handleMessage([]byte(msg.Payload))
		}
	}
}

// handleMessage republishes one channel message into the local hub. Messages
// this instance published itself are dropped: local subscribers already saw
// the event directly, and the echo would land behind newer events.
func (b *Bridge) handleMessage(payload []byte) {
	var msg bridgeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("discarding malformed event from redis", "error", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}
	b.hub.Publish(msg.Event)
}

// HealthCheck verifies Redis connectivity.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *Bridge) Close() error {
	return b.client.Close()
}
