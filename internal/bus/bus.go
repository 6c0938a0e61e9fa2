// Package bus implements the fan-out between the durable message store and
// live gateway connections: every appended message is published once here
// so that any instance holding the recipient's WebSocket connection can
// deliver it without polling the database.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// channelName is the single Valkey pub/sub channel carrying every event.
// Subscribers filter by the envelope's recipient fields after decoding.
const channelName = "ourchat.events"

// Envelope is the structure published for every event. SessionID and
// RecipientID are nullable: a broadcast (IsAllUser) event has neither
// restriction, a session event has SessionID set, and a direct event (DM,
// friend invitation) has RecipientID set.
type Envelope struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	MessageID   *int64          `json:"message_id,omitempty"`
	SessionID   *int64          `json:"session_id,omitempty"`
	RecipientID *int64          `json:"recipient_id,omitempty"`
	IsAllUser   bool            `json:"is_all_user,omitempty"`
}

// Publisher serialises events and publishes them to the shared channel.
type Publisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewPublisher(rdb *redis.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: logger}
}

func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal bus envelope: %w", err)
	}
	if err := p.rdb.Publish(ctx, channelName, payload).Err(); err != nil {
		return fmt.Errorf("publish bus envelope: %w", err)
	}
	return nil
}

// Subscriber reads and decodes envelopes from the shared channel. Each
// gateway instance runs exactly one Subscriber and fans decoded envelopes
// out to its locally connected clients.
type Subscriber struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewSubscriber(rdb *redis.Client, logger zerolog.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, log: logger}
}

// Run subscribes to the shared channel and invokes handle for every
// envelope received, until ctx is cancelled or the subscription fails.
func (s *Subscriber) Run(ctx context.Context, handle func(Envelope)) error {
	sub := s.rdb.Subscribe(ctx, channelName)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.log.Warn().Err(err).Msg("discarding malformed bus envelope")
				continue
			}
			handle(env)
		}
	}
}
