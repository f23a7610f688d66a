// Package events announces auth events on the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pilotodevendas/apiserver/internal/mq"
	"github.com/pilotodevendas/apiserver/types"
)

// AttrUserID carries the subject user id alongside the payload.
const AttrUserID = "user-id"

// Publisher encodes auth events as JSON and publishes them on one channel.
// Failures are logged and never returned; sign-in must not depend on the broker.
type Publisher struct {
	backend mq.Backend
	channel string
	logger  *slog.Logger
}

func NewPublisher(backend mq.Backend, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{backend: backend, channel: channel, logger: logger}
}

// Publish sends event. A nil backend drops it.
func (p *Publisher) Publish(ctx context.Context, event types.AuthEvent) {
	if p == nil || p.backend == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encode auth event", "type", event.Type, "error", err)
		return
	}

	id, err := p.backend.Publish(ctx, p.channel, data, Attributes(event))
	if err != nil {
		p.logger.Warn("publish auth event failed",
			"type", event.Type,
			"user_id", event.UserID,
			"channel", p.channel,
			"error", err,
		)
		return
	}
	p.logger.Debug("auth event published", "type", event.Type, "user_id", event.UserID, "message_id", id)
}

// Attributes are the broker attributes attached to event.
func Attributes(event types.AuthEvent) map[string]string {
	return map[string]string{
		mq.AttrContentType: "application/json",
		mq.AttrEventType:   string(event.Type),
		AttrUserID:         strconv.Itoa(event.UserID),
	}
}

// Decode parses a broker message produced by Publisher.
func Decode(msg mq.Message) (types.AuthEvent, error) {
	var event types.AuthEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.AuthEvent{}, fmt.Errorf("decode auth event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = types.AuthEventType(msg.Attributes[mq.AttrEventType])
	}
	return event, nil
}
