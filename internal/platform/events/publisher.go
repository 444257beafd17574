// Package events publishes confirmed comment mutations to NATS so other
// viewers and services can refetch. Publishing is fire-and-forget.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectCommentCreated = "social.comments.created"
	SubjectCommentUpdated = "social.comments.updated"
	SubjectCommentDeleted = "social.comments.deleted"
	SubjectCommentLiked   = "social.comments.liked"
	SubjectCommentUnliked = "social.comments.unliked"

	// SubjectAllComments matches every subject above.
	SubjectAllComments = "social.comments.>"
)

// Event is the envelope sent to all social.comments.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes events to NATS JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub.
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// Publish sends an event asynchronously. Failures are logged as warnings and
// never surface to the caller.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(NewEvent(eventName, userID, props))
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func NewEvent(eventName, userID string, props map[string]any) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
}

// Decode parses a message body published by Publisher.
func Decode(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// Subscribe delivers decoded events on subject (wildcards allowed) to fn.
// Undecodable messages are logged and skipped.
func Subscribe(nc *nats.Conn, subject string, log *zap.Logger, fn func(subject string, ev Event)) (*nats.Subscription, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ev, err := Decode(m.Data)
		if err != nil {
			log.Warn("events: decode failed", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		fn(m.Subject, ev)
	})
}
