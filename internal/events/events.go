// Package events publishes conversation lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	SubjectCreated  = "conversations.created"
	SubjectUpdated  = "conversations.updated"
	SubjectImported = "conversations.imported"
)

// ConversationEvent is the payload published for every lifecycle change.
type ConversationEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Title          *string   `json:"title,omitempty"`
	TurnCount      int       `json:"turn_count"`
	At             time.Time `json:"at"`
}

// Publisher delivers raw event payloads to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Check reports whether the publisher can currently deliver.
	Check(ctx context.Context) error
	Close() error
}

// Emit encodes ev and publishes it. Delivery failures are logged and dropped;
// a conversation change is never rolled back because a notification failed.
func Emit(ctx context.Context, pub Publisher, subject string, ev ConversationEvent) {
	if pub == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("[Events] failed to encode event")
		return
	}
	if err := pub.Publish(ctx, subject, data); err != nil {
		log.Warn().Err(err).
			Str("subject", subject).
			Str("conversation_id", ev.ConversationID.String()).
			Msg("[Events] publish failed")
	}
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }
func (Noop) Check(context.Context) error { return nil }
func (Noop) Close() error { return nil }
