// ABOUTME: Domain event envelope and the Publisher interface used by the router
// ABOUTME: Envelopes carry a Meta header (id, correlation, producer, time, type) plus a typed payload

package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event. The type doubles as the AMQP routing key.
type Type string

const (
	TypeSupportRequested      Type = "support.requested.v1"
	TypeConversationClaimed   Type = "conversation.claimed.v1"
	TypeConversationCompleted Type = "conversation.completed.v1"
	TypeConversationReleased  Type = "conversation.released.v1"
)

// Meta is the envelope header.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          Type      `json:"type"`
}

// Envelope wraps a payload with its Meta header.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// SupportRequested is published when a customer asks for a human.
type SupportRequested struct {
	CustomerID string `json:"customer_id"`
	MessageID  string `json:"message_id"`
	Priority   string `json:"priority"`
	Text       string `json:"text"`
}

// ConversationClaimed is published when a rep wins a conversation.
type ConversationClaimed struct {
	CustomerID string `json:"customer_id"`
	RepID      string `json:"rep_id"`
	RepName    string `json:"rep_name"`
}

// ConversationCompleted is published when the owning rep closes a conversation.
type ConversationCompleted struct {
	CustomerID string `json:"customer_id"`
	RepID      string `json:"rep_id"`
}

// ConversationReleased is published when a rep disconnects while owning a conversation.
type ConversationReleased struct {
	CustomerID string `json:"customer_id"`
	RepID      string `json:"rep_id"`
	Reason     string `json:"reason"`
}

// New builds an envelope with a fresh id. The customer id is used as the
// correlation id so all events of one conversation can be joined downstream.
func New(producer string, typ Type, customerID string, data any) Envelope {
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: producer,
		Time:     time.Now().UTC(),
		Type:     typ,
	}
	if customerID != "" {
		cid := customerID
		meta.CorrelationID = &cid
	}
	return Envelope{Meta: meta, Data: data}
}

// Publisher delivers envelopes to a broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}
