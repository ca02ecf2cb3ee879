// ABOUTME: Responder interface and shared types for automated replies
// ABOUTME: History turns are oldest first; FromBot marks turns the assistant produced

package assistant

import (
	"context"
	"errors"
)

// Turn is one earlier message of the conversation.
type Turn struct {
	Text    string `json:"text"`
	FromBot bool   `json:"fromBot"`
}

// Reply is a generated answer.
type Reply struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
}

// Responder produces a reply to a customer message.
type Responder interface {
	Respond(ctx context.Context, text, lang string, history []Turn) (Reply, error)
}

// ErrEmptyReply is returned when the backend produced no text.
var ErrEmptyReply = errors.New("assistant returned no reply")
