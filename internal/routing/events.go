// ABOUTME: Outbound event names and payloads, plus the Channel delivery handle
// ABOUTME: Frames are JSON text frames of the form {"event": name, "data": payload}

package routing

import (
	"time"

	"github.com/2389/salesdesk-gateway/internal/store"
)

// Outbound event names.
const (
	EventNewSalesRequest            = "newSalesRequest"
	EventSalesRequestSent           = "salesRequestSent"
	EventSalesRepJoined             = "salesRepJoined"
	EventConversationClaimed        = "conversationClaimed"
	EventConversationAlreadyClaimed = "conversationAlreadyClaimed"
	EventMessage                    = "message"
	EventMessageSent                = "messageSent"
	EventCustomerTyping             = "customerTyping"
	EventCustomerStopTyping         = "customerStopTyping"
	EventSalesTyping                = "salesTyping"
	EventSalesStopTyping            = "salesStopTyping"
	EventConversationCompleted      = "conversationCompleted"
	EventSalesRepDisconnected       = "salesRepDisconnected"
	EventStatsUpdate                = "statsUpdate"
	EventSalesPersonsUpdate         = "salesPersonsUpdate"
	EventActiveUsers                = "activeUsers"
	EventError                      = "error"
)

// Customer-facing status text.
const (
	textRequestSent      = "Your request has been sent to our sales team. A representative will be with you shortly."
	textCompleted        = "This conversation has been completed. Thank you for contacting us!"
	textRepDisconnected  = "Sales representative has disconnected. You may be transferred to another representative."
	textDefaultRequest   = "Customer requesting sales support"
	assistantDisplayName = "AI Assistant"
)

// CloseSessionReplaced is the close code sent to a session replaced by a newer login.
const CloseSessionReplaced = 4001

// Event is one outbound frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Channel is a participant's delivery handle. Send must not block: it enqueues
// and reports false when the channel is closed or its buffer is full.
type Channel interface {
	ID() string
	Send(ev Event) bool
	Close(code int, reason string)
}

// NewSalesRequest announces a support request to available reps.
type NewSalesRequest struct {
	CustomerID    string         `json:"customerId"`
	CustomerName  string         `json:"customerName"`
	CustomerEmail string         `json:"customerEmail"`
	Message       string         `json:"message"`
	Priority      store.Priority `json:"priority"`
	Timestamp     time.Time      `json:"timestamp"`
	Status        store.Status   `json:"status"`
}

// Notice is a plain status line for a customer or rep.
type Notice struct {
	Message string `json:"message"`
}

// SalesRepJoined tells a customer who picked up the conversation.
type SalesRepJoined struct {
	SalesRepName string `json:"salesRepName"`
	SalesRepID   string `json:"salesRepId"`
	Message      string `json:"message"`
}

// ConversationClaimed confirms a claim to the winner (Success) or informs other reps (ClaimedBy).
type ConversationClaimed struct {
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName,omitempty"`
	ClaimedBy    string `json:"claimedBy,omitempty"`
	Success      bool   `json:"success,omitempty"`
}

// ChatMessage is the payload of a "message" event.
type ChatMessage struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	Timestamp       time.Time `json:"timestamp"`
	Room            string    `json:"room"`
	Lang            string    `json:"lang,omitempty"`
	CustomerID      string    `json:"customerId,omitempty"`
	IsSalesResponse bool      `json:"isSalesResponse,omitempty"`
	IsAIResponse    bool      `json:"isAIResponse,omitempty"`
	SalesPersonID   string    `json:"salesPersonId,omitempty"`
}

func chatMessage(m *store.Message) ChatMessage {
	return ChatMessage{
		ID:              m.ID,
		Text:            m.Text,
		UserID:          m.UserID,
		Username:        m.Username,
		Timestamp:       m.CreatedAt,
		Room:            m.Room,
		Lang:            m.Lang,
		IsSalesResponse: m.IsSalesResponse,
		IsAIResponse:    m.IsAIResponse,
		SalesPersonID:   m.SalesPersonID,
	}
}

// MessageSent acknowledges a rep message.
type MessageSent struct {
	MessageID  string `json:"messageId"`
	CustomerID string `json:"customerId"`
}

// CustomerTyping is sent to the owning rep.
type CustomerTyping struct {
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
}

// SalesTyping is sent to the customer.
type SalesTyping struct {
	SalesRepName string `json:"salesRepName"`
}

// ConversationCompleted carries Message to the customer and CustomerID/Success to the rep.
type ConversationCompleted struct {
	Message    string `json:"message,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	Success    bool   `json:"success,omitempty"`
}

// SalesPerson is one entry of salesPersonsUpdate.
type SalesPerson struct {
	Username    string `json:"username"`
	UserID      string `json:"userId"`
	IsAvailable bool   `json:"isAvailable"`
}

// ActiveUser is one entry of activeUsers.
type ActiveUser struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// ErrorPayload is the payload of an "error" event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
