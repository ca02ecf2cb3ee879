// ABOUTME: Store interfaces and data types for salesdesk-gateway persistence
// ABOUTME: Defines User, Message, aggregate views, and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when a username is already taken
var ErrDuplicateUser = errors.New("user already exists")

// Role is the kind of participant a user connects as.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSales    Role = "sales"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSales
}

// Status mirrors the conversation state on support messages.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Priority is derived from keywords when a customer asks for a human.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// priorityRank orders priorities for MAX() style comparisons.
var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Higher returns the more pressing of two priorities.
func (p Priority) Higher(other Priority) Priority {
	if priorityRank[other] > priorityRank[p] {
		return other
	}
	return p
}

// DefaultRoom is the room every message lands in unless the client names one.
const DefaultRoom = "general"

// User is a registered customer or sales rep.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	Language  string
	LastSeen  *time.Time
	CreatedAt time.Time
}

// Message is one persisted chat turn. UserID is always the customer whose
// thread the message belongs to, including rep and assistant replies.
type Message struct {
	ID              string
	Text            string
	UserID          string
	Username        string
	Room            string
	MessageType     string // "text" (defaults to "text")
	RequestingSales bool
	IsSalesResponse bool
	IsAIResponse    bool
	SalesPersonID   string
	HandledBy       string
	HandledAt       *time.Time
	CompletedAt     *time.Time
	Status          Status
	Priority        Priority
	Lang            string
	ResponseTimeMS  *int64 // rep replies only
	CreatedAt       time.Time
}

// ConversationSummary is one customer's support thread as shown on the sales dashboard.
type ConversationSummary struct {
	CustomerID      string
	Username        string
	Email           string
	LastMessage     string
	LastMessageTime time.Time
	MessageCount    int
	Priority        Priority
	Status          Status
	HandledBy       string
	HandledAt       *time.Time
}

// SalesAggregates are the raw counters behind the statistics snapshot.
type SalesAggregates struct {
	TotalConversations int
	CompletedSince     int
	AvgResponseMS      float64
	ResponseSamples    int
}

// LanguageCount is one row of a per-user language breakdown.
type LanguageCount struct {
	Lang        string
	Count       int
	AIResponses int
}

// MessagePage is a paginated slice of a customer thread.
type MessagePage struct {
	Messages []*Message
	Page     int
	Limit    int
	Total    int
}

// UserStore manages registered users.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	ListActiveUsers(ctx context.Context, since time.Time) ([]*User, error)
}

// MessageStore persists chat turns and support-request transitions.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	// ListCustomerMessages returns up to limit messages of a thread, oldest first.
	ListCustomerMessages(ctx context.Context, customerID string, limit int) ([]*Message, error)
	// ListRecentCustomerMessages returns the newest limit messages of a thread, oldest first.
	ListRecentCustomerMessages(ctx context.Context, customerID string, limit int) ([]*Message, error)
	ListMessagesPage(ctx context.Context, customerID string, page, limit int) (*MessagePage, error)
	// LastCustomerMessageBefore finds the newest message written by the customer
	// (neither a rep reply nor an assistant reply) created before the given time.
	LastCustomerMessageBefore(ctx context.Context, customerID string, before time.Time) (*Message, error)
	ClaimSalesRequests(ctx context.Context, customerID, repID string, at time.Time) (int64, error)
	ReleaseSalesRequests(ctx context.Context, customerID string) (int64, error)
	CompleteSalesRequests(ctx context.Context, customerID, repID string, at time.Time) (int64, error)
}

// ConversationStore answers dashboard and statistics queries.
type ConversationStore interface {
	ListSupportConversations(ctx context.Context) ([]*ConversationSummary, error)
	ListUnclaimedConversations(ctx context.Context) ([]*ConversationSummary, error)
	GetSalesAggregates(ctx context.Context, since time.Time) (*SalesAggregates, error)
	GetLanguageBreakdown(ctx context.Context, customerID string) ([]LanguageCount, error)
}

// AuditStore records conversation transitions.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store is everything the gateway persists.
type Store interface {
	UserStore
	MessageStore
	ConversationStore
	AuditStore
	Ping(ctx context.Context) error
	Close() error
}
