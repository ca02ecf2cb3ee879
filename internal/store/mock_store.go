// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while mirroring its query semantics

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*User // keyed by user ID
	messages []*Message       // insertion order
	audit    []AuditEntry

	// FailSaves makes SaveMessage return an error, for persistence failure tests.
	FailSaves bool
}

// ErrMockFailure is returned by MockStore when FailSaves is set.
var ErrMockFailure = errors.New("mock store failure")

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users: make(map[string]*User),
	}
}

// SetFailSaves toggles SaveMessage failures.
func (m *MockStore) SetFailSaves(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailSaves = fail
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	if u.Language == "" {
		u.Language = "en"
	}
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.ID == u.ID {
			return ErrDuplicateUser
		}
	}

	c := *u
	m.users[c.ID] = &c
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// TouchLastSeen records when a user was last connected.
func (m *MockStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	t := at.UTC()
	u.LastSeen = &t
	return nil
}

// ListActiveUsers returns users seen at or after since, most recent first.
func (m *MockStore) ListActiveUsers(ctx context.Context, since time.Time) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []*User{}
	for _, u := range m.users {
		if u.LastSeen != nil && !u.LastSeen.Before(since) {
			c := *u
			users = append(users, &c)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].LastSeen.After(*users[j].LastSeen) })
	return users, nil
}

// SaveMessage stores a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves {
		return ErrMockFailure
	}
	applyMessageDefaults(msg)
	c := *msg
	m.messages = append(m.messages, &c)
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages {
		if msg.ID == id {
			c := *msg
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// threadLocked returns copies of a customer's messages oldest first. Caller holds the lock.
func (m *MockStore) threadLocked(customerID string) []*Message {
	var thread []*Message
	for _, msg := range m.messages {
		if msg.UserID == customerID {
			c := *msg
			thread = append(thread, &c)
		}
	}
	sort.SliceStable(thread, func(i, j int) bool { return thread[i].CreatedAt.Before(thread[j].CreatedAt) })
	return thread
}

// ListCustomerMessages returns up to limit messages of a thread, oldest first.
func (m *MockStore) ListCustomerMessages(ctx context.Context, customerID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	thread := m.threadLocked(customerID)
	if len(thread) > limit {
		thread = thread[:limit]
	}
	if thread == nil {
		thread = []*Message{}
	}
	return thread, nil
}

// ListRecentCustomerMessages returns the newest limit messages of a thread, oldest first.
func (m *MockStore) ListRecentCustomerMessages(ctx context.Context, customerID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []*Message{}, nil
	}
	thread := m.threadLocked(customerID)
	if len(thread) > limit {
		thread = thread[len(thread)-limit:]
	}
	if thread == nil {
		thread = []*Message{}
	}
	return thread, nil
}

// ListMessagesPage returns one page of a thread, newest first.
func (m *MockStore) ListMessagesPage(ctx context.Context, customerID string, page, limit int) (*MessagePage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page, limit = normalizePage(page, limit)
	thread := m.threadLocked(customerID)
	total := len(thread)

	// newest first
	for i, j := 0, len(thread)-1; i < j; i, j = i+1, j-1 {
		thread[i], thread[j] = thread[j], thread[i]
	}

	start := (page - 1) * limit
	out := []*Message{}
	if start < total {
		end := min(start+limit, total)
		out = thread[start:end]
	}
	return &MessagePage{Messages: out, Page: page, Limit: limit, Total: total}, nil
}

// LastCustomerMessageBefore finds the customer's newest own message before the given time.
func (m *MockStore) LastCustomerMessageBefore(ctx context.Context, customerID string, before time.Time) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Message
	for _, msg := range m.threadLocked(customerID) {
		if msg.IsSalesResponse || msg.IsAIResponse || !msg.CreatedAt.Before(before) {
			continue
		}
		found = msg
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ClaimSalesRequests marks the customer's unhandled support requests as handled by repID.
func (m *MockStore) ClaimSalesRequests(ctx context.Context, customerID, repID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	t := at.UTC()
	for _, msg := range m.messages {
		if msg.UserID == customerID && msg.RequestingSales && msg.HandledBy == "" && msg.Status != StatusCompleted {
			msg.HandledBy = repID
			msg.HandledAt = &t
			msg.Status = StatusActive
			n++
		}
	}
	return n, nil
}

// ReleaseSalesRequests clears an active claim.
func (m *MockStore) ReleaseSalesRequests(ctx context.Context, customerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, msg := range m.messages {
		if msg.UserID == customerID && msg.RequestingSales && msg.Status == StatusActive {
			msg.HandledBy = ""
			msg.HandledAt = nil
			msg.Status = StatusWaiting
			n++
		}
	}
	return n, nil
}

// CompleteSalesRequests marks the customer's open support requests as completed.
func (m *MockStore) CompleteSalesRequests(ctx context.Context, customerID, repID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	t := at.UTC()
	for _, msg := range m.messages {
		if msg.UserID == customerID && msg.RequestingSales && msg.Status != StatusCompleted {
			msg.Status = StatusCompleted
			msg.HandledBy = repID
			msg.CompletedAt = &t
			n++
		}
	}
	return n, nil
}

// ListSupportConversations returns every customer with an open support request.
func (m *MockStore) ListSupportConversations(ctx context.Context) ([]*ConversationSummary, error) {
	return m.conversations(false), nil
}

// ListUnclaimedConversations returns open support requests nobody has claimed.
func (m *MockStore) ListUnclaimedConversations(ctx context.Context) ([]*ConversationSummary, error) {
	return m.conversations(true), nil
}

func (m *MockStore) conversations(unclaimedOnly bool) []*ConversationSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCustomer := map[string]*ConversationSummary{}
	for _, msg := range m.messages {
		if !msg.RequestingSales || msg.Status == StatusCompleted {
			continue
		}
		c, ok := byCustomer[msg.UserID]
		if !ok {
			c = &ConversationSummary{CustomerID: msg.UserID, Priority: PriorityLow, Status: StatusWaiting}
			byCustomer[msg.UserID] = c
		}
		c.Priority = c.Priority.Higher(msg.Priority)
		if msg.Status == StatusActive {
			c.Status = StatusActive
		}
		if msg.HandledBy != "" {
			c.HandledBy = msg.HandledBy
			c.HandledAt = msg.HandledAt
		}
	}

	out := []*ConversationSummary{}
	for id, c := range byCustomer {
		if unclaimedOnly && (c.Status == StatusActive || c.HandledBy != "") {
			continue
		}
		thread := m.threadLocked(id)
		c.MessageCount = len(thread)
		if len(thread) > 0 {
			last := thread[len(thread)-1]
			c.LastMessage = last.Text
			c.LastMessageTime = last.CreatedAt
		}
		if u, ok := m.users[id]; ok {
			c.Username = u.Username
			c.Email = u.Email
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if priorityRank[out[i].Priority] != priorityRank[out[j].Priority] {
			return priorityRank[out[i].Priority] > priorityRank[out[j].Priority]
		}
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

// GetSalesAggregates returns the counters behind the statistics snapshot.
func (m *MockStore) GetSalesAggregates(ctx context.Context, since time.Time) (*SalesAggregates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requested := map[string]bool{}
	completed := map[string]bool{}
	var sum int64
	var agg SalesAggregates

	for _, msg := range m.messages {
		if msg.RequestingSales {
			requested[msg.UserID] = true
			if msg.CompletedAt != nil && !msg.CompletedAt.Before(since) {
				completed[msg.UserID] = true
			}
		}
		if msg.IsSalesResponse && msg.ResponseTimeMS != nil && *msg.ResponseTimeMS > 0 && !msg.CreatedAt.Before(since) {
			sum += *msg.ResponseTimeMS
			agg.ResponseSamples++
		}
	}

	agg.TotalConversations = len(requested)
	agg.CompletedSince = len(completed)
	if agg.ResponseSamples > 0 {
		agg.AvgResponseMS = float64(sum) / float64(agg.ResponseSamples)
	}
	return &agg, nil
}

// GetLanguageBreakdown counts a customer's thread by language, most used first.
func (m *MockStore) GetLanguageBreakdown(ctx context.Context, customerID string) ([]LanguageCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byLang := map[string]*LanguageCount{}
	for _, msg := range m.messages {
		if msg.UserID != customerID {
			continue
		}
		lc, ok := byLang[msg.Lang]
		if !ok {
			lc = &LanguageCount{Lang: msg.Lang}
			byLang[msg.Lang] = lc
		}
		lc.Count++
		if msg.IsAIResponse {
			lc.AIResponses++
		}
	}

	out := []LanguageCount{}
	for _, lc := range byLang {
		out = append(out, *lc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Lang < out[j].Lang
	})
	return out, nil
}

// AppendAuditLog records an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns matching audit entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		switch {
		case f.Since != nil && e.Timestamp.Before(*f.Since),
			f.Until != nil && e.Timestamp.After(*f.Until),
			f.ActorID != nil && e.ActorID != *f.ActorID,
			f.Action != nil && e.Action != *f.Action,
			f.TargetType != nil && e.TargetType != *f.TargetType,
			f.TargetID != nil && e.TargetID != *f.TargetID:
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Messages returns a snapshot of every stored message, for test assertions.
func (m *MockStore) Messages() []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Message, 0, len(m.messages))
	for _, msg := range m.messages {
		c := *msg
		out = append(out, &c)
	}
	return out
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

var _ Store = (*MockStore)(nil)
