// ABOUTME: Shared fakes for routing tests: a recording channel and a router harness
// ABOUTME: The harness wires the router to the mock store, real stats, a memory publisher, and a canned bot

package routing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/2389/salesdesk-gateway/internal/assistant"
	"github.com/2389/salesdesk-gateway/internal/bot"
	"github.com/2389/salesdesk-gateway/internal/config"
	"github.com/2389/salesdesk-gateway/internal/dedupe"
	"github.com/2389/salesdesk-gateway/internal/events"
	"github.com/2389/salesdesk-gateway/internal/stats"
	"github.com/2389/salesdesk-gateway/internal/store"
)

type fakeChannel struct {
	id string

	mu          sync.Mutex
	events      []Event
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{id: uuid.NewString()}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeChannel) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
}

// named returns the payloads of every received event with the given name.
func (c *fakeChannel) named(name string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, ev := range c.events {
		if ev.Name == name {
			out = append(out, ev.Data)
		}
	}
	return out
}

func (c *fakeChannel) count(name string) int {
	return len(c.named(name))
}

func (c *fakeChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *fakeChannel) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

type cannedResponder struct{}

func (cannedResponder) Respond(_ context.Context, text, lang string, _ []assistant.Turn) (assistant.Reply, error) {
	return assistant.Reply{Text: "bot: " + text, Language: lang, Model: "canned"}, nil
}

type harness struct {
	r     *Router
	store *store.MockStore
	pub   *events.MemoryPublisher
}

type harnessOption func(*Config)

func withRebroadcast() harnessOption {
	return func(c *Config) { c.RebroadcastOnRepDisconnect = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	s := store.NewMockStore()
	pub := events.NewMemoryPublisher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	window := dedupe.New(5*time.Minute, 100)
	t.Cleanup(window.Close)

	cfg := Config{
		Store:  s,
		Stats:  stats.NewAggregator(s, time.UTC),
		Events: pub,
		Dedupe: window,
		Bot: bot.NewAdapter(bot.Config{
			Responder:    cannedResponder{},
			History:      s,
			Keywords:     config.DefaultEscalationKeywords,
			HistoryLimit: 10,
			Logger:       logger,
		}),
		Logger: logger,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &harness{r: New(cfg), store: s, pub: pub}
}

// user creates the stored user if needed.
func (h *harness) user(t *testing.T, id, name string, role store.Role) {
	t.Helper()
	if _, err := h.store.GetUser(context.Background(), id); err == nil {
		return
	}
	require.NoError(t, h.store.CreateUser(context.Background(), &store.User{
		ID: id, Username: name, Email: name + "@example.com", Role: role,
	}))
}

// connect stores and connects a participant, returning its channel.
func (h *harness) connect(t *testing.T, id, name string, role store.Role) (*Participant, *fakeChannel) {
	t.Helper()
	h.user(t, id, name, role)
	ch := newFakeChannel()
	p := &Participant{ID: id, Name: name, Email: name + "@example.com", Role: role, Language: "en", Channel: ch}
	h.r.Connect(context.Background(), p)
	return p, ch
}
