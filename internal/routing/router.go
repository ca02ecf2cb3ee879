// ABOUTME: Conversation router: presence, ownership, and rooms behind a single mutex
// ABOUTME: Handles connect/disconnect, roster broadcasts, stats pushes, and the post-lock side effects

package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/salesdesk-gateway/internal/bot"
	"github.com/2389/salesdesk-gateway/internal/dedupe"
	"github.com/2389/salesdesk-gateway/internal/events"
	"github.com/2389/salesdesk-gateway/internal/roster"
	"github.com/2389/salesdesk-gateway/internal/stats"
	"github.com/2389/salesdesk-gateway/internal/store"
)

const salesRoom = "sales"

func customerRoom(customerID string) string {
	return "customer-" + customerID
}

// StatsSource computes dashboard snapshots.
type StatsSource interface {
	Compute(ctx context.Context, activeChats int) (stats.Snapshot, error)
}

// BotHandler answers unowned customer messages or escalates them.
type BotHandler interface {
	Handle(ctx context.Context, esc bot.Escalator, req bot.Request) (bot.Result, error)
}

// Config wires a Router. Store is required; nil collaborators are replaced
// with no-ops.
type Config struct {
	Store    store.Store
	Stats    StatsSource
	Bot      BotHandler
	Events   events.Publisher
	Producer string
	Roster   roster.Mirror
	Dedupe   *dedupe.Window
	Priority PriorityRules

	// RebroadcastOnRepDisconnect re-announces released conversations to available reps.
	RebroadcastOnRepDisconnect bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Router is the single owner of presence, ownership, and room state.
type Router struct {
	mu        sync.Mutex
	presence  *Presence
	ownership *Ownership
	rooms     map[string]map[string]struct{}

	store       store.Store
	stats       StatsSource
	bot         BotHandler
	publisher   events.Publisher
	producer    string
	roster      roster.Mirror
	dedupe      *dedupe.Window
	priority    PriorityRules
	rebroadcast bool
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Router.
func New(cfg Config) *Router {
	r := &Router{
		presence:    NewPresence(),
		ownership:   NewOwnership(),
		rooms:       make(map[string]map[string]struct{}),
		store:       cfg.Store,
		stats:       cfg.Stats,
		bot:         cfg.Bot,
		publisher:   cfg.Events,
		producer:    cfg.Producer,
		roster:      cfg.Roster,
		dedupe:      cfg.Dedupe,
		priority:    cfg.Priority,
		rebroadcast: cfg.RebroadcastOnRepDisconnect,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if r.publisher == nil {
		r.publisher = events.Nop{}
	}
	if r.producer == "" {
		r.producer = "salesdesk-gateway"
	}
	if r.roster == nil {
		r.roster = roster.Noop{}
	}
	if len(r.priority.Urgent) == 0 && len(r.priority.High) == 0 {
		r.priority = DefaultPriorityRules()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "router")
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Connect registers a participant whose identity was already verified. A
// previous session for the same identity is closed with CloseSessionReplaced.
func (r *Router) Connect(ctx context.Context, p *Participant) {
	if p.ConnectedAt.IsZero() {
		p.ConnectedAt = r.now()
	}

	r.mu.Lock()
	prev := r.presence.Connect(p)
	if p.IsSales() {
		r.joinLocked(salesRoom, p.ID)
	} else {
		r.joinLocked(customerRoom(p.ID), p.ID)
	}
	r.broadcastRosterLocked()
	total := r.presence.Len()
	r.mu.Unlock()

	if prev != nil && prev.Channel != nil && !sameChannel(prev.Channel, p.Channel) {
		prev.Channel.Close(CloseSessionReplaced, "session replaced")
		r.logger.Info("session replaced", "user_id", p.ID, "role", p.Role)
	}

	r.logger.Info("=== PARTICIPANT CONNECTED ===",
		"user_id", p.ID,
		"name", p.Name,
		"role", p.Role,
		"total_connected", total,
	)

	r.mirrorOnline(ctx, p)
	if p.IsSales() {
		r.pushStats(ctx)
	}
}

// Disconnect removes a participant. ch must be the channel that closed; a late
// disconnect from a replaced session is ignored.
func (r *Router) Disconnect(ctx context.Context, id string, ch Channel) {
	r.mu.Lock()
	p, ok := r.presence.Find(id)
	if !ok || !sameChannel(p.Channel, ch) {
		r.mu.Unlock()
		r.logger.Debug("ignoring stale disconnect", "user_id", id)
		return
	}

	var released []string
	if p.IsSales() {
		released = r.disconnectRepLocked(p.ID)
	}
	r.presence.Disconnect(id, ch)
	r.leaveAllLocked(id)
	r.broadcastRosterLocked()
	total := r.presence.Len()
	r.mu.Unlock()

	r.logger.Info("=== PARTICIPANT DISCONNECTED ===",
		"user_id", id,
		"role", p.Role,
		"released", len(released),
		"total_connected", total,
	)

	if err := r.store.TouchLastSeen(ctx, id, r.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("updating last seen", "user_id", id, "error", err)
	}
	if err := r.roster.Offline(ctx, string(p.Role), id); err != nil {
		r.logger.Warn("roster offline", "user_id", id, "error", err)
	}

	if p.IsSales() {
		r.afterRepRelease(ctx, p.ID, released)
		r.pushStats(ctx)
	}
}

// State is a point-in-time view of the router for HTTP listings.
type State struct {
	Claims    []Claim       `json:"claims"`
	Reps      []SalesPerson `json:"salesPersons"`
	Customers []ActiveUser  `json:"customers"`
}

// Snapshot copies the current ownership and presence.
func (r *Router) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Claims:    r.ownership.Claims(),
		Reps:      r.salesPersonsLocked(),
		Customers: r.activeCustomersLocked(),
	}
}

// OwnerOf returns the live claim on a customer.
func (r *Router) OwnerOf(customerID string) (Claim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownership.OwnerOf(customerID)
}

// ActiveChats returns the number of claimed conversations.
func (r *Router) ActiveChats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownership.Size()
}

// Stats computes a snapshot using the live claim count.
func (r *Router) Stats(ctx context.Context) (stats.Snapshot, error) {
	if r.stats == nil {
		return stats.Snapshot{ActiveChats: r.ActiveChats()}, nil
	}
	return r.stats.Compute(ctx, r.ActiveChats())
}

func (r *Router) joinLocked(room, id string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
}

func (r *Router) leaveLocked(room, id string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Router) leaveAllLocked(id string) {
	for room := range r.rooms {
		r.leaveLocked(room, id)
	}
}

// emitToRoomLocked sends ev to every connected member of room except one id.
func (r *Router) emitToRoomLocked(room string, ev Event, except string) {
	for id := range r.rooms[room] {
		if id == except {
			continue
		}
		r.sendToLocked(id, ev)
	}
}

// sendToLocked delivers ev to id if connected. A full or closed channel is logged.
func (r *Router) sendToLocked(id string, ev Event) bool {
	p, ok := r.presence.Find(id)
	if !ok || p.Channel == nil {
		return false
	}
	if !p.Channel.Send(ev) {
		r.logger.Warn("dropping event for unresponsive channel", "user_id", id, "event", ev.Name)
		return false
	}
	return true
}

func (r *Router) sendToRepsLocked(ev Event, except string) {
	for _, rep := range r.presence.Reps() {
		if rep.ID != except {
			r.sendToLocked(rep.ID, ev)
		}
	}
}

func (r *Router) salesPersonsLocked() []SalesPerson {
	reps := r.presence.Reps()
	out := make([]SalesPerson, 0, len(reps))
	for _, p := range reps {
		out = append(out, SalesPerson{Username: p.Name, UserID: p.ID, IsAvailable: p.Available})
	}
	return out
}

func (r *Router) activeCustomersLocked() []ActiveUser {
	customers := r.presence.Customers()
	out := make([]ActiveUser, 0, len(customers))
	for _, p := range customers {
		out = append(out, ActiveUser{Username: p.Name, UserID: p.ID})
	}
	return out
}

// broadcastRosterLocked sends salesPersonsUpdate to everyone and activeUsers to reps.
func (r *Router) broadcastRosterLocked() {
	persons := Event{Name: EventSalesPersonsUpdate, Data: r.salesPersonsLocked()}
	for _, p := range r.presence.byID {
		r.sendToLocked(p.ID, persons)
	}
	r.sendToRepsLocked(Event{Name: EventActiveUsers, Data: r.activeCustomersLocked()}, "")
}

// pushStats recomputes statistics and sends statsUpdate to every rep.
func (r *Router) pushStats(ctx context.Context) {
	if r.stats == nil {
		return
	}
	snap, err := r.stats.Compute(ctx, r.ActiveChats())
	if err != nil {
		r.logger.Warn("computing stats", "error", err)
		return
	}
	r.mu.Lock()
	r.sendToRepsLocked(Event{Name: EventStatsUpdate, Data: snap}, "")
	r.mu.Unlock()
}

func (r *Router) publish(ctx context.Context, typ events.Type, customerID string, data any) {
	if err := r.publisher.Publish(ctx, events.New(r.producer, typ, customerID, data)); err != nil {
		r.logger.Warn("publishing event", "type", typ, "customer_id", customerID, "error", err)
	}
}

func (r *Router) audit(ctx context.Context, actorID string, action store.AuditAction, customerID string, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		TargetType: store.AuditTargetConversation,
		TargetID:   customerID,
		Detail:     detail,
	}
	if err := r.store.AppendAuditLog(ctx, entry); err != nil {
		r.logger.Warn("writing audit log", "action", action, "customer_id", customerID, "error", err)
	}
}

func (r *Router) mirrorOnline(ctx context.Context, p *Participant) {
	r.mu.Lock()
	entry := roster.Entry{
		UserID:      p.ID,
		Username:    p.Name,
		Role:        string(p.Role),
		Available:   p.Available,
		ConnectedAt: p.ConnectedAt,
	}
	r.mu.Unlock()
	if err := r.roster.Online(ctx, entry); err != nil {
		r.logger.Warn("roster online", "user_id", p.ID, "error", err)
	}
}

// mirrorRep refreshes a rep's roster entry after an availability change.
func (r *Router) mirrorRep(ctx context.Context, repID string) {
	r.mu.Lock()
	p, ok := r.presence.Find(repID)
	r.mu.Unlock()
	if ok {
		r.mirrorOnline(ctx, p)
	}
}

// persistenceError wraps a store failure so callers report it as ErrPersistence.
func (r *Router) persistenceError(op, customerID string, err error) error {
	r.logger.Error("persistence failure", "op", op, "customer_id", customerID, "error", err)
	return fmt.Errorf("%s for %s: %w", op, customerID, ErrPersistence)
}
