// ABOUTME: Support request lifecycle: request, claim, complete, and release on rep disconnect
// ABOUTME: Ownership changes happen under the router lock; store writes, audit, events, and stats follow

package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/salesdesk-gateway/internal/events"
	"github.com/2389/salesdesk-gateway/internal/store"
)

type identity struct {
	id    string
	name  string
	email string
	lang  string
}

// lookupUser resolves id to a stored user of the given role.
func (r *Router) lookupUser(ctx context.Context, id string, role store.Role) (*store.User, error) {
	u, err := r.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReference, id)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", id, err)
	}
	if u.Role != role {
		return nil, fmt.Errorf("%w: %s is not a %s", ErrInvalidReference, id, role)
	}
	return u, nil
}

// customerIdentity prefers the live participant and falls back to the store.
func (r *Router) customerIdentity(ctx context.Context, customerID string) (identity, error) {
	r.mu.Lock()
	p, ok := r.presence.Find(customerID)
	var id identity
	if ok && !p.IsSales() {
		id = identity{id: p.ID, name: p.Name, email: p.Email, lang: p.Language}
	}
	r.mu.Unlock()
	if ok && id.id != "" {
		return id, nil
	}

	u, err := r.lookupUser(ctx, customerID, store.RoleCustomer)
	if err != nil {
		return identity{}, err
	}
	return identity{id: u.ID, name: u.Username, email: u.Email, lang: u.Language}, nil
}

// RequestSupport opens a support request for a customer and announces it to
// every available rep. Empty text is replaced with a default request line.
func (r *Router) RequestSupport(ctx context.Context, customerID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = textDefaultRequest
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return fmt.Errorf("%w: text exceeds %d characters", ErrInvalidFrame, MaxTextLength)
	}

	cust, err := r.customerIdentity(ctx, customerID)
	if err != nil {
		return err
	}

	msg := &store.Message{
		ID:              uuid.New().String(),
		Text:            text,
		UserID:          customerID,
		Username:        cust.name,
		RequestingSales: true,
		Status:          store.StatusWaiting,
		Priority:        r.priority.Derive(text),
		Lang:            cust.lang,
		CreatedAt:       r.now(),
	}
	saveErr := r.store.SaveMessage(ctx, msg)

	announce := Event{Name: EventNewSalesRequest, Data: NewSalesRequest{
		CustomerID:    customerID,
		CustomerName:  cust.name,
		CustomerEmail: cust.email,
		Message:       text,
		Priority:      msg.Priority,
		Timestamp:     msg.CreatedAt,
		Status:        store.StatusWaiting,
	}}

	r.mu.Lock()
	reps := r.presence.ListAvailableReps()
	for _, rep := range reps {
		r.sendToLocked(rep.ID, announce)
	}
	r.sendToLocked(customerID, Event{Name: EventSalesRequestSent, Data: Notice{Message: textRequestSent}})
	r.mu.Unlock()

	r.logger.Info("support requested",
		"customer_id", customerID,
		"priority", msg.Priority,
		"notified_reps", len(reps),
	)

	r.audit(ctx, customerID, store.AuditRequestSupport, customerID, map[string]any{
		"message_id": msg.ID,
		"priority":   string(msg.Priority),
	})
	r.publish(ctx, events.TypeSupportRequested, customerID, events.SupportRequested{
		CustomerID: customerID,
		MessageID:  msg.ID,
		Priority:   string(msg.Priority),
		Text:       text,
	})
	r.pushStats(ctx)

	if saveErr != nil {
		return r.persistenceError("saving support request", customerID, saveErr)
	}
	return nil
}

// Claim assigns a customer to a connected rep.
func (r *Router) Claim(ctx context.Context, repID, customerID string) error {
	return r.claim(ctx, identity{id: repID}, customerID, true)
}

// ClaimViaRequest is Claim for the HTTP API; the rep need not be connected.
func (r *Router) ClaimViaRequest(ctx context.Context, repID, customerID string) error {
	rep, err := r.lookupUser(ctx, repID, store.RoleSales)
	if err != nil {
		return err
	}
	return r.claim(ctx, identity{id: rep.ID, name: rep.Username}, customerID, false)
}

func (r *Router) claim(ctx context.Context, rep identity, customerID string, live bool) error {
	customer, err := r.lookupUser(ctx, customerID, store.RoleCustomer)
	if err != nil {
		return err
	}
	now := r.now()

	r.mu.Lock()
	if live {
		p, ok := r.presence.Find(rep.id)
		if !ok || !p.IsSales() {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s is not a connected sales rep", ErrInvalidReference, rep.id)
		}
		rep.name = p.Name
	}

	reclaimed, err := r.ownership.Claim(customerID, rep.id, rep.name, now)
	if err != nil {
		if live {
			r.sendToLocked(rep.id, Event{Name: EventConversationAlreadyClaimed, Data: Notice{Message: err.Error()}})
		}
		r.mu.Unlock()
		r.logger.Info("claim rejected", "customer_id", customerID, "rep_id", rep.id, "error", err)
		return err
	}

	confirm := Event{Name: EventConversationClaimed, Data: ConversationClaimed{
		CustomerID:   customerID,
		CustomerName: customer.Username,
		Success:      true,
	}}
	if reclaimed {
		r.sendToLocked(rep.id, confirm)
		r.mu.Unlock()
		r.logger.Debug("re-claim by owner", "customer_id", customerID, "rep_id", rep.id)
		return nil
	}

	r.presence.SetAvailability(rep.id, false)
	r.joinLocked(customerRoom(customerID), rep.id)
	r.sendToLocked(customerID, Event{Name: EventSalesRepJoined, Data: SalesRepJoined{
		SalesRepName: rep.name,
		SalesRepID:   rep.id,
		Message:      fmt.Sprintf("%s from sales team has joined the conversation.", rep.name),
	}})
	r.sendToLocked(rep.id, confirm)
	r.sendToRepsLocked(Event{Name: EventConversationClaimed, Data: ConversationClaimed{
		CustomerID: customerID,
		ClaimedBy:  rep.name,
	}}, rep.id)
	r.broadcastRosterLocked()
	r.mu.Unlock()

	r.logger.Info("conversation claimed", "customer_id", customerID, "rep_id", rep.id, "via_request", !live)

	_, saveErr := r.store.ClaimSalesRequests(ctx, customerID, rep.id, now)
	r.audit(ctx, rep.id, store.AuditClaimConversation, customerID, map[string]any{"rep_name": rep.name})
	r.publish(ctx, events.TypeConversationClaimed, customerID, events.ConversationClaimed{
		CustomerID: customerID,
		RepID:      rep.id,
		RepName:    rep.name,
	})
	r.mirrorRep(ctx, rep.id)
	r.pushStats(ctx)

	if saveErr != nil {
		return r.persistenceError("persisting claim", customerID, saveErr)
	}
	return nil
}

// Complete closes a conversation owned by a connected rep.
func (r *Router) Complete(ctx context.Context, repID, customerID string) error {
	return r.complete(ctx, repID, customerID, true)
}

// CompleteViaRequest is Complete for the HTTP API.
func (r *Router) CompleteViaRequest(ctx context.Context, repID, customerID string) error {
	if _, err := r.lookupUser(ctx, repID, store.RoleSales); err != nil {
		return err
	}
	return r.complete(ctx, repID, customerID, false)
}

func (r *Router) complete(ctx context.Context, repID, customerID string, live bool) error {
	now := r.now()

	r.mu.Lock()
	if live {
		if p, ok := r.presence.Find(repID); !ok || !p.IsSales() {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s is not a connected sales rep", ErrInvalidReference, repID)
		}
	}
	claim, ok := r.ownership.OwnerOf(customerID)
	if !ok || claim.RepID != repID {
		r.mu.Unlock()
		if !ok {
			if _, err := r.lookupUser(ctx, customerID, store.RoleCustomer); err != nil {
				return err
			}
		}
		r.logger.Warn("complete rejected", "customer_id", customerID, "rep_id", repID)
		return ErrNotAssigned
	}

	r.ownership.Release(customerID)
	// a rep still holding other conversations stays busy
	if r.ownership.CountFor(repID) == 0 {
		r.presence.SetAvailability(repID, true)
	}
	r.leaveLocked(customerRoom(customerID), repID)
	r.sendToLocked(customerID, Event{Name: EventConversationCompleted, Data: ConversationCompleted{Message: textCompleted}})
	r.sendToLocked(repID, Event{Name: EventConversationCompleted, Data: ConversationCompleted{CustomerID: customerID, Success: true}})
	r.broadcastRosterLocked()
	r.mu.Unlock()

	r.logger.Info("conversation completed", "customer_id", customerID, "rep_id", repID, "via_request", !live)

	_, saveErr := r.store.CompleteSalesRequests(ctx, customerID, repID, now)
	r.audit(ctx, repID, store.AuditCompleteConversation, customerID, nil)
	r.publish(ctx, events.TypeConversationCompleted, customerID, events.ConversationCompleted{
		CustomerID: customerID,
		RepID:      repID,
	})
	r.mirrorRep(ctx, repID)
	r.pushStats(ctx)

	if saveErr != nil {
		return r.persistenceError("persisting completion", customerID, saveErr)
	}
	return nil
}

// disconnectRepLocked releases every conversation the rep owns and tells each customer.
func (r *Router) disconnectRepLocked(repID string) []string {
	released := r.ownership.ReleaseAllFor(repID)
	notice := Event{Name: EventSalesRepDisconnected, Data: Notice{Message: textRepDisconnected}}
	for _, cid := range released {
		r.leaveLocked(customerRoom(cid), repID)
		r.sendToLocked(cid, notice)
	}
	return released
}

// afterRepRelease persists released claims and optionally re-announces them.
func (r *Router) afterRepRelease(ctx context.Context, repID string, released []string) {
	if len(released) == 0 {
		return
	}
	for _, cid := range released {
		if _, err := r.store.ReleaseSalesRequests(ctx, cid); err != nil {
			r.logger.Error("persisting release", "customer_id", cid, "rep_id", repID, "error", err)
		}
		r.audit(ctx, repID, store.AuditReleaseConversation, cid, map[string]any{"reason": "rep_disconnected"})
		r.publish(ctx, events.TypeConversationReleased, cid, events.ConversationReleased{
			CustomerID: cid,
			RepID:      repID,
			Reason:     "rep_disconnected",
		})
	}
	r.logger.Info("released conversations of disconnected rep", "rep_id", repID, "count", len(released))

	if r.rebroadcast {
		r.rebroadcastReleased(ctx, released)
	}
}

// rebroadcastReleased re-sends newSalesRequest for released conversations still unclaimed.
func (r *Router) rebroadcastReleased(ctx context.Context, released []string) {
	waiting, err := r.store.ListUnclaimedConversations(ctx)
	if err != nil {
		r.logger.Warn("loading unclaimed conversations", "error", err)
		return
	}
	want := make(map[string]bool, len(released))
	for _, cid := range released {
		want[cid] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reps := r.presence.ListAvailableReps()
	for _, conv := range waiting {
		if !want[conv.CustomerID] {
			continue
		}
		if _, owned := r.ownership.OwnerOf(conv.CustomerID); owned {
			continue
		}
		ev := Event{Name: EventNewSalesRequest, Data: NewSalesRequest{
			CustomerID:    conv.CustomerID,
			CustomerName:  conv.Username,
			CustomerEmail: conv.Email,
			Message:       conv.LastMessage,
			Priority:      conv.Priority,
			Timestamp:     conv.LastMessageTime,
			Status:        store.StatusWaiting,
		}}
		for _, rep := range reps {
			r.sendToLocked(rep.ID, ev)
		}
	}
}
