// ABOUTME: Message fan-out between a customer and its owning rep, or the assistant when unowned
// ABOUTME: Also relays typing indicators; those are transient and never persisted

package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/salesdesk-gateway/internal/bot"
	"github.com/2389/salesdesk-gateway/internal/store"
)

// CustomerMessage is one inbound customer chat line.
type CustomerMessage struct {
	Text     string
	Room     string
	Lang     string
	ClientID string
}

// RouteCustomerMessage persists a customer message and delivers it to the
// owning rep, or hands it to the assistant when nobody owns the conversation.
// A clientId already accepted within the dedupe window is dropped silently.
func (r *Router) RouteCustomerMessage(ctx context.Context, customerID string, in CustomerMessage) error {
	text, err := normalizeText(in.Text)
	if err != nil {
		return err
	}

	r.mu.Lock()
	p, ok := r.presence.Find(customerID)
	if !ok || p.IsSales() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is not a connected customer", ErrInvalidReference, customerID)
	}
	if in.Lang != "" {
		p.Language = in.Lang
	}
	name, lang := p.Name, p.Language
	r.mu.Unlock()

	// only accepted frames consume their clientId
	if r.dedupe != nil && r.dedupe.Duplicate(customerID, in.ClientID) {
		r.logger.Debug("dropping resent message", "customer_id", customerID, "client_id", in.ClientID)
		return nil
	}

	msg := &store.Message{
		ID:        uuid.New().String(),
		Text:      text,
		UserID:    customerID,
		Username:  name,
		Room:      in.Room,
		Status:    store.StatusWaiting,
		Lang:      lang,
		CreatedAt: r.now(),
	}
	saveErr := r.store.SaveMessage(ctx, msg)

	payload := chatMessage(msg)
	payload.CustomerID = customerID

	r.mu.Lock()
	claim, owned := r.ownership.OwnerOf(customerID)
	if owned {
		r.sendToLocked(claim.RepID, Event{Name: EventMessage, Data: payload})
	}
	r.sendToLocked(customerID, Event{Name: EventMessage, Data: payload})
	r.mu.Unlock()

	var persistErr error
	if saveErr != nil {
		persistErr = r.persistenceError("saving customer message", customerID, saveErr)
	}
	if owned || r.bot == nil {
		return persistErr
	}

	botErr := r.answerWithBot(ctx, customerID, msg)
	return errors.Join(persistErr, botErr)
}

func (r *Router) answerWithBot(ctx context.Context, customerID string, msg *store.Message) error {
	res, err := r.bot.Handle(ctx, r, bot.Request{
		CustomerID: customerID,
		Text:       msg.Text,
		Language:   msg.Lang,
		MessageID:  msg.ID,
	})
	if err != nil {
		r.logger.Warn("bot responder failed", "customer_id", customerID, "error", err)
		return err
	}
	if res.Escalated || res.Reply == nil {
		return nil
	}

	reply := &store.Message{
		ID:           uuid.New().String(),
		Text:         res.Reply.Text,
		UserID:       customerID,
		Username:     assistantDisplayName,
		Room:         msg.Room,
		IsAIResponse: true,
		Status:       store.StatusWaiting,
		Lang:         res.Reply.Language,
		CreatedAt:    r.now(),
	}
	saveErr := r.store.SaveMessage(ctx, reply)

	r.mu.Lock()
	if p, ok := r.presence.Find(customerID); ok && res.Language != "" {
		p.Language = res.Language
	}
	r.sendToLocked(customerID, Event{Name: EventMessage, Data: chatMessage(reply)})
	r.mu.Unlock()

	if saveErr != nil {
		return r.persistenceError("saving assistant reply", customerID, saveErr)
	}
	return nil
}

// RouteRepMessage delivers a reply from the owning rep to the customer.
func (r *Router) RouteRepMessage(ctx context.Context, repID, customerID, text string) (*store.Message, error) {
	return r.repMessage(ctx, identity{id: repID}, customerID, text, true)
}

// MessageViaRequest is RouteRepMessage for the HTTP API.
func (r *Router) MessageViaRequest(ctx context.Context, repID, customerID, text string) (*store.Message, error) {
	rep, err := r.lookupUser(ctx, repID, store.RoleSales)
	if err != nil {
		return nil, err
	}
	return r.repMessage(ctx, identity{id: rep.ID, name: rep.Username}, customerID, text, false)
}

func (r *Router) repMessage(ctx context.Context, rep identity, customerID, text string, live bool) (*store.Message, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if live {
		p, ok := r.presence.Find(rep.id)
		if !ok || !p.IsSales() {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s is not a connected sales rep", ErrInvalidReference, rep.id)
		}
		rep.name = p.Name
	}
	claim, ok := r.ownership.OwnerOf(customerID)
	r.mu.Unlock()
	if !ok || claim.RepID != rep.id {
		r.logger.Warn("rep message rejected", "customer_id", customerID, "rep_id", rep.id)
		return nil, ErrNotAssigned
	}

	now := r.now()
	msg := &store.Message{
		ID:              uuid.New().String(),
		Text:            text,
		UserID:          customerID,
		Username:        fmt.Sprintf("Sales Rep (%s)", rep.name),
		IsSalesResponse: true,
		SalesPersonID:   rep.id,
		Room:            store.DefaultRoom,
		Status:          store.StatusActive,
		Lang:            "en",
		CreatedAt:       now,
	}
	r.mu.Lock()
	if p, ok := r.presence.Find(customerID); ok && p.Language != "" {
		msg.Lang = p.Language
	}
	r.mu.Unlock()
	last, err := r.store.LastCustomerMessageBefore(ctx, customerID, now)
	switch {
	case err == nil:
		ms := now.Sub(last.CreatedAt).Milliseconds()
		msg.ResponseTimeMS = &ms
	case !errors.Is(err, store.ErrNotFound):
		r.logger.Warn("computing response time", "customer_id", customerID, "error", err)
	}

	// ownership may have moved while the store was consulted
	r.mu.Lock()
	claim, ok = r.ownership.OwnerOf(customerID)
	if !ok || claim.RepID != rep.id {
		r.mu.Unlock()
		return nil, ErrNotAssigned
	}
	r.sendToLocked(customerID, Event{Name: EventMessage, Data: chatMessage(msg)})
	r.sendToLocked(rep.id, Event{Name: EventMessageSent, Data: MessageSent{MessageID: msg.ID, CustomerID: customerID}})
	r.mu.Unlock()

	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return msg, r.persistenceError("saving rep message", customerID, err)
	}
	return msg, nil
}

// Typing relays a typing indicator. Reps reach only customers they own;
// customers reach only their owning rep. Unrouted indicators are dropped.
func (r *Router) Typing(ctx context.Context, fromID, customerID string, stop bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, ok := r.presence.Find(fromID)
	if !ok {
		return
	}
	if !from.IsSales() {
		customerID = from.ID
	}
	claim, owned := r.ownership.OwnerOf(customerID)
	if !owned {
		return
	}

	room := customerRoom(customerID)
	if from.IsSales() {
		if claim.RepID != from.ID {
			r.logger.Debug("dropping typing from non-owner", "rep_id", from.ID, "customer_id", customerID)
			return
		}
		name := EventSalesTyping
		if stop {
			name = EventSalesStopTyping
		}
		r.emitToRoomLocked(room, Event{Name: name, Data: SalesTyping{SalesRepName: from.Name}}, from.ID)
		return
	}

	name := EventCustomerTyping
	if stop {
		name = EventCustomerStopTyping
	}
	r.emitToRoomLocked(room, Event{Name: name, Data: CustomerTyping{CustomerID: from.ID, CustomerName: from.Name}}, from.ID)
}
