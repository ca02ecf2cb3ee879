// ABOUTME: Maps decoded inbound events onto router operations for a connected participant
// ABOUTME: Rejections come back to the sender as typed error events, never as dropped frames

package routing

import (
	"context"
	"errors"
)

// Dispatch runs one inbound event on behalf of p and reports any failure to p.
func (r *Router) Dispatch(ctx context.Context, p *Participant, in Inbound) {
	if !in.AllowedFor(p.Role) {
		r.logger.Warn("event not allowed for role", "user_id", p.ID, "role", p.Role, "event", in.Name)
		r.reply(p, ErrAccessDenied)
		return
	}

	var err error
	switch in.Name {
	case InRequestSalesSupport:
		err = r.RequestSupport(ctx, p.ID, in.Text)
	case InCustomerMessage:
		err = r.RouteCustomerMessage(ctx, p.ID, CustomerMessage{
			Text:     in.Text,
			Room:     in.Room,
			Lang:     in.Lang,
			ClientID: in.ClientID,
		})
	case InCustomerTyping:
		r.Typing(ctx, p.ID, "", false)
	case InCustomerStopTyping:
		r.Typing(ctx, p.ID, "", true)
	case InClaimConversation:
		err = r.Claim(ctx, p.ID, in.CustomerID)
		// the loser already received conversationAlreadyClaimed
		if errors.Is(err, ErrAlreadyClaimed) {
			err = nil
		}
	case InSalesMessage:
		_, err = r.RouteRepMessage(ctx, p.ID, in.CustomerID, in.Text)
	case InCompleteConversation:
		err = r.Complete(ctx, p.ID, in.CustomerID)
	case InSalesTyping:
		r.Typing(ctx, p.ID, in.CustomerID, false)
	case InSalesStopTyping:
		r.Typing(ctx, p.ID, in.CustomerID, true)
	}

	if err != nil {
		r.logger.Debug("dispatch failed", "user_id", p.ID, "event", in.Name, "error", err)
		r.reply(p, err)
	}
}

// Reject reports a frame that failed to decode.
func (r *Router) Reject(p *Participant, err error) {
	r.reply(p, err)
}

func (r *Router) reply(p *Participant, err error) {
	if p.Channel == nil {
		return
	}
	p.Channel.Send(errorEvent(err))
}
