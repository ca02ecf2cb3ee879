// ABOUTME: Sales dashboard HTTP handlers: conversation listings, claim/complete, replies, stats
// ABOUTME: Mutations go through the router's ViaRequest entry points so ownership rules stay in one place

package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/salesdesk-gateway/internal/auth"
	"github.com/2389/salesdesk-gateway/internal/routing"
	"github.com/2389/salesdesk-gateway/internal/store"
)

// conversationHistoryLimit caps GET /api/sales/conversation/{id}.
const conversationHistoryLimit = 100

// OwnerResponse is the live owner of a conversation.
type OwnerResponse struct {
	RepID     string    `json:"repId"`
	RepName   string    `json:"repName"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// ConversationResponse is one row of the sales dashboard.
type ConversationResponse struct {
	CustomerID      string         `json:"customerId"`
	Username        string         `json:"username"`
	Email           string         `json:"email"`
	LastMessage     string         `json:"lastMessage"`
	LastMessageTime time.Time      `json:"lastMessageTime"`
	MessageCount    int            `json:"messageCount"`
	Priority        store.Priority `json:"priority"`
	Status          store.Status   `json:"status"`
	HandledBy       string         `json:"handledBy,omitempty"`
	HandledAt       *time.Time     `json:"handledAt,omitempty"`
	Owner           *OwnerResponse `json:"owner,omitempty"`
}

// MessageResponse is a persisted chat turn.
type MessageResponse struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	UserID          string         `json:"userId"`
	Username        string         `json:"username"`
	Room            string         `json:"room,omitempty"`
	RequestingSales bool           `json:"requestingSales,omitempty"`
	IsSalesResponse bool           `json:"isSalesResponse,omitempty"`
	IsAIResponse    bool           `json:"isAIResponse,omitempty"`
	SalesPersonID   string         `json:"salesPersonId,omitempty"`
	Status          store.Status   `json:"status,omitempty"`
	Priority        store.Priority `json:"priority,omitempty"`
	Lang            string         `json:"lang,omitempty"`
	ResponseTimeMS  *int64         `json:"responseTimeMs,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// UserResponse is a registered user.
type UserResponse struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     store.Role `json:"role"`
	Language string     `json:"language,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// ConversationDetailResponse is the body of GET /api/sales/conversation/{id}.
type ConversationDetailResponse struct {
	Customer UserResponse      `json:"customer"`
	Messages []MessageResponse `json:"messages"`
	Owner    *OwnerResponse    `json:"owner,omitempty"`
}

// AuditResponse is one audit log entry.
type AuditResponse struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actorId"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// SalesMessageRequest is the body of POST /api/sales/message.
type SalesMessageRequest struct {
	CustomerID string `json:"customerId"`
	Text       string `json:"text"`
}

func toMessageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:              m.ID,
		Text:            m.Text,
		UserID:          m.UserID,
		Username:        m.Username,
		Room:            m.Room,
		RequestingSales: m.RequestingSales,
		IsSalesResponse: m.IsSalesResponse,
		IsAIResponse:    m.IsAIResponse,
		SalesPersonID:   m.SalesPersonID,
		Status:          m.Status,
		Priority:        m.Priority,
		Lang:            m.Lang,
		ResponseTimeMS:  m.ResponseTimeMS,
		Timestamp:       m.CreatedAt,
	}
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		Language: u.Language,
		LastSeen: u.LastSeen,
	}
}

func toConversationResponse(c *store.ConversationSummary, owners map[string]routing.Claim) ConversationResponse {
	resp := ConversationResponse{
		CustomerID:      c.CustomerID,
		Username:        c.Username,
		Email:           c.Email,
		LastMessage:     c.LastMessage,
		LastMessageTime: c.LastMessageTime,
		MessageCount:    c.MessageCount,
		Priority:        c.Priority,
		Status:          c.Status,
		HandledBy:       c.HandledBy,
		HandledAt:       c.HandledAt,
	}
	if claim, ok := owners[c.CustomerID]; ok {
		resp.Owner = toOwnerResponse(claim)
	}
	return resp
}

func toOwnerResponse(c routing.Claim) *OwnerResponse {
	return &OwnerResponse{RepID: c.RepID, RepName: c.RepName, ClaimedAt: c.ClaimedAt}
}

func (g *Gateway) liveOwners() map[string]routing.Claim {
	claims := g.router.Snapshot().Claims
	owners := make(map[string]routing.Claim, len(claims))
	for _, c := range claims {
		owners[c.CustomerID] = c
	}
	return owners
}

// handleListConversations handles GET /api/sales/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := g.store.ListSupportConversations(r.Context())
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	owners := g.liveOwners()
	resp := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, toConversationResponse(c, owners))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUnclaimed handles GET /api/sales/unclaimed.
func (g *Gateway) handleUnclaimed(w http.ResponseWriter, r *http.Request) {
	convs, err := g.store.ListUnclaimedConversations(r.Context())
	if err != nil {
		g.logger.Error("failed to list unclaimed conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	owners := g.liveOwners()
	resp := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		// a claim whose persistence failed is still owned
		if _, owned := owners[c.CustomerID]; owned {
			continue
		}
		resp = append(resp, toConversationResponse(c, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetConversation handles GET /api/sales/conversation/{customerId}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")

	customer, err := g.store.GetUser(r.Context(), customerID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && customer.Role != store.RoleCustomer) {
		g.sendJSONError(w, http.StatusNotFound, "customer not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get customer", "customer_id", customerID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msgs, err := g.store.ListCustomerMessages(r.Context(), customerID, conversationHistoryLimit)
	if err != nil {
		g.logger.Error("failed to get messages", "customer_id", customerID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ConversationDetailResponse{
		Customer: toUserResponse(customer),
		Messages: make([]MessageResponse, len(msgs)),
	}
	for i, m := range msgs {
		resp.Messages[i] = toMessageResponse(m)
	}
	if claim, ok := g.router.OwnerOf(customerID); ok {
		resp.Owner = toOwnerResponse(claim)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConversationAudit handles GET /api/sales/conversation/{customerId}/audit.
// Supports ?limit=N (default 100, max 1000).
func (g *Gateway) handleConversationAudit(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 1000)
	}

	targetType := store.AuditTargetConversation
	entries, err := g.store.ListAuditLog(r.Context(), store.AuditFilter{
		TargetType: &targetType,
		TargetID:   &customerID,
		Limit:      limit,
	})
	if err != nil {
		g.logger.Error("failed to list audit log", "customer_id", customerID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AuditResponse, len(entries))
	for i, e := range entries {
		resp[i] = AuditResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			Timestamp: e.Timestamp,
			Detail:    e.Detail,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClaim handles POST /api/sales/conversation/{customerId}/claim.
func (g *Gateway) handleClaim(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	rep := auth.MustFromContext(r.Context())

	err := g.router.ClaimViaRequest(r.Context(), rep.UserID, customerID)
	g.writeRoutingResult(w, err, map[string]any{"success": true, "customerId": customerID})
}

// handleComplete handles POST /api/sales/conversation/{customerId}/complete.
func (g *Gateway) handleComplete(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	rep := auth.MustFromContext(r.Context())

	err := g.router.CompleteViaRequest(r.Context(), rep.UserID, customerID)
	g.writeRoutingResult(w, err, map[string]any{"success": true, "customerId": customerID})
}

// handleSalesMessage handles POST /api/sales/message.
func (g *Gateway) handleSalesMessage(w http.ResponseWriter, r *http.Request) {
	var req SalesMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CustomerID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "customerId is required")
		return
	}
	rep := auth.MustFromContext(r.Context())

	msg, err := g.router.MessageViaRequest(r.Context(), rep.UserID, req.CustomerID, req.Text)
	body := map[string]any{"success": true}
	if msg != nil {
		body["message"] = toMessageResponse(msg)
	}
	g.writeRoutingResult(w, err, body)
}

// handleStats handles GET /api/sales/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := g.router.Stats(r.Context())
	if err != nil {
		g.logger.Error("failed to compute stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
