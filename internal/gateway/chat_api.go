// ABOUTME: Chat helper HTTP handlers available to any authenticated user
// ABOUTME: Thread paging, active users, language analytics, and the assistant utilities

package gateway

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/2389/salesdesk-gateway/internal/assistant"
	"github.com/2389/salesdesk-gateway/internal/auth"
)

const (
	maxPageLimit      = 100
	activeUsersWindow = 5 * time.Minute
	smartReplyCount   = 3

	// detectionConfidence is reported for every script/marker based detection.
	detectionConfidence = 0.85
)

// PaginationResponse describes one page of a thread.
type PaginationResponse struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// MessagesPageResponse is the body of GET /api/chat/messages.
type MessagesPageResponse struct {
	Messages   []MessageResponse  `json:"messages"`
	Pagination PaginationResponse `json:"pagination"`
}

// ActiveUserResponse is one entry of GET /api/chat/users/active.
type ActiveUserResponse struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// LanguageStat is one language row of the analytics response.
type LanguageStat struct {
	Language    string `json:"language"`
	Count       int    `json:"count"`
	AIResponses int    `json:"aiResponses"`
}

// AnalyticsResponse is the body of GET /api/chat/analytics.
type AnalyticsResponse struct {
	TotalMessages int            `json:"totalMessages"`
	AIResponses   int            `json:"aiResponses"`
	AIShare       float64        `json:"aiShare"`
	Languages     []LanguageStat `json:"languages"`
}

// DetectLanguageRequest is the body of POST /api/chat/detect-language.
type DetectLanguageRequest struct {
	Text string `json:"text"`
}

// TranslateRequest is the body of POST /api/chat/translate.
type TranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// AIResponseRequest is the body of POST /api/chat/ai-response.
type AIResponseRequest struct {
	Message             string           `json:"message"`
	Language            string           `json:"language"`
	ConversationHistory []assistant.Turn `json:"conversationHistory"`
}

// SmartRepliesRequest is the body of POST /api/chat/smart-replies.
type SmartRepliesRequest struct {
	LastMessage string `json:"lastMessage"`
	Language    string `json:"language"`
}

// handleChatMessages handles GET /api/chat/messages?page=N&limit=N for the caller's own thread.
func (g *Gateway) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	page, ok := g.positiveQueryInt(w, r, "page", 1)
	if !ok {
		return
	}
	limit, ok := g.positiveQueryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	limit = min(limit, maxPageLimit)

	p, err := g.store.ListMessagesPage(r.Context(), caller.UserID, page, limit)
	if err != nil {
		g.logger.Error("failed to page messages", "user_id", caller.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	totalPages := 0
	if p.Limit > 0 {
		totalPages = (p.Total + p.Limit - 1) / p.Limit
	}
	resp := MessagesPageResponse{
		Messages: make([]MessageResponse, len(p.Messages)),
		Pagination: PaginationResponse{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: totalPages,
			HasMore:    p.Page < totalPages,
		},
	}
	for i, m := range p.Messages {
		resp.Messages[i] = toMessageResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// positiveQueryInt parses an optional positive integer query parameter,
// writing a 400 and returning false when it is malformed.
func (g *Gateway) positiveQueryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		g.sendJSONError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// handleActiveUsers handles GET /api/chat/users/active: connected participants
// plus anyone seen in the last five minutes.
func (g *Gateway) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	users, err := g.store.ListActiveUsers(r.Context(), time.Now().Add(-activeUsersWindow))
	if err != nil {
		g.logger.Error("failed to list active users", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	byID := make(map[string]*ActiveUserResponse)
	state := g.router.Snapshot()
	for _, p := range state.Reps {
		byID[p.UserID] = &ActiveUserResponse{UserID: p.UserID, Username: p.Username, Online: true}
	}
	for _, p := range state.Customers {
		byID[p.UserID] = &ActiveUserResponse{UserID: p.UserID, Username: p.Username, Online: true}
	}
	for _, u := range users {
		if existing, ok := byID[u.ID]; ok {
			existing.LastSeen = u.LastSeen
			continue
		}
		byID[u.ID] = &ActiveUserResponse{UserID: u.ID, Username: u.Username, LastSeen: u.LastSeen}
	}

	resp := make([]ActiveUserResponse, 0, len(byID))
	for _, u := range byID {
		resp = append(resp, *u)
	}
	sort.Slice(resp, func(i, j int) bool {
		if resp[i].Online != resp[j].Online {
			return resp[i].Online
		}
		return resp[i].Username < resp[j].Username
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleAnalytics handles GET /api/chat/analytics for the caller's thread.
func (g *Gateway) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	counts, err := g.store.GetLanguageBreakdown(r.Context(), caller.UserID)
	if err != nil {
		g.logger.Error("failed to load language breakdown", "user_id", caller.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := AnalyticsResponse{Languages: make([]LanguageStat, len(counts))}
	for i, c := range counts {
		resp.Languages[i] = LanguageStat{Language: c.Lang, Count: c.Count, AIResponses: c.AIResponses}
		resp.TotalMessages += c.Count
		resp.AIResponses += c.AIResponses
	}
	if resp.TotalMessages > 0 {
		resp.AIShare = math.Round(float64(resp.AIResponses)/float64(resp.TotalMessages)*1000) / 1000
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDetectLanguage handles POST /api/chat/detect-language.
func (g *Gateway) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	var req DetectLanguageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"language":   assistant.DetectLanguage(req.Text),
		"confidence": detectionConfidence,
	})
}

// handleTranslate handles POST /api/chat/translate.
func (g *Gateway) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Q) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "q is required")
		return
	}
	writeJSON(w, http.StatusOK, assistant.Translate(req.Q, req.Source, req.Target))
}

// handleAIResponse handles POST /api/chat/ai-response.
func (g *Gateway) handleAIResponse(w http.ResponseWriter, r *http.Request) {
	var req AIResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = assistant.DetectLanguage(req.Message)
	}

	reply, err := g.responder.Respond(r.Context(), req.Message, lang, req.ConversationHistory)
	if err != nil {
		g.logger.Warn("assistant failed", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleSmartReplies handles POST /api/chat/smart-replies.
func (g *Gateway) handleSmartReplies(w http.ResponseWriter, r *http.Request) {
	var req SmartRepliesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": assistant.SmartReplies(req.LastMessage, req.Language, smartReplyCount),
	})
}
