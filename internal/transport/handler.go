// ABOUTME: HTTP handler that authenticates a WebSocket upgrade and pumps frames into the router
// ABOUTME: Unauthenticated handshakes are refused with 401 before any upgrade happens

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/2389/salesdesk-gateway/internal/auth"
	"github.com/2389/salesdesk-gateway/internal/routing"
)

// Router is the subset of routing.Router the handler drives.
type Router interface {
	Connect(ctx context.Context, p *routing.Participant)
	Disconnect(ctx context.Context, id string, ch routing.Channel)
	Dispatch(ctx context.Context, p *routing.Participant, in routing.Inbound)
	Reject(p *routing.Participant, err error)
}

// Handler serves the /ws endpoint.
type Handler struct {
	router   Router
	users    auth.UserLookup
	verifier auth.TokenVerifier
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Router         Router
	Users          auth.UserLookup
	Verifier       auth.TokenVerifier
	Options        Options
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewHandler creates a WebSocket handler. An empty AllowedOrigins accepts any origin.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	return &Handler{
		router:   cfg.Router,
		users:    cfg.Users,
		verifier: cfg.Verifier,
		opts:     cfg.Options.withDefaults(),
		logger:   logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.HandshakeToken(r)
	if !ok {
		h.logger.Warn("websocket handshake without token", "remote", r.RemoteAddr)
		writeUnauthorized(w, "Authentication error")
		return
	}
	ac, err := auth.Authenticate(r.Context(), h.users, h.verifier, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownUser) || errors.Is(err, auth.ErrInvalidToken) ||
			errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrMissingClaim) {
			h.logger.Warn("websocket authentication failed", "remote", r.RemoteAddr, "error", err)
			writeUnauthorized(w, "Authentication error")
			return
		}
		h.logger.Error("websocket authentication unavailable", "error", err)
		http.Error(w, `{"error":"authentication unavailable"}`, http.StatusInternalServerError)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	// the hijacked connection outlives the request context
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn := NewConn(ws, h.opts, h.logger)
	conn.Start()

	p := &routing.Participant{
		ID:       ac.UserID,
		Name:     ac.Username,
		Email:    ac.Email,
		Role:     ac.Role,
		Language: ac.Language,
		Channel:  conn,
	}
	h.router.Connect(ctx, p)
	defer func() {
		h.router.Disconnect(ctx, p.ID, conn)
		conn.Close(websocket.CloseNormalClosure, "")
	}()

	h.readLoop(ctx, conn, p)
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, p *routing.Participant) {
	conn.prepareRead()
	for {
		kind, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debug("websocket read ended", "user_id", p.ID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			h.router.Reject(p, routing.ErrInvalidFrame)
			continue
		}

		in, err := routing.DecodeInbound(data)
		if err != nil {
			h.router.Reject(p, err)
			continue
		}
		h.router.Dispatch(ctx, p, in)
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
