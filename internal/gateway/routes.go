// ABOUTME: chi route table for the HTTP API, WebSocket endpoint, and health probes
// ABOUTME: /api/ is rate limited and authenticated; /api/sales/ additionally requires the sales role

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/salesdesk-gateway/internal/auth"
	"github.com/2389/salesdesk-gateway/internal/ratelimit"
)

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := g.config.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints - no auth required
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Get("/ws", g.websocket.ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		if g.limiter != nil {
			api.Use(ratelimit.Middleware(g.limiter, g.config.RateLimit.Window, g.logger))
		}
		api.Use(auth.HTTPAuthMiddleware(g.store, g.verifier))

		api.Route("/sales", func(s chi.Router) {
			s.Use(auth.RequireSalesHTTP())
			s.Get("/conversations", g.handleListConversations)
			s.Get("/conversation/{customerId}", g.handleGetConversation)
			s.Get("/conversation/{customerId}/audit", g.handleConversationAudit)
			s.Post("/conversation/{customerId}/claim", g.handleClaim)
			s.Post("/conversation/{customerId}/complete", g.handleComplete)
			s.Post("/message", g.handleSalesMessage)
			s.Get("/stats", g.handleStats)
			s.Get("/unclaimed", g.handleUnclaimed)
		})

		api.Route("/chat", func(c chi.Router) {
			c.Get("/messages", g.handleChatMessages)
			c.Get("/users/active", g.handleActiveUsers)
			c.Get("/analytics", g.handleAnalytics)
			c.Post("/detect-language", g.handleDetectLanguage)
			c.Post("/translate", g.handleTranslate)
			c.Post("/ai-response", g.handleAIResponse)
			c.Post("/smart-replies", g.handleSmartReplies)
		})
	})

	return r
}
