// ABOUTME: Liveness and readiness endpoints
// ABOUTME: Readiness pings the store and reports how many participants are connected

package gateway

import (
	"context"
	"net/http"
	"time"
)

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Status      string `json:"status"`
	SalesReps   int    `json:"salesReps"`
	Customers   int    `json:"customers"`
	ActiveChats int    `json:"activeChats"`
	Error       string `json:"error,omitempty"`
}

// handleReady returns 200 when the store answers, 503 otherwise.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	state := g.router.Snapshot()
	resp := ReadyResponse{
		Status:      "ready",
		SalesReps:   len(state.Reps),
		Customers:   len(state.Customers),
		ActiveChats: len(state.Claims),
	}

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = "store unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
