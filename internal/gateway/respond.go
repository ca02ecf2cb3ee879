// ABOUTME: JSON response helpers and the mapping from routing errors to HTTP statuses
// ABOUTME: Every error body has the shape {"error": "..."}

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/salesdesk-gateway/internal/routing"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// routingStatus maps a router error onto an HTTP status.
func routingStatus(err error) int {
	switch {
	case errors.Is(err, routing.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, routing.ErrNotAssigned), errors.Is(err, routing.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, routing.ErrInvalidReference):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrInvalidFrame):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeRoutingResult writes body on success. A persistence failure still
// succeeded in memory, so body is sent with a warning attached.
func (g *Gateway) writeRoutingResult(w http.ResponseWriter, err error, body map[string]any) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, routing.ErrPersistence):
		body["warning"] = routing.ErrPersistence.Error()
		writeJSON(w, http.StatusOK, body)
	default:
		status := routingStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			g.logger.Error("routing request failed", "error", err)
			msg = "internal server error"
		}
		g.sendJSONError(w, status, msg)
	}
}
