// ABOUTME: Support request priority derived from keywords in the request text
// ABOUTME: Urgent keywords win over high ones; anything else is normal

package routing

import (
	"strings"

	"github.com/2389/salesdesk-gateway/internal/config"
	"github.com/2389/salesdesk-gateway/internal/store"
)

// PriorityRules holds the keyword lists, matched as lowercase substrings.
type PriorityRules struct {
	Urgent []string
	High   []string
}

// DefaultPriorityRules returns the stock keyword lists.
func DefaultPriorityRules() PriorityRules {
	return PriorityRules{Urgent: config.DefaultUrgentKeywords, High: config.DefaultHighKeywords}
}

// Derive returns the priority of a support request.
func (r PriorityRules) Derive(text string) store.Priority {
	lower := strings.ToLower(text)
	if containsAny(lower, r.Urgent) {
		return store.PriorityUrgent
	}
	if containsAny(lower, r.High) {
		return store.PriorityHigh
	}
	return store.PriorityNormal
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
