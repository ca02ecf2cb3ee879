// ABOUTME: Presence registry of connected customers and sales reps
// ABOUTME: Not synchronized; the Router guards it with its mutex

package routing

import (
	"sort"
	"time"

	"github.com/2389/salesdesk-gateway/internal/store"
)

// Participant is a connected customer or rep.
type Participant struct {
	ID          string
	Name        string
	Email       string
	Role        store.Role
	Language    string
	Channel     Channel
	Available   bool
	ConnectedAt time.Time
}

// IsSales reports whether the participant is a sales rep.
func (p *Participant) IsSales() bool {
	return p.Role == store.RoleSales
}

// Presence maps identities to their live participant record.
type Presence struct {
	byID map[string]*Participant
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{byID: make(map[string]*Participant)}
}

// Connect registers p and returns the entry it replaced, if any. Reps start
// available; a rep replacing its own session keeps its availability.
func (pr *Presence) Connect(p *Participant) *Participant {
	prev := pr.byID[p.ID]
	if p.IsSales() {
		p.Available = true
		if prev != nil {
			p.Available = prev.Available
		}
	}
	pr.byID[p.ID] = p
	return prev
}

// Disconnect removes id only if ch is the channel currently registered for it.
func (pr *Presence) Disconnect(id string, ch Channel) (*Participant, bool) {
	p, ok := pr.byID[id]
	if !ok || !sameChannel(p.Channel, ch) {
		return nil, false
	}
	delete(pr.byID, id)
	return p, true
}

// Find returns the participant registered for id.
func (pr *Presence) Find(id string) (*Participant, bool) {
	p, ok := pr.byID[id]
	return p, ok
}

// SetAvailability flips a connected rep's availability.
func (pr *Presence) SetAvailability(repID string, available bool) bool {
	p, ok := pr.byID[repID]
	if !ok || !p.IsSales() {
		return false
	}
	p.Available = available
	return true
}

// ListAvailableReps returns connected reps accepting new conversations. No order is guaranteed.
func (pr *Presence) ListAvailableReps() []*Participant {
	var out []*Participant
	for _, p := range pr.byID {
		if p.IsSales() && p.Available {
			out = append(out, p)
		}
	}
	return out
}

// Reps returns connected reps ordered by name.
func (pr *Presence) Reps() []*Participant {
	return pr.byRole(store.RoleSales)
}

// Customers returns connected customers ordered by name.
func (pr *Presence) Customers() []*Participant {
	return pr.byRole(store.RoleCustomer)
}

// Len returns the number of connected participants.
func (pr *Presence) Len() int {
	return len(pr.byID)
}

func (pr *Presence) byRole(role store.Role) []*Participant {
	var out []*Participant
	for _, p := range pr.byID {
		if p.Role == role {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sameChannel(a, b Channel) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}
