// ABOUTME: Ownership table mapping a customer to the single rep that claimed it
// ABOUTME: Not synchronized; the Router guards it with its mutex

package routing

import (
	"sort"
	"time"
)

// Claim is one ownership entry.
type Claim struct {
	CustomerID string    `json:"customerId"`
	RepID      string    `json:"repId"`
	RepName    string    `json:"repName"`
	ClaimedAt  time.Time `json:"claimedAt"`
}

// Ownership holds at most one claim per customer.
type Ownership struct {
	byCustomer map[string]Claim
}

// NewOwnership creates an empty table.
func NewOwnership() *Ownership {
	return &Ownership{byCustomer: make(map[string]Claim)}
}

// Claim assigns customerID to repID. Claiming a conversation the rep already
// owns reports reclaimed and changes nothing. A conversation owned by another
// rep yields an *AlreadyClaimedError.
func (o *Ownership) Claim(customerID, repID, repName string, at time.Time) (reclaimed bool, err error) {
	if cur, ok := o.byCustomer[customerID]; ok {
		if cur.RepID == repID {
			return true, nil
		}
		return false, &AlreadyClaimedError{CustomerID: customerID, By: cur.RepName}
	}
	o.byCustomer[customerID] = Claim{CustomerID: customerID, RepID: repID, RepName: repName, ClaimedAt: at}
	return false, nil
}

// Release drops the claim on customerID regardless of owner.
func (o *Ownership) Release(customerID string) (Claim, bool) {
	c, ok := o.byCustomer[customerID]
	delete(o.byCustomer, customerID)
	return c, ok
}

// OwnerOf returns the claim on customerID.
func (o *Ownership) OwnerOf(customerID string) (Claim, bool) {
	c, ok := o.byCustomer[customerID]
	return c, ok
}

// ReleaseAllFor drops every claim held by repID and returns the customers, sorted.
func (o *Ownership) ReleaseAllFor(repID string) []string {
	var released []string
	for cid, c := range o.byCustomer {
		if c.RepID == repID {
			released = append(released, cid)
			delete(o.byCustomer, cid)
		}
	}
	sort.Strings(released)
	return released
}

// CountFor returns how many conversations repID owns.
func (o *Ownership) CountFor(repID string) int {
	n := 0
	for _, c := range o.byCustomer {
		if c.RepID == repID {
			n++
		}
	}
	return n
}

// Size returns the number of claimed conversations.
func (o *Ownership) Size() int {
	return len(o.byCustomer)
}

// Claims returns all claims ordered by customer id.
func (o *Ownership) Claims() []Claim {
	out := make([]Claim, 0, len(o.byCustomer))
	for _, c := range o.byCustomer {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}
