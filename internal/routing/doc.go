// Package routing is the realtime conversation routing core.
//
// A Router owns three pieces of mutable state behind one mutex: the Presence
// registry of connected customers and reps, the Ownership table that records
// which rep has claimed which customer, and room membership. Every routing
// decision happens under that mutex, so two reps claiming the same customer
// are strictly ordered and exactly one wins.
//
// Channels are non-blocking: Send enqueues onto a per-connection buffer and
// returns immediately, which lets the Router notify participants while still
// holding the lock. Persistence, statistics, event publishing, and the roster
// mirror run after the lock is released. A failed write never rolls back a
// routing decision; the sender gets a persistence_failure error event instead.
package routing
