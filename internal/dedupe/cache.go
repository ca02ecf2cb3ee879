// ABOUTME: Thread-safe TTL window for dropping customer messages that clients resend.
// ABOUTME: Keys are scoped per customer so two customers may reuse the same client id.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxSize bounds the window when the caller passes zero.
const DefaultMaxSize = 10000

type entry struct {
	key    string
	seenAt time.Time
}

// Window remembers client message ids for a fixed TTL. When full, the oldest
// id is evicted first.
type Window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a window with the given TTL and maximum size and starts its sweeper.
func New(ttl time.Duration, maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	w := &Window{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

func key(customerID, clientID string) string {
	return customerID + "\x00" + clientID
}

// Duplicate reports whether the customer already sent clientID within the TTL,
// recording it if not. An empty clientID is never a duplicate.
func (w *Window) Duplicate(customerID, clientID string) bool {
	if clientID == "" {
		return false
	}
	k := key(customerID, clientID)
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.index[k]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.seenAt) < w.ttl {
			return true
		}
		// expired: refresh in place
		e.seenAt = now
		w.order.MoveToBack(el)
		return false
	}

	if w.order.Len() >= w.maxSize {
		w.evictOldestLocked()
	}
	w.index[k] = w.order.PushBack(&entry{key: k, seenAt: now})
	return false
}

// Len returns the number of remembered ids, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

func (w *Window) evictOldestLocked() {
	front := w.order.Front()
	if front == nil {
		return
	}
	w.order.Remove(front)
	delete(w.index, front.Value.(*entry).key)
}

func (w *Window) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep drops expired ids. Entries are ordered by seenAt, so it stops at the first live one.
func (w *Window) sweep() {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	for el := w.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.seenAt) < w.ttl {
			return
		}
		next := el.Next()
		w.order.Remove(el)
		delete(w.index, e.key)
		el = next
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
