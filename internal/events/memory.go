// ABOUTME: In-process publishers: Nop for disabled event delivery and MemoryPublisher for tests
// ABOUTME: MemoryPublisher records envelopes and can be told to fail

package events

import (
	"context"
	"errors"
	"sync"
)

// Nop discards every envelope.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }

// ErrPublishFailed is returned by MemoryPublisher when failing is enabled.
var ErrPublishFailed = errors.New("publish failed")

// MemoryPublisher keeps published envelopes in memory.
type MemoryPublisher struct {
	mu      sync.Mutex
	envs    []Envelope
	failing bool
	closed  bool
}

// NewMemoryPublisher returns an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// SetFailing makes subsequent publishes return ErrPublishFailed.
func (m *MemoryPublisher) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = fail
}

func (m *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrPublishFailed
	}
	m.envs = append(m.envs, env)
	return nil
}

func (m *MemoryPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns a copy of the recorded envelopes.
func (m *MemoryPublisher) Published() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.envs))
	copy(out, m.envs)
	return out
}

// Types returns the type of each recorded envelope, in publish order.
func (m *MemoryPublisher) Types() []Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Type, 0, len(m.envs))
	for _, e := range m.envs {
		out = append(out, e.Meta.Type)
	}
	return out
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*MemoryPublisher)(nil)
)
