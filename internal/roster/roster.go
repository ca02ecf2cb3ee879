// ABOUTME: Online roster mirror: records connected customers and reps in Redis hashes
// ABOUTME: One hash per role, field = user id, value = JSON entry; Noop is used when disabled

package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one online participant.
type Entry struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Available   bool      `json:"isAvailable"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Mirror receives roster changes from the router.
type Mirror interface {
	Online(ctx context.Context, e Entry) error
	Offline(ctx context.Context, role, userID string) error
}

// Noop ignores roster changes.
type Noop struct{}

func (Noop) Online(context.Context, Entry) error           { return nil }
func (Noop) Offline(context.Context, string, string) error { return nil }

// NewRedisClient connects and pings, failing fast on a bad address.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// RedisMirror stores the roster in Redis hashes.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultTTL expires a role hash that no gateway refreshed, e.g. after a crash.
const DefaultTTL = 24 * time.Hour

// NewRedisMirror wraps an existing client. Keys are "<prefix>:presence:<role>".
func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix, ttl: DefaultTTL}
}

func (m *RedisMirror) key(role string) string {
	return rosterKey(m.prefix, role)
}

func rosterKey(prefix, role string) string {
	return fmt.Sprintf("%s:presence:%s", prefix, role)
}

// Online records or refreshes an entry.
func (m *RedisMirror) Online(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding roster entry: %w", err)
	}
	key := m.key(e.Role)
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, e.UserID, data)
	pipe.Expire(ctx, key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording %s online: %w", e.UserID, err)
	}
	return nil
}

// Offline removes an entry.
func (m *RedisMirror) Offline(ctx context.Context, role, userID string) error {
	if err := m.client.HDel(ctx, m.key(role), userID).Err(); err != nil {
		return fmt.Errorf("recording %s offline: %w", userID, err)
	}
	return nil
}

// List returns the entries for a role ordered by username.
func (m *RedisMirror) List(ctx context.Context, role string) ([]Entry, error) {
	raw, err := m.client.HGetAll(ctx, m.key(role)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing roster: %w", err)
	}
	return decodeEntries(raw)
}

func decodeEntries(raw map[string]string) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	for id, v := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decoding roster entry %s: %w", id, err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Close closes the underlying client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

var (
	_ Mirror = Noop{}
	_ Mirror = (*RedisMirror)(nil)
)
