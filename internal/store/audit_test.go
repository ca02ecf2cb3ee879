// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the audit_log table

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Append(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		ActorID:  "rep-1",
		Action:   AuditClaimConversation,
		TargetID: "cust-1",
		Detail:   map[string]any{"via": "websocket"},
	}

	require.NoError(t, store.AppendAuditLog(ctx, entry))

	// Should have generated ID, timestamp, and target type
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, AuditTargetConversation, entry.TargetType)

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "websocket", entries[0].Detail["via"])
}

func TestAuditStore_RejectsUnknownAction(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendAuditLog(context.Background(), &AuditEntry{
		ActorID:  "rep-1",
		Action:   AuditAction("delete_everything"),
		TargetID: "cust-1",
	})
	assert.Error(t, err)
}

func TestAuditStore_List_Filters(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for name, s := range map[string]Store{"sqlite": newTestStore(t), "mock": NewMockStore()} {
		t.Run(name, func(t *testing.T) {
			seed := []AuditEntry{
				{ActorID: "cust-1", Action: AuditRequestSupport, TargetID: "cust-1", Timestamp: base},
				{ActorID: "rep-1", Action: AuditClaimConversation, TargetID: "cust-1", Timestamp: base.Add(time.Minute)},
				{ActorID: "rep-1", Action: AuditReleaseConversation, TargetID: "cust-1", Timestamp: base.Add(2 * time.Minute)},
				{ActorID: "rep-2", Action: AuditClaimConversation, TargetID: "cust-2", Timestamp: base.Add(3 * time.Minute)},
			}
			for i := range seed {
				require.NoError(t, s.AppendAuditLog(ctx, &seed[i]))
			}

			all, err := s.ListAuditLog(ctx, AuditFilter{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, "rep-2", all[0].ActorID, "newest first")

			target := "cust-1"
			byTarget, err := s.ListAuditLog(ctx, AuditFilter{TargetID: &target})
			require.NoError(t, err)
			assert.Len(t, byTarget, 3)

			action := AuditClaimConversation
			claims, err := s.ListAuditLog(ctx, AuditFilter{Action: &action})
			require.NoError(t, err)
			assert.Len(t, claims, 2)

			actor := "rep-1"
			since := base.Add(90 * time.Second)
			recent, err := s.ListAuditLog(ctx, AuditFilter{ActorID: &actor, Since: &since})
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, AuditReleaseConversation, recent[0].Action)

			limited, err := s.ListAuditLog(ctx, AuditFilter{Limit: 2})
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})
	}
}

func TestNormalizeAuditLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 100},
		{-5, 100},
		{50, 50},
		{5000, 1000},
	}
	for _, tt := range tests {
		if got := normalizeAuditLimit(tt.in); got != tt.want {
			t.Errorf("normalizeAuditLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
