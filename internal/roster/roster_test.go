// ABOUTME: Tests for roster key layout and entry decoding
// ABOUTME: Redis round trips are not exercised here; the helpers they rely on are

package roster

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterKey(t *testing.T) {
	assert.Equal(t, "salesdesk:presence:sales", rosterKey("salesdesk", "sales"))
	assert.Equal(t, "x:presence:customer", rosterKey("x", "customer"))
}

func TestDecodeEntries(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	enc := func(e Entry) string {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		return string(b)
	}

	raw := map[string]string{
		"rep-2": enc(Entry{UserID: "rep-2", Username: "carol", Role: "sales", Available: false, ConnectedAt: at}),
		"rep-1": enc(Entry{UserID: "rep-1", Username: "bob", Role: "sales", Available: true, ConnectedAt: at}),
	}

	entries, err := decodeEntries(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Username)
	assert.True(t, entries[0].Available)
	assert.Equal(t, "carol", entries[1].Username)
	assert.True(t, entries[1].ConnectedAt.Equal(at))
}

func TestDecodeEntries_Corrupt(t *testing.T) {
	_, err := decodeEntries(map[string]string{"rep-1": "{not json"})
	assert.Error(t, err)
}

func TestEntryJSONShape(t *testing.T) {
	b, err := json.Marshal(Entry{UserID: "u", Username: "n", Role: "sales", Available: true})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"isAvailable":true`)
	assert.Contains(t, string(b), `"userId":"u"`)
}

func TestNoop(t *testing.T) {
	var m Mirror = Noop{}
	assert.NoError(t, m.Online(context.Background(), Entry{UserID: "u"}))
	assert.NoError(t, m.Offline(context.Background(), "sales", "u"))
}
