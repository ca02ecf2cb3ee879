// ABOUTME: Tests for envelope construction and the in-memory publishers
// ABOUTME: The AMQP publisher needs a broker and is exercised only through its JSON shape

package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	env := New("salesdesk-gateway", TypeConversationClaimed, "cust-1", ConversationClaimed{
		CustomerID: "cust-1", RepID: "rep-1", RepName: "bob",
	})

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, "salesdesk-gateway", env.Meta.Producer)
	assert.Equal(t, TypeConversationClaimed, env.Meta.Type)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "cust-1", *env.Meta.CorrelationID)
	assert.False(t, env.Meta.Time.IsZero())

	other := New("salesdesk-gateway", TypeConversationClaimed, "", nil)
	assert.Nil(t, other.Meta.CorrelationID)
	assert.NotEqual(t, env.Meta.ID, other.Meta.ID)
}

func TestEnvelopeJSON(t *testing.T) {
	env := New("gw", TypeSupportRequested, "cust-9", SupportRequested{
		CustomerID: "cust-9", MessageID: "m1", Priority: "urgent", Text: "help asap",
	})

	body, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	meta := decoded["meta"].(map[string]any)
	assert.Equal(t, "support.requested.v1", meta["type"])
	assert.Equal(t, "cust-9", meta["correlation_id"])

	data := decoded["data"].(map[string]any)
	assert.Equal(t, "urgent", data["priority"])
	assert.Equal(t, "m1", data["message_id"])
}

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryPublisher()

	require.NoError(t, pub.Publish(ctx, New("gw", TypeConversationClaimed, "c", nil)))
	require.NoError(t, pub.Publish(ctx, New("gw", TypeConversationCompleted, "c", nil)))

	pub.SetFailing(true)
	assert.ErrorIs(t, pub.Publish(ctx, New("gw", TypeConversationReleased, "c", nil)), ErrPublishFailed)

	assert.Equal(t, []Type{TypeConversationClaimed, TypeConversationCompleted}, pub.Types())
	assert.Len(t, pub.Published(), 2)
	assert.NoError(t, pub.Close())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Envelope{}))
	assert.NoError(t, p.Close())
}
