// ABOUTME: Tests for the rule-based responder and smart reply suggestions
// ABOUTME: Reply selection is pinned to the first candidate for determinism

package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponder() *RuleResponder {
	return &RuleResponder{
		pick: func(int) int { return 0 },
		now:  func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) },
	}
}

func TestRuleResponder(t *testing.T) {
	ctx := context.Background()
	r := newTestResponder()
	botLast := []Turn{{Text: "hello"}, {Text: "Hi there!", FromBot: true}}

	tests := []struct {
		name       string
		text       string
		lang       string
		history    []Turn
		want       string
		confidence float64
	}{
		{"greeting", "Hello!", "en", nil, "Hello! How can I help you today?", 0.9},
		{"hindi greeting", "नमस्ते", "hi", nil, "नमस्ते! मैं आपकी कैसे सहायता कर सकता हूँ?", 0.8},
		{"farewell", "ok bye", "en", nil, "Goodbye! Have a great day!", 0.9},
		{"question", "who are you", "en", nil, "I'm your AI assistant!", 0.9},
		{"courtesy", "thanks a lot", "en", nil, "You're welcome!", 0.9},
		{"yes after bot", "yes", "en", botLast, "Great! Let's continue.", 0.8},
		{"no after bot in hindi", "नहीं", "hi", botLast, "कोई बात नहीं। क्या और कुछ है जिसमें मैं मदद कर सकूं?", 0.8},
		{"yes without bot turn", "yes", "en", []Turn{{Text: "x"}}, "That's interesting! Can you tell me more?", 0.6},
		{"weather", "weather tomorrow?", "en", nil, "I don't have access to current weather data, but I can help with other things!", 0.7},
		{"time", "what time is it", "en", nil, "The current time is: 3:04:05 PM", 0.9},
		{"math", "can you do math", "en", nil, "I can help with basic math! Please ask your question.", 0.8},
		{"spanish fallback", "quiero comprar", "es", nil, "¡Eso es interesante! ¿Puedes contarme más?", 0.6},
		{"unknown language fallback", "je voudrais", "fr", nil, "That's interesting! Can you tell me more?", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := r.Respond(ctx, tt.text, tt.lang, tt.history)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Text)
			assert.Equal(t, tt.lang, reply.Language)
			assert.Equal(t, RuleModel, reply.Model)
			assert.Equal(t, tt.confidence, reply.Confidence)
		})
	}
}

func TestRuleResponder_TranslatesKnowledgeBase(t *testing.T) {
	reply, err := newTestResponder().Respond(context.Background(), "hello", "es", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hola! how can i ayuda you hoy?", reply.Text)
	assert.Equal(t, 0.8, reply.Confidence)
}

func TestRuleResponder_DefaultLanguage(t *testing.T) {
	reply, err := newTestResponder().Respond(context.Background(), "hello", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "en", reply.Language)
}

func TestSmartReplies(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		lang  string
		count int
		want  []string
	}{
		{"question", "Can you ship today?", "en", 3, []string{"That's a good question", "I need more information", "You're absolutely right"}},
		{"positive", "that sounds great", "en", 3, []string{"Absolutely!", "I agree", "Tell me more"}},
		{"general hindi", "ठीक है", "hi", 3, []string{"दिलचस्प!", "समझ गया", "और क्या?"}},
		{"count limited", "ok", "en", 2, []string{"Interesting!", "I understand"}},
		{"count defaulted", "ok", "en", 0, []string{"Interesting!", "I understand", "What else?"}},
		{"count capped", "ok", "en", 10, []string{"Interesting!", "I understand", "What else?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SmartReplies(tt.msg, tt.lang, tt.count))
		})
	}
}
