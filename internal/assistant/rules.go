// ABOUTME: Keyword knowledge-base responder that needs no network access
// ABOUTME: Checks greetings, farewells, questions, courtesy, yes/no follow-ups, topics, then a fallback

package assistant

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// RuleModel is reported as Reply.Model for rule-based replies.
const RuleModel = "rules"

type intent struct {
	patterns  []string
	responses []string
}

var knowledgeBase = [][]intent{
	{ // greetings
		{[]string{"hello", "hi", "hey", "good morning", "good evening"}, []string{"Hello! How can I help you today?", "Hi there! What can I do for you?", "Greetings! How may I assist you?"}},
		{[]string{"namaste", "नमस्ते"}, []string{"नमस्ते! मैं आपकी कैसे सहायता कर सकता हूँ?", "Namaste! How can I help you?"}},
	},
	{ // farewells
		{[]string{"bye", "goodbye", "see you", "farewell"}, []string{"Goodbye! Have a great day!", "See you later!", "Take care!"}},
		{[]string{"अलविदा", "बाय"}, []string{"अलविदा! अच्छा दिन हो!", "Goodbye! Take care!"}},
	},
	{ // questions
		{[]string{"how are you", "what's up", "how do you do"}, []string{"I'm doing well, thank you for asking!", "I'm here and ready to help!", "All good! How about you?"}},
		{[]string{"what is your name", "who are you"}, []string{"I'm your AI assistant!", "I'm here to help you with various tasks.", "You can call me your friendly AI helper!"}},
		{[]string{"what can you do", "help me"}, []string{"I can help with translations, answer questions, have conversations, and assist with various tasks!", "I'm here to chat, translate, and help however I can!"}},
	},
	{ // courtesy
		{[]string{"thank you", "thanks"}, []string{"You're welcome!", "Happy to help!", "My pleasure!"}},
		{[]string{"sorry", "apologize"}, []string{"No problem at all!", "It's okay!", "No worries!"}},
	},
}

var fallbacks = map[string][]string{
	"en": {
		"That's interesting! Can you tell me more?",
		"I understand. What would you like to know?",
		"I'm here to help. What can I do for you?",
		"That sounds important. How can I assist?",
		"I see. Is there anything specific you need help with?",
	},
	"hi": {
		"यह दिलचस्प है! क्या आप और बता सकते हैं?",
		"मैं समझ गया। आप क्या जानना चाहते हैं?",
		"मैं यहाँ मदद के लिए हूँ। मैं आपके लिए क्या कर सकता हूँ?",
		"यह महत्वपूर्ण लगता है। मैं कैसे सहायता कर सकता हूँ?",
		"मैं देख रहा हूँ। क्या कोई खास चीज़ है जिसमें आपको मदद चाहिए?",
	},
	"es": {
		"¡Eso es interesante! ¿Puedes contarme más?",
		"Entiendo. ¿Qué te gustaría saber?",
		"Estoy aquí para ayudar. ¿Qué puedo hacer por ti?",
		"Eso suena importante. ¿Cómo puedo asistirte?",
		"Ya veo. ¿Hay algo específico con lo que necesites ayuda?",
	},
}

// RuleResponder answers from a fixed knowledge base.
type RuleResponder struct {
	pick func(n int) int
	now  func() time.Time
}

// NewRuleResponder creates a RuleResponder with random reply selection.
func NewRuleResponder() *RuleResponder {
	return &RuleResponder{pick: rand.IntN, now: time.Now}
}

// Respond never fails.
func (r *RuleResponder) Respond(_ context.Context, text, lang string, history []Turn) (Reply, error) {
	if lang == "" {
		lang = "en"
	}
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, group := range knowledgeBase {
		for _, in := range group {
			if containsAnyWord(lower, in.patterns) {
				return r.fromKnowledgeBase(in.responses, lang), nil
			}
		}
	}

	if reply, ok := followUp(lower, lang, history); ok {
		return reply, nil
	}
	if reply, ok := r.topic(lower, lang); ok {
		return reply, nil
	}

	list, ok := fallbacks[lang]
	if !ok {
		list = fallbacks["en"]
	}
	return Reply{Text: list[r.pick(len(list))], Language: lang, Model: RuleModel, Confidence: 0.6}, nil
}

func (r *RuleResponder) fromKnowledgeBase(responses []string, lang string) Reply {
	text := responses[r.pick(len(responses))]
	if lang == "en" {
		return Reply{Text: text, Language: lang, Model: RuleModel, Confidence: 0.9}
	}
	return Reply{Text: Translate(text, "en", lang).TranslatedText, Language: lang, Model: RuleModel, Confidence: 0.8}
}

// followUp answers a bare yes/no when the previous turn was the assistant's.
func followUp(lower, lang string, history []Turn) (Reply, bool) {
	if len(history) == 0 || !history[len(history)-1].FromBot {
		return Reply{}, false
	}
	hindi := lang == "hi"
	switch {
	case containsWord(lower, "yes") || containsWord(lower, "हाँ"):
		return Reply{Text: choose(hindi, "बहुत अच्छा! आगे बढ़ते हैं।", "Great! Let's continue."), Language: lang, Model: RuleModel, Confidence: 0.8}, true
	case containsWord(lower, "no") || containsWord(lower, "नहीं"):
		return Reply{Text: choose(hindi, "कोई बात नहीं। क्या और कुछ है जिसमें मैं मदद कर सकूं?", "No problem. Is there anything else I can help with?"), Language: lang, Model: RuleModel, Confidence: 0.8}, true
	}
	return Reply{}, false
}

func (r *RuleResponder) topic(lower, lang string) (Reply, bool) {
	hindi := lang == "hi"
	switch {
	case containsWord(lower, "weather") || containsWord(lower, "मौसम"):
		return Reply{Text: choose(hindi,
			"मुझे वर्तमान मौसम की जानकारी नहीं है, लेकिन मैं आपकी अन्य चीजों में मदद कर सकता हूँ!",
			"I don't have access to current weather data, but I can help with other things!"),
			Language: lang, Model: RuleModel, Confidence: 0.7}, true
	case containsWord(lower, "time") || containsWord(lower, "समय"):
		now := r.now().Format("3:04:05 PM")
		return Reply{Text: choose(hindi, "वर्तमान समय है: "+now, "The current time is: "+now),
			Language: lang, Model: RuleModel, Confidence: 0.9}, true
	case containsWord(lower, "calculate") || containsWord(lower, "math") || containsWord(lower, "गणित"):
		return Reply{Text: choose(hindi,
			"मैं बुनियादी गणित में मदद कर सकता हूँ। कृपया अपना सवाल पूछें!",
			"I can help with basic math! Please ask your question."),
			Language: lang, Model: RuleModel, Confidence: 0.8}, true
	}
	return Reply{}, false
}

func choose(hindi bool, hi, en string) string {
	if hindi {
		return hi
	}
	return en
}

var _ Responder = (*RuleResponder)(nil)
