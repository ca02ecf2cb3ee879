// ABOUTME: Canned reply suggestions for the customer chat composer
// ABOUTME: Picks a question, positive, or general set in English or Hindi

package assistant

import "strings"

var (
	questionReplies = map[bool][]string{
		false: {"That's a good question", "I need more information", "You're absolutely right"},
		true:  {"यह एक अच्छा सवाल है", "मुझे और जानकारी चाहिए", "आप सही कह रहे हैं"},
	}
	positiveReplies = map[bool][]string{
		false: {"Absolutely!", "I agree", "Tell me more"},
		true:  {"बिल्कुल सही!", "मैं सहमत हूँ", "और भी बताइए"},
	}
	generalReplies = map[bool][]string{
		false: {"Interesting!", "I understand", "What else?"},
		true:  {"दिलचस्प!", "समझ गया", "और क्या?"},
	}
)

// SmartReplies suggests up to count short answers to lastMessage.
func SmartReplies(lastMessage, lang string, count int) []string {
	if count <= 0 {
		count = 3
	}
	lower := strings.ToLower(lastMessage)
	hindi := lang == "hi"

	var set []string
	switch {
	case strings.Contains(lower, "?") || containsAnyWord(lower, []string{"how", "what", "कैसे", "क्या"}):
		set = questionReplies[hindi]
	case containsAnyWord(lower, []string{"good", "great", "awesome", "अच्छा", "बहुत बढ़िया"}):
		set = positiveReplies[hindi]
	default:
		set = generalReplies[hindi]
	}

	if count > len(set) {
		count = len(set)
	}
	out := make([]string, count)
	copy(out, set[:count])
	return out
}
