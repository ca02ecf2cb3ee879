// ABOUTME: Language detection by script range and marker words
// ABOUTME: Falls back to English when nothing matches

package assistant

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	spanishMarkers = []string{"hola", "gracias", "por favor", "buenos días", "adiós", "sí", "cómo", "qué", "está", "muy"}
	frenchMarkers  = []string{"bonjour", "merci", "au revoir", "oui", "non", "comment", "est", "très", "vous", "avec"}
	germanMarkers  = []string{"hallo", "danke", "bitte", "guten tag", "auf wiedersehen", "ja", "nein", "wie", "ist", "sehr"}
)

// DetectLanguage guesses the ISO 639-1 code of text.
func DetectLanguage(text string) string {
	for _, r := range text {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			return "hi"
		case r >= 0x0600 && r <= 0x06FF:
			return "ar"
		}
	}
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
	}
	for _, r := range text {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			return "ja"
		}
	}

	lower := strings.ToLower(text)
	switch {
	case containsAnyWord(lower, spanishMarkers):
		return "es"
	case containsAnyWord(lower, frenchMarkers):
		return "fr"
	case containsAnyWord(lower, germanMarkers):
		return "de"
	}
	return "en"
}

func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether phrase occurs in text on word boundaries.
// Combining marks count as word characters so Devanagari matras don't split words.
func containsWord(text, phrase string) bool {
	_, ok := indexWord(text, phrase, 0)
	return ok
}

func indexWord(text, phrase string, from int) (int, bool) {
	if phrase == "" {
		return 0, false
	}
	for from <= len(text) {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return 0, false
		}
		start := from + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start, true
		}
		from = start + 1
	}
	return 0, false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}
