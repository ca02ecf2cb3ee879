// ABOUTME: Dictionary translator for short phrases between English and es, fr, hi
// ABOUTME: Uses the reverse dictionary when only the opposite direction exists

package assistant

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type phrase struct{ from, to string }

// dictionaries are ordered so reverse lookups resolve collisions the same way
// every run: a later pair overwrites an earlier one with the same target.
var dictionaries = map[string][]phrase{
	"en-es": {
		{"hello", "hola"}, {"goodbye", "adiós"}, {"thank you", "gracias"}, {"please", "por favor"},
		{"yes", "sí"}, {"no", "no"}, {"good morning", "buenos días"}, {"good evening", "buenas tardes"},
		{"how are you", "cómo estás"}, {"what is your name", "cuál es tu nombre"}, {"my name is", "mi nombre es"},
		{"nice to meet you", "mucho gusto"}, {"excuse me", "disculpe"}, {"sorry", "lo siento"}, {"help", "ayuda"},
		{"water", "agua"}, {"food", "comida"}, {"time", "tiempo"}, {"today", "hoy"}, {"tomorrow", "mañana"},
		{"yesterday", "ayer"},
	},
	"en-fr": {
		{"hello", "bonjour"}, {"goodbye", "au revoir"}, {"thank you", "merci"}, {"please", "s'il vous plaît"},
		{"yes", "oui"}, {"no", "non"}, {"good morning", "bonjour"}, {"good evening", "bonsoir"},
		{"how are you", "comment allez-vous"}, {"what is your name", "quel est votre nom"}, {"my name is", "je m'appelle"},
		{"nice to meet you", "enchanté"}, {"excuse me", "excusez-moi"}, {"sorry", "désolé"}, {"help", "aide"},
		{"water", "eau"}, {"food", "nourriture"}, {"time", "temps"}, {"today", "aujourd'hui"}, {"tomorrow", "demain"},
		{"yesterday", "hier"},
	},
	"en-hi": {
		{"hello", "नमस्ते"}, {"goodbye", "अलविदा"}, {"thank you", "धन्यवाद"}, {"please", "कृपया"},
		{"yes", "हाँ"}, {"no", "नहीं"}, {"good morning", "सुप्रभात"}, {"good evening", "शुभ संध्या"},
		{"how are you", "आप कैसे हैं"}, {"what is your name", "आपका नाम क्या है"}, {"my name is", "मेरा नाम है"},
		{"nice to meet you", "आपसे मिलकर खुशी हुई"}, {"excuse me", "माफ़ करें"}, {"sorry", "माफ़ी"}, {"help", "मदद"},
		{"water", "पानी"}, {"food", "खाना"}, {"time", "समय"}, {"today", "आज"}, {"tomorrow", "कल"},
		{"yesterday", "कल"},
	},
}

// Translation is the result of Translate.
type Translation struct {
	TranslatedText         string  `json:"translatedText"`
	DetectedSourceLanguage string  `json:"detectedSourceLanguage"`
	Confidence             float64 `json:"confidence"`
}

// Translate converts text from source to target. Source "auto" or "" detects
// the language first. Pairs without a dictionary get a marker suffix.
func Translate(text, source, target string) Translation {
	if target == "" {
		target = "en"
	}
	if source == target {
		return Translation{TranslatedText: text, DetectedSourceLanguage: source, Confidence: 1.0}
	}
	if source == "" || source == "auto" {
		source = DetectLanguage(text)
	}

	var out string
	var confidence float64
	if dict, ok := dictionaries[source+"-"+target]; ok {
		out = replaceWords(strings.ToLower(text), forward(dict))
		confidence = 0.9
	} else if dict, ok := dictionaries[target+"-"+source]; ok {
		out = replaceWords(strings.ToLower(text), reverse(dict))
		confidence = 0.85
	} else {
		out = markUntranslated(text, target)
		confidence = 0.7
	}

	return Translation{
		TranslatedText:         capitalizeFirst(out),
		DetectedSourceLanguage: source,
		Confidence:             confidence,
	}
}

func forward(dict []phrase) map[string]string {
	m := make(map[string]string, len(dict))
	for _, p := range dict {
		m[p.from] = p.to
	}
	return m
}

func reverse(dict []phrase) map[string]string {
	m := make(map[string]string, len(dict))
	for _, p := range dict {
		m[p.to] = p.from
	}
	return m
}

// replaceWords substitutes whole-word dictionary keys, longest key first.
// Replaced spans are not rescanned by shorter keys.
func replaceWords(text string, dict map[string]string) string {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	type span struct {
		start, end int
		repl       string
	}
	var spans []span
	overlaps := func(s, e int) bool {
		for _, sp := range spans {
			if s < sp.end && e > sp.start {
				return true
			}
		}
		return false
	}

	for _, k := range keys {
		from := 0
		for {
			i, ok := indexWord(text, k, from)
			if !ok {
				break
			}
			if !overlaps(i, i+len(k)) {
				spans = append(spans, span{i, i + len(k), dict[k]})
			}
			from = i + len(k)
		}
	}
	if len(spans) == 0 {
		return text
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp.start])
		b.WriteString(sp.repl)
		last = sp.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// markUntranslated tags text the dictionaries could not cover with the target code.
func markUntranslated(text, target string) string {
	return text + " (" + target + ")"
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
