// ABOUTME: Tests for language detection and dictionary translation
// ABOUTME: Covers script ranges, marker words, reverse dictionaries, and whole-word replacement

package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"नमस्ते दोस्त", "hi"},
		{"مرحبا", "ar"},
		{"你好", "zh"},
		{"こんにちは", "ja"},
		{"Hola, necesito ayuda", "es"},
		{"Bonjour tout le monde", "fr"},
		{"Danke schön", "de"},
		{"hello there", "en"},
		{"This is the best offer", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.text))
		})
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("hi there", "hi"))
	assert.False(t, containsWord("this is it", "hi"))
	assert.True(t, containsWord("say hi!", "hi"))
	assert.True(t, containsWord("नमस्ते दोस्त", "नमस्ते"))
	assert.False(t, containsWord("know", "no"))
	assert.False(t, containsWord("anything", ""))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		source     string
		target     string
		want       string
		wantSource string
		confidence float64
	}{
		{"forward", "Hello", "en", "es", "Hola", "en", 0.9},
		{"longest phrase first", "good morning", "en", "es", "Buenos días", "en", 0.9},
		{"partial sentence", "thank you for the help", "en", "es", "Gracias for the ayuda", "en", 0.9},
		{"reverse dictionary", "hola amigo", "es", "en", "Hello amigo", "es", 0.85},
		{"auto detect", "नमस्ते", "auto", "en", "Hello", "hi", 0.85},
		{"reverse collision", "कल", "hi", "en", "Yesterday", "hi", 0.85},
		{"no dictionary", "Hello", "en", "de", "Hello (de)", "en", 0.7},
		{"same language", "whatever", "en", "en", "whatever", "en", 1.0},
		{"french phrase", "how are you", "en", "fr", "Comment allez-vous", "en", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.text, tt.source, tt.target)
			assert.Equal(t, tt.want, got.TranslatedText)
			assert.Equal(t, tt.wantSource, got.DetectedSourceLanguage)
			assert.Equal(t, tt.confidence, got.Confidence)
		})
	}
}

func TestReplaceWords_NoRescan(t *testing.T) {
	dict := map[string]string{"good morning": "buenos días", "good": "bueno"}
	assert.Equal(t, "buenos días and bueno", replaceWords("good morning and good", dict))
}
