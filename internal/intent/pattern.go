package intent

import (
	"regexp"
	"strings"
)

// PatternMatcher classifies obvious cases without any LLM call.
type PatternMatcher struct{}

// NewPatternMatcher returns the deterministic classifier.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+?\d[\d\s\-\.]{6,}\d`)

	// Confirmations and refusals across the languages the bot serves.
	yesWords = []string{
		"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "correct",
		"ya", "iya", "oke", "siap", "betul", "benar", "gas",
		"si", "sí", "claro", "dale",
	}
	noWords = []string{
		"no", "nope", "cancel", "stop", "nevermind", "never mind",
		"tidak", "gak", "ngga", "batal", "batalkan", "jangan",
		"cancelar", "nada",
	}
	cancelPhrases = []string{
		"cancel", "start over", "forget it", "clear the cart", "empty my cart",
		"batal", "batalkan", "ulang dari awal", "hapus keranjang",
	}
	orderPhrases = []string{
		"checkout", "check out", "place the order", "place my order", "buy it",
		"i'll take it", "proceed", "pesan sekarang", "beli sekarang", "lanjut bayar",
	}
	greetWords = []string{
		"hi", "hello", "hey", "good morning", "good afternoon",
		"halo", "hai", "pagi", "siang", "malam", "hola",
	}
	addressHints = []string{
		"street", "st.", "avenue", "ave", "road", "jalan", "jl.", "no.",
		"apartment", "apt", "block", "rt", "rw", "kelurahan", "kecamatan",
		"city", "kota", "calle",
	}
)

// Classify maps a message to a SalesIntent using patterns alone. The
// returned confidence reflects how unambiguous the match is; unmatched
// messages come back as unknown with zero confidence.
func (m *PatternMatcher) Classify(in Input) *SalesIntent {
	text := strings.TrimSpace(strings.ToLower(in.Text))
	if text == "" {
		return &SalesIntent{Intent: IntentUnknown, Source: "pattern"}
	}

	contact := extractContact(in.Text)
	hasContact := contact != (Contact{})

	// Purchase confirmation: contact details plus a confirming word in one
	// message is the strongest deterministic signal we have.
	if hasContact && containsWord(text, yesWords) {
		return &SalesIntent{
			Intent:     IntentProvideContact,
			Contact:    contact,
			Confidence: 0.95,
			Source:     "pattern",
		}
	}
	if hasContact {
		return &SalesIntent{
			Intent:     IntentProvideContact,
			Contact:    contact,
			Confidence: 0.85,
			Source:     "pattern",
		}
	}

	for _, phrase := range cancelPhrases {
		if strings.Contains(text, phrase) {
			return &SalesIntent{Intent: IntentCancel, Confidence: 0.9, Source: "pattern"}
		}
	}
	for _, phrase := range orderPhrases {
		if strings.Contains(text, phrase) {
			return &SalesIntent{Intent: IntentOrder, Confidence: 0.85, Source: "pattern"}
		}
	}

	if isBareWord(text, noWords) {
		return &SalesIntent{Intent: IntentCancel, Confidence: 0.85, Source: "pattern"}
	}
	if isBareWord(text, yesWords) {
		return &SalesIntent{Intent: IntentConfirm, Confidence: 0.85, Source: "pattern"}
	}
	if isBareWord(text, greetWords) {
		return &SalesIntent{Intent: IntentGreeting, Confidence: 0.8, Source: "pattern"}
	}

	return &SalesIntent{Intent: IntentUnknown, Confidence: 0, Source: "pattern"}
}

func extractContact(text string) Contact {
	var c Contact
	if m := emailRegex.FindString(text); m != "" {
		c.Email = m
	}
	if m := phoneRegex.FindString(text); m != "" {
		digits := strings.Count(m, "0") + strings.Count(m, "1") + strings.Count(m, "2") +
			strings.Count(m, "3") + strings.Count(m, "4") + strings.Count(m, "5") +
			strings.Count(m, "6") + strings.Count(m, "7") + strings.Count(m, "8") +
			strings.Count(m, "9")
		if digits >= 8 {
			c.Phone = strings.TrimSpace(m)
		}
	}
	lower := strings.ToLower(text)
	for _, hint := range addressHints {
		if strings.Contains(lower, hint) {
			c.Address = strings.TrimSpace(text)
			break
		}
	}
	return c
}

// isBareWord reports whether the whole message is one of the words, modulo
// punctuation.
func isBareWord(text string, words []string) bool {
	trimmed := strings.Trim(text, " .,!?")
	for _, w := range words {
		if trimmed == w {
			return true
		}
	}
	return false
}

func containsWord(text string, words []string) bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
