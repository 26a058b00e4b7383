package local

import "strings"

// stopwords excluded from tag and summary scoring. Small on purpose: the
// heuristic services only need to avoid promoting glue words.
var stopwords = map[string]bool{
	"a": true, "about": true, "after": true, "all": true, "also": true,
	"an": true, "and": true, "any": true, "are": true, "as": true,
	"at": true, "be": true, "because": true, "been": true, "but": true,
	"by": true, "can": true, "could": true, "did": true, "do": true,
	"does": true, "for": true, "from": true, "get": true, "got": true,
	"had": true, "has": true, "have": true, "he": true, "her": true,
	"here": true, "him": true, "his": true, "how": true, "i": true,
	"if": true, "in": true, "into": true, "is": true, "it": true,
	"its": true, "just": true, "like": true, "me": true, "my": true,
	"no": true, "not": true, "of": true, "on": true, "one": true,
	"or": true, "our": true, "out": true, "she": true, "so": true,
	"some": true, "than": true, "that": true, "the": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "up": true, "us": true, "was": true,
	"we": true, "were": true, "what": true, "when": true, "which": true,
	"who": true, "will": true, "with": true, "would": true, "you": true,
	"your": true,
}

// tokenize lowercases text and splits it into alphanumeric word tokens.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// splitSentences splits text on sentence-ending punctuation. Crude, but the
// heuristic summarizer only needs rough sentence boundaries.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
