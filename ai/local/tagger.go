package local

import (
	"context"
	"sort"

	"github.com/poiesic/cartograph/ai"
)

// Tagger implements ai.Tagger by term-frequency keyword extraction.
type Tagger struct {
	maxTags int
}

// NewTagger creates the heuristic tagger.
//
// Returns ai.Tagger interface to enforce abstraction.
func NewTagger(maxTags int) ai.Tagger {
	if maxTags < 1 {
		maxTags = 5
	}
	return &Tagger{maxTags: maxTags}
}

// TagMessage returns the most frequent non-stopword tokens of the message,
// ties broken by first occurrence.
func (t *Tagger) TagMessage(ctx context.Context, text string) ([]string, error) {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, tok := range tokenize(text) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		counts[tok]++
		if _, ok := firstSeen[tok]; !ok {
			firstSeen[tok] = i
		}
	}

	tags := make([]string, 0, len(counts))
	for tok := range counts {
		tags = append(tags, tok)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return firstSeen[tags[i]] < firstSeen[tags[j]]
	})

	if len(tags) > t.maxTags {
		tags = tags[:t.maxTags]
	}
	return tags, nil
}
