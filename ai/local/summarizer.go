package local

import (
	"context"
	"sort"
	"strings"

	"github.com/poiesic/cartograph/ai"
)

// Summarizer implements ai.Summarizer by extractive sentence scoring:
// sentences are ranked by the frequency of their non-stopword tokens across
// the whole input, and the top sentences are emitted in original order.
type Summarizer struct{}

// NewSummarizer creates the heuristic extractive summarizer.
//
// Returns ai.Summarizer interface to enforce abstraction.
func NewSummarizer() ai.Summarizer {
	return &Summarizer{}
}

// SummarizeChat summarizes one conversation, preferring the title when
// present.
func (s *Summarizer) SummarizeChat(ctx context.Context, title string, messages []string) (string, error) {
	body := extractive(strings.Join(messages, " "), 3)
	if title != "" && body != "" {
		return title + ". " + body, nil
	}
	if title != "" {
		return title, nil
	}
	return body, nil
}

// SummarizeCluster summarizes related excerpts.
func (s *Summarizer) SummarizeCluster(ctx context.Context, excerpts []string) (string, error) {
	return extractive(strings.Join(excerpts, " "), 2), nil
}

// extractive picks the maxSentences highest-scoring sentences, in original
// order. A sentence scores the mean corpus frequency of its content tokens,
// so short topical sentences are not drowned out by long rambling ones.
func extractive(text string, maxSentences int) string {
	sentences := splitSentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := make(map[string]int)
	for _, tok := range tokenize(text) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		freq[tok]++
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i, sent := range sentences {
		toks := tokenize(sent)
		var sum, n float64
		for _, tok := range toks {
			if len(tok) < 3 || stopwords[tok] {
				continue
			}
			sum += float64(freq[tok])
			n++
		}
		sc := 0.0
		if n > 0 {
			sc = sum / n
		}
		ranked = append(ranked, scored{idx: i, score: sc})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].idx < ranked[j].idx
	})

	keep := ranked[:maxSentences]
	sort.Slice(keep, func(i, j int) bool { return keep[i].idx < keep[j].idx })

	parts := make([]string, len(keep))
	for i, k := range keep {
		parts[i] = sentences[k.idx]
	}
	return strings.Join(parts, " ")
}
