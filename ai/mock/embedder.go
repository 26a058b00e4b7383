package mock

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbedder is a test double for ai.Embedder. Behavior can be injected
// per test through the function fields; with none set it produces stable
// text-derived vectors so hash identities hold across runs.
type MockEmbedder struct {
	// EmbedTextFunc overrides EmbedText when set.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc overrides EmbedTexts when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu        sync.Mutex
	callCount int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.bump()
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return stableVector(text, 64), nil
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.bump()
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = stableVector(t, 64)
	}
	return out, nil
}

// CallCount reports how many embed calls were made, counting batch calls
// once. Tests use it to prove a stage made no embedding requests.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and any injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

func (m *MockEmbedder) bump() {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
}

// stableVector derives a dim-length vector from the FNV hash of text,
// expanded through an LCG and scaled down. Same text, same vector.
func stableVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	state := h.Sum32()

	v := make([]float32, dim)
	var sumSq float32
	for i := range v {
		state = state*1664525 + 1013904223
		v[i] = float32(state%1000) / 1000.0
		sumSq += v[i] * v[i]
	}
	if sumSq > 0 {
		scale := 1.0 / sumSq
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}
