package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/cartograph/ai"
)

// MockTagger is a test double for ai.Tagger.
type MockTagger struct {
	// TagMessageFunc is called by TagMessage if set.
	TagMessageFunc func(ctx context.Context, text string) ([]string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockTagger creates a mock tagger with default deterministic behavior.
func NewMockTagger() *MockTagger {
	return &MockTagger{}
}

// TagMessage returns the first distinct words of the message as tags, unless
// overridden.
func (m *MockTagger) TagMessage(ctx context.Context, text string) ([]string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.TagMessageFunc != nil {
		return m.TagMessageFunc(ctx, text)
	}

	seen := make(map[string]bool)
	var tags []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == 3 {
			break
		}
	}
	return tags, nil
}

// CallCount returns the number of times TagMessage was called.
func (m *MockTagger) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockSummarizer is a test double for ai.Summarizer.
type MockSummarizer struct {
	// SummarizeChatFunc is called by SummarizeChat if set.
	SummarizeChatFunc func(ctx context.Context, title string, messages []string) (string, error)

	// SummarizeClusterFunc is called by SummarizeCluster if set.
	SummarizeClusterFunc func(ctx context.Context, excerpts []string) (string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockSummarizer creates a mock summarizer with default deterministic
// behavior.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// SummarizeChat returns a stable synthetic summary unless overridden.
func (m *MockSummarizer) SummarizeChat(ctx context.Context, title string, messages []string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.SummarizeChatFunc != nil {
		return m.SummarizeChatFunc(ctx, title, messages)
	}
	return "summary of " + title, nil
}

// SummarizeCluster returns a stable synthetic summary unless overridden.
func (m *MockSummarizer) SummarizeCluster(ctx context.Context, excerpts []string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.SummarizeClusterFunc != nil {
		return m.SummarizeClusterFunc(ctx, excerpts)
	}
	if len(excerpts) == 0 {
		return "empty cluster", nil
	}
	return "cluster about " + strings.Join(strings.Fields(excerpts[0])[:1], ""), nil
}

// CallCount returns the number of times any method was called.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockClusterer is a test double for ai.Clusterer.
type MockClusterer struct {
	// ClusterFunc is called by Cluster if set.
	ClusterFunc func(ctx context.Context, vectors [][]float32) (*ai.Clustering, error)

	mu        sync.Mutex
	callCount int
}

// NewMockClusterer creates a mock clusterer that puts everything in one
// cluster by default.
func NewMockClusterer() *MockClusterer {
	return &MockClusterer{}
}

// Cluster assigns every vector to cluster 0 at the origin unless overridden.
func (m *MockClusterer) Cluster(ctx context.Context, vectors [][]float32) (*ai.Clustering, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ClusterFunc != nil {
		return m.ClusterFunc(ctx, vectors)
	}
	result := &ai.Clustering{
		Labels: make([]int, len(vectors)),
		Coords: make([][2]float64, len(vectors)),
	}
	return result, nil
}

// CallCount returns the number of times Cluster was called.
func (m *MockClusterer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
