package local

import (
	"context"
	"testing"

	"github.com/poiesic/cartograph/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_Deterministic(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()

	a1, err := e.EmbedText(ctx, "postgres replication on ubuntu")
	require.NoError(t, err)
	a2, err := e.EmbedText(ctx, "postgres replication on ubuntu")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, embedDims)
}

func TestEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "setting up postgres database replication")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "postgres database replication troubles")
	require.NoError(t, err)
	c, err := e.EmbedText(ctx, "my cat chased a butterfly in the garden")
	require.NoError(t, err)

	simAB := cos(a, b)
	simAC := cos(a, c)
	assert.Greater(t, simAB, simAC)
}

func cos(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestTagger_FrequencyRanking(t *testing.T) {
	tg := NewTagger(3)
	tags, err := tg.TagMessage(context.Background(),
		"docker docker docker compose compose kubernetes and the rest")
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "docker", tags[0])
	assert.Equal(t, "compose", tags[1])
	assert.Equal(t, "kubernetes", tags[2])
}

func TestTagger_SkipsStopwordsAndShortTokens(t *testing.T) {
	tg := NewTagger(5)
	tags, err := tg.TagMessage(context.Background(), "it is a db ok")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestSummarizer_ChatPrependsTitle(t *testing.T) {
	s := NewSummarizer()
	out, err := s.SummarizeChat(context.Background(), "Postgres help",
		[]string{"How do I set up replication?", "Use streaming replication."})
	require.NoError(t, err)
	assert.Contains(t, out, "Postgres help")
	assert.Contains(t, out, "replication")
}

func TestSummarizer_ExtractiveCapsSentences(t *testing.T) {
	s := NewSummarizer()
	out, err := s.SummarizeCluster(context.Background(), []string{
		"Kubernetes scheduling is hard. Pods need resources. Nodes have limits.",
		"The scheduler places pods on nodes. Affinity rules constrain placement.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	// At most two sentences survive extraction.
	assert.LessOrEqual(t, len(splitSentences(out)), 2)
}

func TestClusterer_GroupsSimilarVectors(t *testing.T) {
	c := NewClusterer(0.9)
	vectors := [][]float32{
		{1, 0, 0}, {0.99, 0.01, 0}, {0.98, 0.02, 0},
		{0, 1, 0}, {0.01, 0.99, 0},
		{0, 0, 1}, // singleton -> noise
	}

	result, err := c.Cluster(context.Background(), vectors)
	require.NoError(t, err)
	require.Len(t, result.Labels, 6)
	require.Len(t, result.Coords, 6)

	assert.Equal(t, result.Labels[0], result.Labels[1])
	assert.Equal(t, result.Labels[0], result.Labels[2])
	assert.Equal(t, result.Labels[3], result.Labels[4])
	assert.NotEqual(t, result.Labels[0], result.Labels[3])
	assert.Equal(t, ai.NoiseLabel, result.Labels[5])
	assert.Equal(t, 2, result.Clusters())
}

func TestClusterer_DeterministicCoords(t *testing.T) {
	c := NewClusterer(0.8)
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}

	r1, err := c.Cluster(context.Background(), vectors)
	require.NoError(t, err)
	r2, err := c.Cluster(context.Background(), vectors)
	require.NoError(t, err)
	assert.Equal(t, r1.Coords, r2.Coords)
}

func TestClusterer_EmptyInput(t *testing.T) {
	c := NewClusterer(0.8)
	result, err := c.Cluster(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Labels)
	assert.Equal(t, 0, result.Clusters())
}
