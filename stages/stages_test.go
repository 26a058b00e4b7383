// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/cartograph/ai"
	"github.com/poiesic/cartograph/ai/mock"
	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/pipeline"
	"github.com/poiesic/cartograph/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T) (*Env, *mock.MockProvider) {
	t.Helper()
	ws, err := artifact.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	vectors, err := badger.NewMemoryVectorRepository()
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	provider := mock.NewMockProvider()
	env := &Env{
		Workspace:      ws,
		Ledgers:        pipeline.NewLedgers(ws, nil),
		Provider:       provider,
		Vectors:        vectors,
		Runner:         pipeline.RunnerConfig{Concurrency: 2},
		EmbeddingModel: "test-model",
		TaggingMethod:  "heuristic",
		SummaryMethod:  "heuristic",
		ChunkSize:      200,
		ChunkOverlap:   20,
	}
	return env, provider
}

const testArchive = `[
  {"title": "Guitar tuning", "messages": [
    {"id": "a1", "role": "user", "content": "How do I tune a guitar by ear?"},
    {"id": "a2", "role": "assistant", "content": "Start from a reference pitch and match the fifth fret of each string."},
    {"id": "a3", "role": "tool", "content": "should be dropped: unknown role"},
    {"id": "a4", "role": "user", "content": "   "}
  ]},
  {"title": "Capitals", "messages": [
    {"id": "b1", "role": "user", "content": "What is the capital of France?"},
    {"id": "b2", "role": "assistant", "content": "Paris is the capital of France."}
  ]}
]`

func writeArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.json"), []byte(testArchive), 0644))
	return dir
}

// runThrough executes stages in dependency order up to and including last.
func runThrough(t *testing.T, env *Env, inputDir, last string) {
	t.Helper()
	for _, s := range BuildStages(env, inputDir) {
		out, err := s.Run(context.Background())
		require.NoError(t, err, "stage %s", s.Name())
		require.Zero(t, out.Failed, "stage %s", s.Name())
		if s.Name() == last {
			return
		}
	}
	t.Fatalf("stage %s not registered", last)
}

// stageByName picks one stage from the registry.
func stageByName(t *testing.T, env *Env, inputDir, name string) pipeline.Stage {
	t.Helper()
	for _, s := range BuildStages(env, inputDir) {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("stage %s not registered", name)
	return nil
}

func TestIngest_ProducesChatsAndMessages(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)

	out, err := NewIngest(env, input).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Processed)

	chats, err := artifact.ReadAll[core.Chat](env.Workspace.ArtifactPath(ArtifactChats))
	require.NoError(t, err)
	require.Len(t, chats, 2)

	msgs, err := artifact.ReadAll[core.Message](env.Workspace.ArtifactPath(ArtifactMessages))
	require.NoError(t, err)
	// Unknown-role and whitespace-only messages are dropped.
	require.Len(t, msgs, 4)

	led, err := env.ledger(StageIngestion)
	require.NoError(t, err)
	assert.Equal(t, 2, led.Count())
	assert.Equal(t, 4, led.SlotCount(slotMessages))

	for _, m := range msgs {
		assert.NotEmpty(t, m.ChatID)
		assert.Equal(t, core.HashMessage(m.ChatID, m.Role, m.Content, m.SourceID), m.ID)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)

	_, err := NewIngest(env, input).Run(context.Background())
	require.NoError(t, err)

	out, err := NewIngest(env, input).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, out.Processed)
	assert.Equal(t, 2, out.Skipped)

	chats, err := artifact.ReadAll[core.Chat](env.Workspace.ArtifactPath(ArtifactChats))
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestChunking_CarriesAncestorIDs(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageChunking)

	chunks, err := artifact.ReadAll[core.Chunk](env.Workspace.ArtifactPath(ArtifactChunks))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Equal(t, core.ChunkID(c.ChatID, c.MsgIdx, c.ChunkIdx), c.ID)
		assert.Equal(t, core.HashChunk(c.ID, c.ChatID, c.MessageID, c.Content), c.Hash)
		assert.NotEmpty(t, c.MessageHash)
	}

	led, err := env.ledger(StageChunking)
	require.NoError(t, err)
	assert.Equal(t, 4, led.Count())
	assert.Equal(t, len(chunks), led.SlotCount(slotChunks))
}

func TestChunking_SplitsLongMessages(t *testing.T) {
	env, _ := testEnv(t)
	env.ChunkSize = 50
	env.ChunkOverlap = 10

	dir := t.TempDir()
	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 8)
	archive := fmt.Sprintf(`[{"title": "Long", "messages": [{"id": "m1", "role": "user", "content": %q}]}]`, long)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "long.json"), []byte(archive), 0644))

	runThrough(t, env, dir, StageChunking)

	chunks, err := artifact.ReadAll[core.Chunk](env.Workspace.ArtifactPath(ArtifactChunks))
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)

	indices := make(map[int]bool)
	for _, c := range chunks {
		indices[c.ChunkIdx] = true
	}
	assert.True(t, indices[0])
}

func TestEmbedding_PersistsVectors(t *testing.T) {
	env, provider := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageEmbedding)

	embs, err := artifact.ReadAll[core.Embedding](env.Workspace.ArtifactPath(ArtifactEmbeddings))
	require.NoError(t, err)
	require.Len(t, embs, 4)

	ctx := context.Background()
	for _, e := range embs {
		assert.Equal(t, core.OwnerChunk, e.OwnerKind)
		assert.Equal(t, "test-model", e.Model)
		assert.Equal(t, core.HashEmbedding(e.OwnerID, e.OwnerHash, e.Model), e.Hash)

		vector, err := env.Vectors.Get(ctx, e.Hash)
		require.NoError(t, err)
		assert.Len(t, vector, e.Dims)
	}
	assert.Equal(t, 4, provider.GetMockEmbedder().CallCount())

	// Rerun makes no further embedding calls.
	out, err := stageByName(t, env, input, StageEmbedding).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, out.Processed)
	assert.Equal(t, 4, provider.GetMockEmbedder().CallCount())
}

func TestClustering_SingleRunPerCorpus(t *testing.T) {
	env, provider := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageClustering)

	assignments, err := artifact.ReadAll[core.ClusterAssignment](env.Workspace.ArtifactPath(ArtifactClusters))
	require.NoError(t, err)
	require.Len(t, assignments, 4)

	runHash := assignments[0].RunHash
	for _, a := range assignments {
		assert.Equal(t, 0, a.ClusterID)
		assert.Equal(t, runHash, a.RunHash)
		assert.NotEmpty(t, a.ChunkID)
		assert.NotEmpty(t, a.EmbeddingHash)
	}
	assert.Equal(t, 1, provider.GetMockClusterer().CallCount())

	// The run hash is ledgered; an unchanged corpus does not recluster.
	out, err := stageByName(t, env, input, StageClustering).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, out.Processed)
	assert.Equal(t, 1, provider.GetMockClusterer().CallCount())
}

func TestTagging_PropagatesChunkIDs(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageTagging)

	tags, err := artifact.ReadAll[core.Tag](env.Workspace.ArtifactPath(ArtifactTags))
	require.NoError(t, err)
	require.NotEmpty(t, tags)

	for _, tag := range tags {
		assert.Equal(t, core.HashTag(tag.MessageID, tag.Tag), tag.Hash)
		assert.NotEmpty(t, tag.ChunkIDs)
		for _, chunkID := range tag.ChunkIDs {
			assert.True(t, strings.HasPrefix(chunkID, tag.ChatID))
		}
	}
}

func TestChatSummary_OnePerChat(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageChatSummary)

	summaries, err := artifact.ReadAll[core.Summary](env.Workspace.ArtifactPath(ArtifactChatSumms))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	for _, s := range summaries {
		assert.Equal(t, core.SummaryChat, s.Kind)
		assert.Equal(t, s.ChatID, s.ParentID)
		assert.Equal(t, core.HashSummary(s.ParentID, s.Constituents), s.Hash)
		assert.Equal(t, "heuristic", s.Method)
		assert.NotEmpty(t, s.Text)
	}
}

func TestClusterSummary_SkipsNoise(t *testing.T) {
	env, provider := testEnv(t)
	input := writeArchive(t)

	// Last chunk lands in the noise cluster; it must not be summarized.
	provider.GetMockClusterer().ClusterFunc = func(ctx context.Context, vectors [][]float32) (*ai.Clustering, error) {
		result := &ai.Clustering{
			Labels: make([]int, len(vectors)),
			Coords: make([][2]float64, len(vectors)),
		}
		if len(vectors) > 0 {
			result.Labels[len(vectors)-1] = ai.NoiseLabel
		}
		return result, nil
	}

	runThrough(t, env, input, StageClusterSumm)

	summaries, err := artifact.ReadAll[core.Summary](env.Workspace.ArtifactPath(ArtifactClusterSumms))
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, core.SummaryCluster, s.Kind)
	assert.Equal(t, "cluster_0", s.ParentID)
	assert.Equal(t, 0, s.ClusterID)
	assert.Len(t, s.Constituents, 3)
	assert.Equal(t, core.HashSummary(s.ParentID, s.Constituents), s.Hash)
}

func TestClusterSummary_AllNoiseUnblocksDownstream(t *testing.T) {
	env, provider := testEnv(t)
	input := writeArchive(t)

	// Every chunk is noise: no cluster summaries at all. The chat-summary
	// sub-chain must still flow through positioning and similarity.
	provider.GetMockClusterer().ClusterFunc = func(ctx context.Context, vectors [][]float32) (*ai.Clustering, error) {
		result := &ai.Clustering{
			Labels: make([]int, len(vectors)),
			Coords: make([][2]float64, len(vectors)),
		}
		for i := range result.Labels {
			result.Labels[i] = ai.NoiseLabel
		}
		return result, nil
	}

	resolver := pipeline.NewResolver(env.Workspace, env.Ledgers)
	orch, err := pipeline.NewOrchestrator(env.Ledgers, resolver, nil, BuildStages(env, input)...)
	require.NoError(t, err)

	steps := []string{
		StageIngestion, StageChunking, StageEmbedding, StageClustering,
		StageTagging, StageChatSummary, StageClusterSumm,
		StagePositioning, StageSimilarity,
	}
	report, err := orch.Execute(context.Background(), steps, false)
	require.NoError(t, err)
	for _, entry := range report.Entries {
		require.NoError(t, entry.Err, "stage %s", entry.Stage)
	}

	// The empty artifact exists, so positioning is not blocked.
	assert.True(t, env.Workspace.ArtifactExists(ArtifactClusterSumms))
	summaries, err := artifact.ReadAll[core.Summary](env.Workspace.ArtifactPath(ArtifactClusterSumms))
	require.NoError(t, err)
	assert.Empty(t, summaries)

	positions, err := artifact.ReadAll[core.Position](env.Workspace.ArtifactPath(ArtifactPositions))
	require.NoError(t, err)
	require.Len(t, positions, 2, "one position per chat summary")

	// Rerun: everything is up to date, nothing reports a missing dependency.
	report, err = orch.Execute(context.Background(), steps, false)
	require.NoError(t, err)
	for _, entry := range report.Entries {
		require.NoError(t, entry.Err, "stage %s", entry.Stage)
		assert.Equal(t, pipeline.StateSkipped, entry.State, "stage %s", entry.Stage)
	}
}

func TestPositioning_EmbedsSummaries(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StagePositioning)

	positions, err := artifact.ReadAll[core.Position](env.Workspace.ArtifactPath(ArtifactPositions))
	require.NoError(t, err)
	// Two chat summaries plus one cluster summary.
	require.Len(t, positions, 3)

	embs, err := artifact.ReadAll[core.Embedding](env.Workspace.ArtifactPath(ArtifactSummaryEmbs))
	require.NoError(t, err)
	require.Len(t, embs, 3)

	ctx := context.Background()
	for _, p := range positions {
		assert.Equal(t, core.HashPosition(p.ParentID, p.SummaryHash), p.Hash)
		vector, err := env.Vectors.Get(ctx, p.EmbeddingHash)
		require.NoError(t, err)
		assert.NotEmpty(t, vector)
	}

	led, err := env.ledger(StagePositioning)
	require.NoError(t, err)
	assert.Equal(t, 3, led.Count())
	assert.Equal(t, 3, led.SlotCount(slotEmbeddings))
}

func TestSimilarity_UsesOnlyStoredVectors(t *testing.T) {
	env, provider := testEnv(t)
	input := writeArchive(t)

	// Identical vectors for every text make the chat pair maximally similar.
	fixed := make([]float32, 8)
	for i := range fixed {
		fixed[i] = 0.5
	}
	provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return fixed, nil
	}

	runThrough(t, env, input, StagePositioning)
	callsBefore := provider.GetMockEmbedder().CallCount()

	out, err := stageByName(t, env, input, StageSimilarity).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Processed)

	// Scoring reads vectors from the repository; no embedding calls.
	assert.Equal(t, callsBefore, provider.GetMockEmbedder().CallCount())

	edges, err := artifact.ReadAll[core.SimilarityEdge](env.Workspace.ArtifactPath(ArtifactSimilarity))
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edge := edges[0]
	assert.Equal(t, core.SummaryChat, edge.Kind)
	assert.InDelta(t, 1.0, float64(edge.Score), 1e-6)
	assert.NotEqual(t, edge.IDA, edge.IDB)

	// Unchanged summary set: the run hash is ledgered, nothing recomputes.
	out, err = stageByName(t, env, input, StageSimilarity).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, out.Processed)
}

func TestPlan_ReportsPendingWithoutProcessing(t *testing.T) {
	env, provider := testEnv(t)
	input := writeArchive(t)

	ingest := NewIngest(env, input)
	plan, err := ingest.Plan(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Total)
	assert.Equal(t, 2, plan.Pending)
	assert.Zero(t, provider.GetMockEmbedder().CallCount())

	_, err = ingest.Run(context.Background())
	require.NoError(t, err)

	plan, err = ingest.Plan(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, plan.Pending)

	plan, err = ingest.Plan(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Pending)
}
