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


package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/graphstore"
	"github.com/poiesic/cartograph/ledger"
	"github.com/poiesic/cartograph/storage/badger"
	"github.com/poiesic/cartograph/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeCall struct {
	label string
	rows  int
}

type relCall struct {
	spec graphstore.RelSpec
	rows int
}

// fakeGraph records writes and lets tests fail specific labels or starve
// relationship matches.
type fakeGraph struct {
	mu        sync.Mutex
	nodes     []nodeCall
	rels      []relCall
	propCalls []nodeCall
	order     []string

	failLabel string
	// unmatchedOnce makes the first MergeRelationships call per spec report
	// one row short, exercising the retry.
	unmatchedOnce map[string]bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{unmatchedOnce: map[string]bool{}}
}

func (g *fakeGraph) EnsureSchema(ctx context.Context) error { return nil }

func (g *fakeGraph) MergeNodes(ctx context.Context, label, key string, rows []map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if label == g.failLabel {
		return fmt.Errorf("injected %s failure", label)
	}
	g.nodes = append(g.nodes, nodeCall{label: label, rows: len(rows)})
	g.order = append(g.order, "node")
	return nil
}

func (g *fakeGraph) SetNodeProperties(ctx context.Context, label, key string, rows []map[string]any) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.propCalls = append(g.propCalls, nodeCall{label: label, rows: len(rows)})
	return len(rows), nil
}

func (g *fakeGraph) MergeRelationships(ctx context.Context, spec graphstore.RelSpec, rows []map[string]any) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rels = append(g.rels, relCall{spec: spec, rows: len(rows)})
	g.order = append(g.order, "rel")
	key := spec.RelType + ":" + spec.ToLabel
	if g.unmatchedOnce[key] {
		delete(g.unmatchedOnce, key)
		return len(rows) - 1, nil
	}
	return len(rows), nil
}

type fakePoints struct {
	mu          sync.Mutex
	dims        int
	upserted    []vectorstore.Point
	upsertCalls int
}

func (p *fakePoints) EnsureCollection(ctx context.Context, dims int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dims = dims
	return nil
}

func (p *fakePoints) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upsertCalls++
	p.upserted = append(p.upserted, points...)
	return nil
}

func testSnapshot(t *testing.T) (*Snapshot, *ledger.Ledger, *DualStoreLoader, *fakeGraph, *fakePoints) {
	t.Helper()

	vectors, err := badger.NewMemoryVectorRepository()
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	led, err := ledger.Open("loading", filepath.Join(t.TempDir(), "loading.json"), nil)
	require.NoError(t, err)

	chunkEmb := &core.Embedding{
		Hash: "emb1", OwnerKind: core.OwnerChunk, OwnerID: "chat1_msg_0_chunk_0",
		OwnerHash: "chunk1", ChatID: "chat1", MessageID: "msg1", Model: "m", Dims: 4,
	}
	summaryEmb := &core.Embedding{
		Hash: "emb2", OwnerKind: core.OwnerChatSummary, OwnerID: "chat1",
		OwnerHash: "sum1", ChatID: "chat1", Model: "m", Dims: 4,
	}
	ctx := context.Background()
	require.NoError(t, vectors.Put(ctx, "emb1", []float32{1, 0, 0, 0}))
	require.NoError(t, vectors.Put(ctx, "emb2", []float32{0, 1, 0, 0}))

	snap := &Snapshot{
		Chats: []*core.Chat{{ID: "chat1", Title: "t", SourceFile: "f.json"}},
		Messages: []*core.Message{
			{ID: "msg1", ChatID: "chat1", Role: core.RoleUser, Content: "hi", SeqNo: 0},
		},
		Chunks: []*core.Chunk{
			{ID: "chat1_msg_0_chunk_0", Hash: "chunk1", ChatID: "chat1", MessageID: "msg1", Content: "hi"},
		},
		ChunkEmbeddings: []*core.Embedding{chunkEmb},
		Assignments: []*core.ClusterAssignment{
			{Hash: "asg1", ChunkID: "chat1_msg_0_chunk_0", ChunkHash: "chunk1",
				ChatID: "chat1", MessageID: "msg1", EmbeddingHash: "emb1",
				ClusterID: 0, RunHash: "run1"},
			{Hash: "asg2", ChunkID: "chat1_msg_0_chunk_1", ChunkHash: "chunk2",
				ChatID: "chat1", MessageID: "msg1", EmbeddingHash: "emb1",
				ClusterID: core.NoiseCluster, RunHash: "run1"},
		},
		Tags: []*core.Tag{
			{Hash: "tag1", Tag: "guitars", MessageID: "msg1", ChatID: "chat1",
				ChunkIDs: []string{"chat1_msg_0_chunk_0"}},
		},
		ChatSummaries: []*core.Summary{
			{Hash: "sum1", Kind: core.SummaryChat, ParentID: "chat1", ChatID: "chat1",
				Text: "s", Method: "llm"},
		},
		ClusterSummaries: []*core.Summary{
			{Hash: "sum2", Kind: core.SummaryCluster, ParentID: "cluster_0", ClusterID: 0,
				Text: "s", Method: "llm"},
		},
		Positions: []*core.Position{
			{Hash: "pos1", ParentKind: core.SummaryChat, ParentID: "chat1",
				SummaryHash: "sum1", EmbeddingHash: "emb2", X: 0.1, Y: 0.2},
		},
		SummaryEmbeddings: []*core.Embedding{summaryEmb},
		Edges: []*core.SimilarityEdge{
			{Hash: "edge1", Kind: core.SummaryChat, IDA: "chat1", IDB: "chat2",
				Score: 0.9, InputHash: "run2"},
		},
	}

	graph := newFakeGraph()
	points := &fakePoints{}
	return snap, led, New(graph, points, vectors, led), graph, points
}

func TestLoad_WritesAllSlots(t *testing.T) {
	snap, _, l, graph, points := testSnapshot(t)

	report, err := l.Load(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Len(t, report.Written, 14)

	labels := make(map[string]int)
	for _, call := range graph.nodes {
		labels[call.label] += call.rows
	}
	assert.Equal(t, 1, labels["Chat"])
	assert.Equal(t, 1, labels["Message"])
	assert.Equal(t, 1, labels["Chunk"])
	// Noise assignments yield no Cluster node.
	assert.Equal(t, 1, labels["Cluster"])
	assert.Equal(t, 1, labels["Tag"])
	assert.Equal(t, 2, labels["Summary"])

	assert.Equal(t, 4, points.dims)
	assert.Len(t, points.upserted, 2)
	for _, p := range points.upserted {
		assert.NotEmpty(t, p.Payload["hash"])
		assert.NotEmpty(t, p.Vector)
	}
}

func TestLoad_NodesBeforeRelationships(t *testing.T) {
	snap, _, l, graph, _ := testSnapshot(t)

	_, err := l.Load(context.Background(), snap)
	require.NoError(t, err)

	require.NotEmpty(t, graph.nodes)
	require.NotEmpty(t, graph.rels)

	sawRel := false
	for _, op := range graph.order {
		if op == "rel" {
			sawRel = true
		}
		if op == "node" && sawRel {
			t.Fatal("node merge after relationship merge")
		}
	}
	assert.Len(t, graph.nodes, 6)
}

func TestLoad_SkipsUnchangedSlots(t *testing.T) {
	snap, _, l, graph, points := testSnapshot(t)

	_, err := l.Load(context.Background(), snap)
	require.NoError(t, err)
	nodeWrites, pointWrites := len(graph.nodes), points.upsertCalls

	report, err := l.Load(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, report.Written)
	assert.Len(t, report.Skipped, 14)
	assert.Len(t, graph.nodes, nodeWrites)
	assert.Equal(t, pointWrites, points.upsertCalls)
}

func TestLoad_ChangedArtifactRewritesOnlyItsSlot(t *testing.T) {
	snap, _, l, graph, _ := testSnapshot(t)

	_, err := l.Load(context.Background(), snap)
	require.NoError(t, err)
	before := len(graph.nodes)

	snap.Tags = append(snap.Tags, &core.Tag{
		Hash: "tag2", Tag: "capitals", MessageID: "msg1", ChatID: "chat1",
	})
	report, err := l.Load(context.Background(), snap)
	require.NoError(t, err)

	assert.Contains(t, report.Written, SlotTagNodes)
	assert.Contains(t, report.Written, SlotTagEdges)
	assert.Len(t, report.Written, 2)
	assert.Equal(t, before+1, len(graph.nodes))
}

func TestLoad_RetriesUnmatchedRelationships(t *testing.T) {
	snap, _, l, graph, _ := testSnapshot(t)
	graph.unmatchedOnce["CONTAINS:Message"] = true

	report, err := l.Load(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)

	contains := 0
	for _, call := range graph.rels {
		if call.spec.RelType == "CONTAINS" {
			contains++
		}
	}
	assert.Equal(t, 2, contains)
}

func TestLoad_PartialFailureKeepsOtherSlots(t *testing.T) {
	snap, led, l, graph, _ := testSnapshot(t)
	graph.failLabel = "Tag"

	report, err := l.Load(context.Background(), snap)
	require.Error(t, err)

	var pw *PartialWriteError
	require.True(t, errors.As(err, &pw))
	assert.Equal(t, SlotTagNodes, pw.Slot)
	assert.Contains(t, report.Failed, SlotTagNodes)

	// Every other slot committed and is skipped on the retry run.
	assert.True(t, led.SlotContains(SlotChatNodes, hashRecords(snap.Chats)))
	assert.False(t, led.SlotContains(SlotTagNodes, hashRecords(snap.Tags)))

	graph.failLabel = ""
	report, err = l.Load(context.Background(), snap)
	require.NoError(t, err)
	assert.Contains(t, report.Written, SlotTagNodes)
	assert.NotContains(t, report.Written, SlotChatNodes)
}

func TestLoad_SimilarityBuckets(t *testing.T) {
	snap, _, l, graph, _ := testSnapshot(t)
	snap.Edges = []*core.SimilarityEdge{
		{Hash: "e1", Kind: core.SummaryChat, IDA: "a", IDB: "b", Score: 0.95},
		{Hash: "e2", Kind: core.SummaryChat, IDA: "a", IDB: "c", Score: 0.75},
		{Hash: "e3", Kind: core.SummaryCluster, IDA: "cluster_0", IDB: "cluster_1", Score: 0.9},
	}

	_, err := l.Load(context.Background(), snap)
	require.NoError(t, err)

	byType := map[string]relCall{}
	for _, call := range graph.rels {
		if call.spec.RelType == "SIMILAR_HIGH" || call.spec.RelType == "SIMILAR_MEDIUM" {
			byType[call.spec.RelType+":"+call.spec.FromLabel] = call
		}
	}
	assert.Equal(t, 1, byType["SIMILAR_HIGH:Chat"].rows)
	assert.Equal(t, 1, byType["SIMILAR_MEDIUM:Chat"].rows)
	assert.Equal(t, 1, byType["SIMILAR_HIGH:Cluster"].rows)
}

func TestPointID_FormatsUUID(t *testing.T) {
	id := vectorstore.PointID("00112233445566778899aabbccddeeff00112233")
	assert.Equal(t, "00112233-4455-6677-8899-aabbccddeeff", id)
}
