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
	"sync"
	"testing"

	"github.com/poiesic/cartograph/graphstore"
	"github.com/poiesic/cartograph/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGraph struct {
	mu    sync.Mutex
	nodes int
	rels  int
}

func (g *stubGraph) EnsureSchema(ctx context.Context) error { return nil }

func (g *stubGraph) MergeNodes(ctx context.Context, label, key string, rows []map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes += len(rows)
	return nil
}

func (g *stubGraph) SetNodeProperties(ctx context.Context, label, key string, rows []map[string]any) (int, error) {
	return len(rows), nil
}

func (g *stubGraph) MergeRelationships(ctx context.Context, spec graphstore.RelSpec, rows []map[string]any) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rels += len(rows)
	return len(rows), nil
}

type stubPoints struct {
	mu     sync.Mutex
	points int
}

func (p *stubPoints) EnsureCollection(ctx context.Context, dims int) error { return nil }

func (p *stubPoints) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points += len(points)
	return nil
}

func TestLoading_WritesBothStores(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageSimilarity)

	graph := &stubGraph{}
	points := &stubPoints{}
	env.Graph = graph
	env.Points = points

	out, err := NewLoading(env).Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, out.Processed, 0)
	assert.Zero(t, out.Failed)

	// 2 chats, 4 messages, 4 chunks, 1 cluster, tags, 3 summaries.
	assert.Greater(t, graph.nodes, 10)
	assert.Greater(t, graph.rels, 0)
	// 4 chunk embeddings plus 3 summary embeddings.
	assert.Equal(t, 7, points.points)
}

func TestLoading_SkipsUnchangedSlotsOnRerun(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageSimilarity)

	graph := &stubGraph{}
	env.Graph = graph
	env.Points = &stubPoints{}

	first, err := NewLoading(env).Run(context.Background())
	require.NoError(t, err)

	nodesAfterFirst := graph.nodes
	second, err := NewLoading(env).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, second.Processed)
	assert.Equal(t, first.Processed+first.Skipped, second.Skipped)
	assert.Equal(t, nodesAfterFirst, graph.nodes)
}

func TestLoading_RequiresConfiguredStores(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageSimilarity)

	_, err := NewLoading(env).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, graphstore.ErrNotConfigured)
}

func TestLoading_PlanWorksWithoutCredentials(t *testing.T) {
	env, _ := testEnv(t)
	input := writeArchive(t)
	runThrough(t, env, input, StageSimilarity)

	plan, err := NewLoading(env).Plan(context.Background(), false)
	require.NoError(t, err)
	assert.Greater(t, plan.Pending, 0)
	assert.Equal(t, plan.Total, plan.Pending)
}
