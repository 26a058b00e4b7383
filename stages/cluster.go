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
	"time"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/ledger"
	"github.com/poiesic/cartograph/pipeline"
)

// clusterRun is the single work item of a clustering pass: every chunk
// embedding in the corpus, keyed by the digest of the full hash set.
type clusterRun struct {
	runHash    string
	embeddings []*core.Embedding
}

// Clustering groups chunk embeddings into topical clusters. The whole corpus
// is one work item: the run hash is the digest of the complete set of chunk
// embedding hashes, so any new or changed embedding makes the previous run
// stale and triggers a full recluster.
type Clustering struct {
	env *Env
}

func NewClustering(env *Env) *Clustering {
	return &Clustering{env: env}
}

func (s *Clustering) Name() string           { return StageClustering }
func (s *Clustering) Dependencies() []string { return []string{StageEmbedding} }

func (s *Clustering) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactEmbeddings, Producer: StageEmbedding, Slot: slotEmbeddings},
	}
}

func (s *Clustering) collect() ([]pipeline.Item[*clusterRun], error) {
	recs, err := artifact.ReadAll[core.Embedding](s.env.Workspace.ArtifactPath(ArtifactEmbeddings))
	if err != nil {
		return nil, err
	}
	run := &clusterRun{}
	seen := make(map[string]bool, len(recs))
	hashes := make([]string, 0, len(recs))
	for _, e := range recs {
		if e.OwnerKind != core.OwnerChunk || seen[e.Hash] {
			continue
		}
		seen[e.Hash] = true
		run.embeddings = append(run.embeddings, e)
		hashes = append(hashes, e.Hash)
	}
	if len(run.embeddings) == 0 {
		return nil, nil
	}
	run.runHash = core.HashSet(hashes)
	return []pipeline.Item[*clusterRun]{{Hash: run.runHash, Value: run}}, nil
}

func (s *Clustering) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageClustering)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageClustering, Total: len(items), NeedsInit: s.env.needsInit(ArtifactClusters)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Clustering) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageClustering)
	if err != nil {
		return nil, err
	}

	// Zero embeddings is still a completed run: the empty artifact tells
	// downstream "nothing clustered" rather than "never ran".
	if err := s.env.Workspace.EnsureArtifact(ArtifactClusters); err != nil {
		return nil, err
	}

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageClustering), items, led,
		func(ctx context.Context, it pipeline.Item[*clusterRun]) error {
			return s.recluster(ctx, led, it.Value)
		})

	s.env.writeMetadata(StageClustering, "leader", out, started)
	return out, runErr
}

// recluster runs one full clustering pass and rewrites the assignment
// artifact from scratch. Downstream stages key on the run hash, so stale
// assignments from earlier runs must not linger in the file.
func (s *Clustering) recluster(ctx context.Context, led *ledger.Ledger, run *clusterRun) error {
	vectors := make([][]float32, len(run.embeddings))
	for i, e := range run.embeddings {
		v, err := s.env.Vectors.Get(ctx, e.Hash)
		if err != nil {
			return fmt.Errorf("load vector %s: %w", e.Hash, err)
		}
		vectors[i] = v
	}

	clustering, err := s.env.Provider.Clusterer().Cluster(ctx, vectors)
	if err != nil {
		return err
	}
	if len(clustering.Labels) != len(run.embeddings) {
		return fmt.Errorf("clusterer returned %d labels for %d vectors",
			len(clustering.Labels), len(run.embeddings))
	}

	path := s.env.Workspace.ArtifactPath(ArtifactClusters)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages, ArtifactChunks, ArtifactEmbeddings)
	if err != nil {
		return err
	}
	writer, err := artifact.NewWriter(path, index)
	if err != nil {
		return err
	}
	defer writer.Close()

	for i, e := range run.embeddings {
		a := &core.ClusterAssignment{
			Hash:          core.HashFields(map[string]any{"chunk_id": e.OwnerID, "run_hash": run.runHash}),
			ChunkID:       e.OwnerID,
			ChunkHash:     e.OwnerHash,
			ChatID:        e.ChatID,
			MessageID:     e.MessageID,
			EmbeddingHash: e.Hash,
			ClusterID:     clustering.Labels[i],
			X:             clustering.Coords[i][0],
			Y:             clustering.Coords[i][1],
			RunHash:       run.runHash,
		}
		if err := writer.Append(a); err != nil {
			return err
		}
		led.SlotMark(slotAssignments, a.Hash)
	}
	return nil
}
