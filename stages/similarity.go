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
	"math"
	"os"
	"time"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/ledger"
	"github.com/poiesic/cartograph/pipeline"
)

// similarityFloor is the minimum cosine score an edge must reach to be
// recorded at all. The loader buckets recorded edges further.
const similarityFloor = 0.70

// similarityRun is the single work item of a similarity pass: every summary
// embedding, keyed by the digest of the full hash set.
type similarityRun struct {
	runHash    string
	embeddings []*core.Embedding
}

// Similarity scores pairwise relatedness between chats and between clusters
// using only vectors already persisted by positioning. This stage makes no
// embedding calls.
type Similarity struct {
	env *Env
}

func NewSimilarity(env *Env) *Similarity {
	return &Similarity{env: env}
}

func (s *Similarity) Name() string           { return StageSimilarity }
func (s *Similarity) Dependencies() []string { return []string{StagePositioning} }

func (s *Similarity) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactPositions, Producer: StagePositioning},
		{Artifact: ArtifactSummaryEmbs, Producer: StagePositioning, Slot: slotEmbeddings},
	}
}

func (s *Similarity) collect() ([]pipeline.Item[*similarityRun], error) {
	recs, err := artifact.ReadAll[core.Embedding](s.env.Workspace.ArtifactPath(ArtifactSummaryEmbs))
	if err != nil {
		return nil, err
	}
	run := &similarityRun{}
	seen := make(map[string]bool, len(recs))
	hashes := make([]string, 0, len(recs))
	for _, e := range recs {
		if seen[e.Hash] {
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
	return []pipeline.Item[*similarityRun]{{Hash: run.runHash, Value: run}}, nil
}

func (s *Similarity) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageSimilarity)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageSimilarity, Total: len(items), NeedsInit: s.env.needsInit(ArtifactSimilarity)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Similarity) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageSimilarity)
	if err != nil {
		return nil, err
	}

	// With no summary embeddings there are no pairs to score, but the edge
	// artifact must still exist for the loader's dependency check.
	if err := s.env.Workspace.EnsureArtifact(ArtifactSimilarity); err != nil {
		return nil, err
	}

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageSimilarity), items, led,
		func(ctx context.Context, it pipeline.Item[*similarityRun]) error {
			return s.rescore(ctx, led, it.Value)
		})

	s.env.writeMetadata(StageSimilarity, "cosine", out, started)
	return out, runErr
}

// rescore computes all pairwise scores and rewrites the edge artifact from
// scratch. Edges are scoped to one run the same way cluster assignments are.
func (s *Similarity) rescore(ctx context.Context, led *ledger.Ledger, run *similarityRun) error {
	byKind := map[core.SummaryKind][]*core.Embedding{}
	for _, e := range run.embeddings {
		switch e.OwnerKind {
		case core.OwnerChatSummary:
			byKind[core.SummaryChat] = append(byKind[core.SummaryChat], e)
		case core.OwnerClusterSummary:
			byKind[core.SummaryCluster] = append(byKind[core.SummaryCluster], e)
		default:
			return fmt.Errorf("summary embedding %s has owner kind %q", e.Hash, e.OwnerKind)
		}
	}

	vectors := make(map[string][]float32, len(run.embeddings))
	for _, e := range run.embeddings {
		v, err := s.env.Vectors.Get(ctx, e.Hash)
		if err != nil {
			return fmt.Errorf("load vector %s: %w", e.Hash, err)
		}
		vectors[e.Hash] = v
	}

	path := s.env.Workspace.ArtifactPath(ArtifactSimilarity)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactChatSumms, ArtifactClusterSumms, ArtifactSummaryEmbs)
	if err != nil {
		return err
	}
	writer, err := artifact.NewWriter(path, index)
	if err != nil {
		return err
	}
	defer writer.Close()

	for kind, embs := range byKind {
		for i := 0; i < len(embs); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < len(embs); j++ {
				a, b := embs[i], embs[j]
				score := cosine(vectors[a.Hash], vectors[b.Hash])
				if score < similarityFloor {
					continue
				}
				edge := &core.SimilarityEdge{
					Hash:      core.HashEdge(a.OwnerID, b.OwnerID, []string{a.Hash, b.Hash}),
					Kind:      kind,
					IDA:       a.OwnerID,
					IDB:       b.OwnerID,
					Score:     float32(score),
					InputHash: run.runHash,
				}
				if err := writer.Append(edge); err != nil {
					return err
				}
				led.SlotMark(slotEdges, edge.Hash)
			}
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
