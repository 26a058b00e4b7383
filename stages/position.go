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
	"time"

	"github.com/poiesic/cartograph/ai"
	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/pipeline"
)

// Positioning embeds each chat and cluster summary and projects the vector
// to map coordinates. The summary embeddings land in their own artifact,
// kept apart from chunk embeddings so the clustering run hash never changes
// when a summary does.
type Positioning struct {
	env *Env
}

func NewPositioning(env *Env) *Positioning {
	return &Positioning{env: env}
}

func (s *Positioning) Name() string { return StagePositioning }
func (s *Positioning) Dependencies() []string {
	return []string{StageChatSummary, StageClusterSumm}
}

func (s *Positioning) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactChatSumms, Producer: StageChatSummary},
		{Artifact: ArtifactClusterSumms, Producer: StageClusterSumm},
	}
}

func (s *Positioning) collect() ([]pipeline.Item[*core.Summary], error) {
	var items []pipeline.Item[*core.Summary]
	seen := make(map[string]bool)
	for _, name := range []string{ArtifactChatSumms, ArtifactClusterSumms} {
		if !s.env.Workspace.ArtifactExists(name) {
			continue
		}
		summaries, err := artifact.ReadAll[core.Summary](s.env.Workspace.ArtifactPath(name))
		if err != nil {
			return nil, err
		}
		for _, sum := range summaries {
			if seen[sum.Hash] {
				continue
			}
			seen[sum.Hash] = true
			items = append(items, pipeline.Item[*core.Summary]{
				Hash:  core.HashPosition(sum.ParentID, sum.Hash),
				Value: sum,
			})
		}
	}
	return items, nil
}

func (s *Positioning) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StagePositioning)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{
		Stage:     StagePositioning,
		Total:     len(items),
		NeedsInit: s.env.needsInit(ArtifactPositions, ArtifactSummaryEmbs),
	}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Positioning) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StagePositioning)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactChatSumms, ArtifactClusterSumms, ArtifactSummaryEmbs)
	if err != nil {
		return nil, err
	}
	embeddings, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactSummaryEmbs), index)
	if err != nil {
		return nil, err
	}
	defer embeddings.Close()
	positions, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactPositions), index)
	if err != nil {
		return nil, err
	}
	defer positions.Close()

	embedder := s.env.Provider.Embedder()

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StagePositioning), items, led,
		func(ctx context.Context, it pipeline.Item[*core.Summary]) error {
			sum := it.Value
			embHash := core.HashEmbedding(sum.ParentID, sum.Hash, s.env.EmbeddingModel)

			var vector []float32
			err := pipeline.RetryWithBackoff(ctx, func() error {
				var embedErr error
				vector, embedErr = embedder.EmbedText(ctx, sum.Text)
				return embedErr
			}, embedMaxAttempts, embedBaseDelay)
			if err != nil {
				return fmt.Errorf("embed summary for %s: %w", sum.ParentID, err)
			}
			if len(vector) == 0 {
				return fmt.Errorf("embed summary for %s: empty vector", sum.ParentID)
			}

			if err := s.env.Vectors.Put(ctx, embHash, vector); err != nil {
				return err
			}

			ownerKind := core.OwnerChatSummary
			if sum.Kind == core.SummaryCluster {
				ownerKind = core.OwnerClusterSummary
			}
			rec := &core.Embedding{
				Hash:      embHash,
				OwnerKind: ownerKind,
				OwnerID:   sum.ParentID,
				OwnerHash: sum.Hash,
				ChatID:    sum.ChatID,
				Model:     s.env.EmbeddingModel,
				Dims:      len(vector),
			}
			if err := embeddings.Append(rec); err != nil {
				return err
			}
			led.SlotMark(slotEmbeddings, embHash)

			x, y := ai.Project2D(vector)
			pos := &core.Position{
				Hash:          it.Hash,
				ParentKind:    sum.Kind,
				ParentID:      sum.ParentID,
				SummaryHash:   sum.Hash,
				EmbeddingHash: embHash,
				X:             x,
				Y:             y,
			}
			return positions.Append(pos)
		})

	s.env.writeMetadata(StagePositioning, s.env.EmbeddingModel, out, started)
	return out, runErr
}
