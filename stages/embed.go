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

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/pipeline"
)

const (
	embedMaxAttempts = 3
	embedBaseDelay   = 500 * time.Millisecond
)

// Embedding embeds each chunk and persists the vector in the embedding
// repository keyed by the embedding hash. The artifact record carries only
// identity and provenance; the vector never appears in an artifact file.
type Embedding struct {
	env *Env
}

func NewEmbedding(env *Env) *Embedding {
	return &Embedding{env: env}
}

func (s *Embedding) Name() string           { return StageEmbedding }
func (s *Embedding) Dependencies() []string { return []string{StageChunking} }

func (s *Embedding) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactChunks, Producer: StageChunking, Slot: slotChunks},
	}
}

func (s *Embedding) collect() ([]pipeline.Item[*core.Chunk], error) {
	chunks, err := artifact.ReadAll[core.Chunk](s.env.Workspace.ArtifactPath(ArtifactChunks))
	if err != nil {
		return nil, err
	}
	items := make([]pipeline.Item[*core.Chunk], 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.Hash] {
			continue
		}
		seen[c.Hash] = true
		items = append(items, pipeline.Item[*core.Chunk]{Hash: c.Hash, Value: c})
	}
	return items, nil
}

func (s *Embedding) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageEmbedding)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageEmbedding, Total: len(items), NeedsInit: s.env.needsInit(ArtifactEmbeddings)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Embedding) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageEmbedding)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages, ArtifactChunks, ArtifactEmbeddings)
	if err != nil {
		return nil, err
	}
	embeddings, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactEmbeddings), index)
	if err != nil {
		return nil, err
	}
	defer embeddings.Close()

	embedder := s.env.Provider.Embedder()

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageEmbedding), items, led,
		func(ctx context.Context, it pipeline.Item[*core.Chunk]) error {
			chunk := it.Value
			embHash := core.HashEmbedding(chunk.ID, chunk.Hash, s.env.EmbeddingModel)

			var vector []float32
			err := pipeline.RetryWithBackoff(ctx, func() error {
				var embedErr error
				vector, embedErr = embedder.EmbedText(ctx, chunk.Content)
				return embedErr
			}, embedMaxAttempts, embedBaseDelay)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
			}
			if len(vector) == 0 {
				return fmt.Errorf("embed chunk %s: empty vector", chunk.ID)
			}

			// Vector first: an artifact record whose vector is missing would
			// poison every downstream read of this hash.
			if err := s.env.Vectors.Put(ctx, embHash, vector); err != nil {
				return err
			}
			rec := &core.Embedding{
				Hash:      embHash,
				OwnerKind: core.OwnerChunk,
				OwnerID:   chunk.ID,
				OwnerHash: chunk.Hash,
				ChatID:    chunk.ChatID,
				MessageID: chunk.MessageID,
				Model:     s.env.EmbeddingModel,
				Dims:      len(vector),
			}
			if err := embeddings.Append(rec); err != nil {
				return err
			}
			led.SlotMark(slotEmbeddings, embHash)
			return nil
		})

	s.env.writeMetadata(StageEmbedding, s.env.EmbeddingModel, out, started)
	return out, runErr
}
