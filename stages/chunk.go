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
	"time"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/pipeline"
	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking splits messages into retrieval-sized chunks. Chunk ids are
// positional ({chat_id}_msg_{n}_chunk_{m}); the chunk hash covers the
// content, and the parent message hash is carried verbatim so staleness is
// detectable downstream without re-deriving anything.
type Chunking struct {
	env *Env
}

func NewChunking(env *Env) *Chunking {
	return &Chunking{env: env}
}

func (s *Chunking) Name() string           { return StageChunking }
func (s *Chunking) Dependencies() []string { return []string{StageIngestion} }

func (s *Chunking) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactMessages, Producer: StageIngestion, Slot: slotMessages},
	}
}

func (s *Chunking) collect() ([]pipeline.Item[*core.Message], error) {
	msgs, err := artifact.ReadAll[core.Message](s.env.Workspace.ArtifactPath(ArtifactMessages))
	if err != nil {
		return nil, err
	}
	items := make([]pipeline.Item[*core.Message], 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		// Artifacts may hold duplicate records after an interrupted run;
		// the hash makes duplicates harmless.
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		items = append(items, pipeline.Item[*core.Message]{Hash: m.ID, Value: m})
	}
	return items, nil
}

func (s *Chunking) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageChunking)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageChunking, Total: len(items), NeedsInit: s.env.needsInit(ArtifactChunks)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Chunking) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageChunking)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages, ArtifactChunks)
	if err != nil {
		return nil, err
	}
	chunks, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactChunks), index)
	if err != nil {
		return nil, err
	}
	defer chunks.Close()

	size, overlap := s.env.ChunkSize, s.env.ChunkOverlap
	if size < 1 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageChunking), items, led,
		func(ctx context.Context, it pipeline.Item[*core.Message]) error {
			msg := it.Value
			pieces, err := splitter.SplitText(msg.Content)
			if err != nil {
				return err
			}
			for ci, piece := range pieces {
				if core.NormalizeText(piece) == "" {
					continue
				}
				id := core.ChunkID(msg.ChatID, msg.SeqNo, ci)
				chunk := &core.Chunk{
					ID:          id,
					Hash:        core.HashChunk(id, msg.ChatID, msg.ID, piece),
					ChatID:      msg.ChatID,
					MessageID:   msg.ID,
					MessageHash: msg.ID,
					MsgIdx:      msg.SeqNo,
					ChunkIdx:    ci,
					Content:     piece,
				}
				if err := core.ValidateChunk(chunk); err != nil {
					return err
				}
				if err := chunks.Append(chunk); err != nil {
					return err
				}
				led.SlotMark(slotChunks, chunk.Hash)
			}
			return nil
		})

	s.env.writeMetadata(StageChunking, "recursive_character", out, started)
	return out, runErr
}
