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
	"sort"
	"time"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/pipeline"
)

const (
	tagMaxAttempts = 3
	tagBaseDelay   = 500 * time.Millisecond
)

// taggable is one message with the chunk ids derived from it, so TAGS edges
// to chunks need no join at load time.
type taggable struct {
	msg      *core.Message
	chunkIDs []string
}

// Tagging extracts topical tags per message. The tag hash covers the message
// id and the tag text, so tags follow only unchanged messages across runs.
type Tagging struct {
	env *Env
}

func NewTagging(env *Env) *Tagging {
	return &Tagging{env: env}
}

func (s *Tagging) Name() string           { return StageTagging }
func (s *Tagging) Dependencies() []string { return []string{StageIngestion, StageChunking} }

func (s *Tagging) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactMessages, Producer: StageIngestion, Slot: slotMessages},
		{Artifact: ArtifactChunks, Producer: StageChunking, Slot: slotChunks},
	}
}

func (s *Tagging) collect() ([]pipeline.Item[*taggable], error) {
	msgs, err := artifact.ReadAll[core.Message](s.env.Workspace.ArtifactPath(ArtifactMessages))
	if err != nil {
		return nil, err
	}
	chunks, err := artifact.ReadAll[core.Chunk](s.env.Workspace.ArtifactPath(ArtifactChunks))
	if err != nil {
		return nil, err
	}

	byMessage := make(map[string][]string)
	seenChunk := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if seenChunk[c.ID] {
			continue
		}
		seenChunk[c.ID] = true
		byMessage[c.MessageID] = append(byMessage[c.MessageID], c.ID)
	}
	for _, ids := range byMessage {
		sort.Strings(ids)
	}

	items := make([]pipeline.Item[*taggable], 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		items = append(items, pipeline.Item[*taggable]{
			Hash:  m.ID,
			Value: &taggable{msg: m, chunkIDs: byMessage[m.ID]},
		})
	}
	return items, nil
}

func (s *Tagging) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageTagging)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageTagging, Total: len(items), NeedsInit: s.env.needsInit(ArtifactTags)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Tagging) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageTagging)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages, ArtifactChunks)
	if err != nil {
		return nil, err
	}
	tags, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactTags), index)
	if err != nil {
		return nil, err
	}
	defer tags.Close()

	tagger := s.env.Provider.Tagger()

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageTagging), items, led,
		func(ctx context.Context, it pipeline.Item[*taggable]) error {
			msg := it.Value.msg

			var extracted []string
			err := pipeline.RetryWithBackoff(ctx, func() error {
				var tagErr error
				extracted, tagErr = tagger.TagMessage(ctx, msg.Content)
				return tagErr
			}, tagMaxAttempts, tagBaseDelay)
			if err != nil {
				return fmt.Errorf("tag message %s: %w", msg.ID, err)
			}

			// A message that yields no tags is still done; the ledger entry
			// is what stops it being re-sent every run.
			for _, text := range extracted {
				t := &core.Tag{
					Hash:      core.HashTag(msg.ID, text),
					Tag:       text,
					MessageID: msg.ID,
					ChatID:    msg.ChatID,
					ChunkIDs:  it.Value.chunkIDs,
				}
				if err := tags.Append(t); err != nil {
					return err
				}
				led.SlotMark(slotTags, t.Hash)
			}
			return nil
		})

	s.env.writeMetadata(StageTagging, s.env.TaggingMethod, out, started)
	return out, runErr
}
