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
	summMaxAttempts = 3
	summBaseDelay   = time.Second
)

// chatToSummarize pairs a chat with its messages in sequence order. The item
// hash IS the summary hash, so the pending check covers both "never
// summarized" and "membership changed".
type chatToSummarize struct {
	chat        *core.Chat
	messages    []*core.Message
	summaryHash string
}

// ChatSummary produces one summary per chat. Its ledger keys are summary
// hashes (parent id plus sorted constituent ids), so a chat re-ingested with
// different messages summarizes again while untouched chats are skipped.
type ChatSummary struct {
	env *Env
}

func NewChatSummary(env *Env) *ChatSummary {
	return &ChatSummary{env: env}
}

func (s *ChatSummary) Name() string           { return StageChatSummary }
func (s *ChatSummary) Dependencies() []string { return []string{StageIngestion} }

func (s *ChatSummary) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactChats, Producer: StageIngestion},
		{Artifact: ArtifactMessages, Producer: StageIngestion, Slot: slotMessages},
	}
}

func (s *ChatSummary) collect() ([]pipeline.Item[*chatToSummarize], error) {
	chats, err := artifact.ReadAll[core.Chat](s.env.Workspace.ArtifactPath(ArtifactChats))
	if err != nil {
		return nil, err
	}
	msgs, err := artifact.ReadAll[core.Message](s.env.Workspace.ArtifactPath(ArtifactMessages))
	if err != nil {
		return nil, err
	}

	byChat := make(map[string][]*core.Message)
	seenMsg := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if seenMsg[m.ID] {
			continue
		}
		seenMsg[m.ID] = true
		byChat[m.ChatID] = append(byChat[m.ChatID], m)
	}
	for _, ms := range byChat {
		sort.Slice(ms, func(i, j int) bool { return ms[i].SeqNo < ms[j].SeqNo })
	}

	items := make([]pipeline.Item[*chatToSummarize], 0, len(chats))
	seen := make(map[string]bool, len(chats))
	for _, c := range chats {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		ms := byChat[c.ID]
		if len(ms) == 0 {
			s.env.logger().Warn("chat has no messages to summarize", "chat", c.ID)
			continue
		}
		ids := make([]string, len(ms))
		for i, m := range ms {
			ids[i] = m.ID
		}
		hash := core.HashSummary(c.ID, ids)
		items = append(items, pipeline.Item[*chatToSummarize]{
			Hash: hash,
			Value: &chatToSummarize{
				chat:        c,
				messages:    ms,
				summaryHash: hash,
			},
		})
	}
	return items, nil
}

func (s *ChatSummary) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageChatSummary)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageChatSummary, Total: len(items), NeedsInit: s.env.needsInit(ArtifactChatSumms)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *ChatSummary) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageChatSummary)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages)
	if err != nil {
		return nil, err
	}
	summaries, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactChatSumms), index)
	if err != nil {
		return nil, err
	}
	defer summaries.Close()

	summarizer := s.env.Provider.Summarizer()

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageChatSummary), items, led,
		func(ctx context.Context, it pipeline.Item[*chatToSummarize]) error {
			chat := it.Value.chat
			texts := make([]string, len(it.Value.messages))
			ids := make([]string, len(it.Value.messages))
			for i, m := range it.Value.messages {
				texts[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
				ids[i] = m.ID
			}

			var text string
			err := pipeline.RetryWithBackoff(ctx, func() error {
				var sumErr error
				text, sumErr = summarizer.SummarizeChat(ctx, chat.Title, texts)
				return sumErr
			}, summMaxAttempts, summBaseDelay)
			if err != nil {
				return fmt.Errorf("summarize chat %s: %w", chat.ID, err)
			}

			summary := &core.Summary{
				Hash:         it.Value.summaryHash,
				Kind:         core.SummaryChat,
				ParentID:     chat.ID,
				ChatID:       chat.ID,
				Text:         text,
				Constituents: ids,
				Method:       s.env.SummaryMethod,
			}
			return summaries.Append(summary)
		})

	s.env.writeMetadata(StageChatSummary, s.env.SummaryMethod, out, started)
	return out, runErr
}
