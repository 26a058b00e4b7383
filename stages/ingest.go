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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/pipeline"
)

// archiveMessage is one message as it appears in a source export file.
type archiveMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// archiveConversation is one conversation in a source export file.
type archiveConversation struct {
	Title    string           `json:"title"`
	Messages []archiveMessage `json:"messages"`
}

// chatBundle is one candidate: a hashed chat with its hashed messages.
type chatBundle struct {
	chat     *core.Chat
	messages []*core.Message
}

// Ingest reads bulk export archives and emits content-addressed Chat and
// Message records. The chat id covers the normalized title and the sorted
// message content digests, so re-exported identical conversations are
// skipped and edited ones arrive as entirely new chats.
type Ingest struct {
	env      *Env
	inputDir string
}

func NewIngest(env *Env, inputDir string) *Ingest {
	return &Ingest{env: env, inputDir: inputDir}
}

func (s *Ingest) Name() string             { return StageIngestion }
func (s *Ingest) Dependencies() []string   { return nil }
func (s *Ingest) Inputs() []pipeline.Input { return nil }

// collect parses every *.json archive under the input directory into hashed
// candidate bundles. Malformed conversations fail the stage up front; an
// archive that cannot be parsed should never be half-ingested.
func (s *Ingest) collect() ([]pipeline.Item[*chatBundle], error) {
	paths, err := filepath.Glob(filepath.Join(s.inputDir, "*.json"))
	if err != nil {
		return nil, err
	}

	var items []pipeline.Item[*chatBundle]
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read archive %s: %w", path, err)
		}
		var conversations []archiveConversation
		if err := json.Unmarshal(data, &conversations); err != nil {
			return nil, fmt.Errorf("parse archive %s: %w", path, err)
		}

		for ci, conv := range conversations {
			bundle, err := s.hashConversation(conv, filepath.Base(path))
			if err != nil {
				return nil, fmt.Errorf("archive %s conversation %d: %w", path, ci, err)
			}
			if bundle == nil {
				continue
			}
			items = append(items, pipeline.Item[*chatBundle]{
				Hash:  bundle.chat.ID,
				Value: bundle,
			})
		}
	}
	return items, nil
}

// hashConversation turns one raw conversation into a content-addressed
// bundle. Messages with empty content or an unknown role are dropped with a
// warning; a conversation with no usable messages is skipped entirely.
func (s *Ingest) hashConversation(conv archiveConversation, sourceFile string) (*chatBundle, error) {
	type kept struct {
		raw   archiveMessage
		role  core.Role
		chash string
	}
	var usable []kept
	for _, m := range conv.Messages {
		if core.NormalizeText(m.Content) == "" {
			continue
		}
		role := core.Role(m.Role)
		if err := core.ValidateRole(role); err != nil {
			s.env.logger().Warn("skipping message with unknown role",
				"source", sourceFile, "role", m.Role)
			continue
		}
		usable = append(usable, kept{
			raw:   m,
			role:  role,
			chash: core.HashFields(map[string]any{"content": m.Content}),
		})
	}
	if len(usable) == 0 {
		return nil, nil
	}

	contentHashes := make([]string, len(usable))
	for i, k := range usable {
		contentHashes[i] = k.chash
	}
	chatID := core.HashChat(conv.Title, contentHashes)

	bundle := &chatBundle{
		chat: &core.Chat{
			ID:         chatID,
			Title:      conv.Title,
			SourceFile: sourceFile,
		},
	}
	for seq, k := range usable {
		msg := &core.Message{
			ID:       core.HashMessage(chatID, k.role, k.raw.Content, k.raw.ID),
			ChatID:   chatID,
			Role:     k.role,
			Content:  k.raw.Content,
			SourceID: k.raw.ID,
			SeqNo:    seq,
		}
		if err := core.ValidateMessage(msg); err != nil {
			return nil, err
		}
		bundle.chat.MessageIDs = append(bundle.chat.MessageIDs, msg.ID)
		bundle.messages = append(bundle.messages, msg)
	}
	if err := core.ValidateChat(bundle.chat); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (s *Ingest) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageIngestion)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{
		Stage:     StageIngestion,
		Total:     len(items),
		NeedsInit: s.env.needsInit(ArtifactChats, ArtifactMessages),
	}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *Ingest) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageIngestion)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages)
	if err != nil {
		return nil, err
	}
	chats, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactChats), index)
	if err != nil {
		return nil, err
	}
	defer chats.Close()
	messages, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactMessages), index)
	if err != nil {
		return nil, err
	}
	defer messages.Close()

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageIngestion), items, led,
		func(ctx context.Context, it pipeline.Item[*chatBundle]) error {
			if err := chats.Append(it.Value.chat); err != nil {
				return err
			}
			for _, msg := range it.Value.messages {
				if err := messages.Append(msg); err != nil {
					return err
				}
				led.SlotMark(slotMessages, msg.ID)
			}
			return nil
		})

	s.env.writeMetadata(StageIngestion, "archive", out, started)
	return out, runErr
}
