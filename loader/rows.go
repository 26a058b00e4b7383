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
	"fmt"

	"github.com/poiesic/cartograph/core"
)

// Row builders. Each node row is the node's full scalar property map; the
// graph never stores raw vectors.

func chatRows(chats []*core.Chat) []map[string]any {
	rows := make([]map[string]any, len(chats))
	for i, c := range chats {
		rows[i] = map[string]any{
			"id":          c.ID,
			"title":       c.Title,
			"source_file": c.SourceFile,
		}
	}
	return rows
}

func messageRows(messages []*core.Message) []map[string]any {
	rows := make([]map[string]any, len(messages))
	for i, m := range messages {
		rows[i] = map[string]any{
			"id":        m.ID,
			"chat_id":   m.ChatID,
			"role":      string(m.Role),
			"content":   m.Content,
			"source_id": m.SourceID,
			"seq_no":    m.SeqNo,
		}
	}
	return rows
}

func chunkRows(chunks []*core.Chunk) []map[string]any {
	rows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]any{
			"id":         c.ID,
			"hash":       c.Hash,
			"chat_id":    c.ChatID,
			"message_id": c.MessageID,
			"msg_idx":    c.MsgIdx,
			"chunk_idx":  c.ChunkIdx,
			"content":    c.Content,
		}
	}
	return rows
}

// clusterRows collapses assignments into one node per cluster. Noise
// assignments produce no node; their chunks simply have no cluster edge.
func clusterRows(assignments []*core.ClusterAssignment) []map[string]any {
	sizes := map[int]int{}
	runHash := map[int]string{}
	for _, a := range assignments {
		if a.ClusterID == core.NoiseCluster {
			continue
		}
		sizes[a.ClusterID]++
		runHash[a.ClusterID] = a.RunHash
	}
	rows := make([]map[string]any, 0, len(sizes))
	for id, size := range sizes {
		rows = append(rows, map[string]any{
			"id":         fmt.Sprintf("cluster_%d", id),
			"cluster_id": id,
			"size":       size,
			"run_hash":   runHash[id],
		})
	}
	return rows
}

// tagRows emits one node per distinct tag text; the same tag on many
// messages is one graph node with many TAGS edges.
func tagRows(tags []*core.Tag) []map[string]any {
	seen := map[string]bool{}
	var rows []map[string]any
	for _, t := range tags {
		if seen[t.Tag] {
			continue
		}
		seen[t.Tag] = true
		rows = append(rows, map[string]any{
			"id":   t.Tag,
			"name": t.Tag,
		})
	}
	return rows
}

func summaryRows(summaries []*core.Summary) []map[string]any {
	rows := make([]map[string]any, len(summaries))
	for i, s := range summaries {
		rows[i] = map[string]any{
			"id":        s.Hash,
			"kind":      string(s.Kind),
			"parent_id": s.ParentID,
			"text":      s.Text,
			"method":    s.Method,
		}
	}
	return rows
}

func containsRows(messages []*core.Message) []map[string]any {
	rows := make([]map[string]any, len(messages))
	for i, m := range messages {
		rows[i] = map[string]any{
			"from": m.ChatID, "to": m.ID,
			"props": map[string]any{"seq_no": m.SeqNo},
		}
	}
	return rows
}

func chunkEdgeRows(chunks []*core.Chunk) []map[string]any {
	rows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]any{
			"from": c.MessageID, "to": c.ID,
			"props": map[string]any{"chunk_idx": c.ChunkIdx},
		}
	}
	return rows
}

// pointPayload carries every cross-reference id the embedding declares, so a
// vector search hit joins back to the graph without a lookup table.
func pointPayload(e *core.Embedding) map[string]any {
	payload := map[string]any{
		"hash":       e.Hash,
		"owner_kind": string(e.OwnerKind),
		"owner_id":   e.OwnerID,
		"owner_hash": e.OwnerHash,
		"model":      e.Model,
	}
	if e.ChatID != "" {
		payload["chat_id"] = e.ChatID
	}
	if e.MessageID != "" {
		payload["message_id"] = e.MessageID
	}
	if e.OwnerKind == core.OwnerChunk {
		payload["chunk_id"] = e.OwnerID
	}
	return payload
}
