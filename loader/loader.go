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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/graphstore"
	"github.com/poiesic/cartograph/ledger"
	"github.com/poiesic/cartograph/storage"
	"github.com/poiesic/cartograph/vectorstore"
)

// Ledger slot names, one per artifact type the loader writes. Each slot holds
// the digest of the full record-hash set last committed, so an unchanged
// artifact type is skipped wholesale on rerun.
const (
	SlotChatNodes       = "chat_nodes"
	SlotMessageNodes    = "message_nodes"
	SlotChunkNodes      = "chunk_nodes"
	SlotClusterNodes    = "cluster_nodes"
	SlotTagNodes        = "tag_nodes"
	SlotSummaryNodes    = "summary_nodes"
	SlotPositionProps   = "position_props"
	SlotContainsEdges   = "contains_edges"
	SlotChunkEdges      = "chunk_edges"
	SlotTagEdges        = "tag_edges"
	SlotSummaryEdges    = "summary_edges"
	SlotSimilarityEdges = "similarity_edges"
	SlotChunkPoints     = "chunk_points"
	SlotSummaryPoints   = "summary_points"
)

// highSimilarity is the score above which a similarity edge gets the HIGH
// relationship type instead of MEDIUM.
const highSimilarity = 0.85

// GraphWriter is the graph-store surface the loader needs.
type GraphWriter interface {
	EnsureSchema(ctx context.Context) error
	MergeNodes(ctx context.Context, label, key string, rows []map[string]any) error
	SetNodeProperties(ctx context.Context, label, key string, rows []map[string]any) (int, error)
	MergeRelationships(ctx context.Context, spec graphstore.RelSpec, rows []map[string]any) (int, error)
}

// PointUpserter is the vector-store surface the loader needs.
type PointUpserter interface {
	EnsureCollection(ctx context.Context, dims int) error
	UpsertPoints(ctx context.Context, points []vectorstore.Point) error
}

// Snapshot is the full set of finalized artifacts a load run consumes.
type Snapshot struct {
	Chats             []*core.Chat
	Messages          []*core.Message
	Chunks            []*core.Chunk
	ChunkEmbeddings   []*core.Embedding
	Assignments       []*core.ClusterAssignment
	Tags              []*core.Tag
	ChatSummaries     []*core.Summary
	ClusterSummaries  []*core.Summary
	Positions         []*core.Position
	SummaryEmbeddings []*core.Embedding
	Edges             []*core.SimilarityEdge
}

// Report summarizes one load run for operator visibility.
type Report struct {
	Written map[string]int
	Skipped []string
	Failed  []string
}

// DualStoreLoader writes the finalized artifacts to the graph store and the
// vector store. Nodes go in before the relationships that reference them; a
// failure in one slot never blocks the others, and only a fully written slot
// advances its ledger entry.
type DualStoreLoader struct {
	graph   GraphWriter
	points  PointUpserter
	vectors storage.VectorRepository
	led     *ledger.Ledger
	logger  *slog.Logger
}

func New(graph GraphWriter, points PointUpserter, vectors storage.VectorRepository, led *ledger.Ledger) *DualStoreLoader {
	return &DualStoreLoader{
		graph:   graph,
		points:  points,
		vectors: vectors,
		led:     led,
		logger:  slog.Default().With("component", "loader"),
	}
}

// Plan reports how many slots hold data and how many of those would be
// written. It touches neither store, so it works without credentials.
func (l *DualStoreLoader) Plan(snap *Snapshot, force bool) (total, pending int) {
	for _, w := range l.plan(snap) {
		if w.count == 0 {
			continue
		}
		total++
		if force || !l.led.SlotContains(w.slot, w.hash) {
			pending++
		}
	}
	return total, pending
}

// slotWork is one ledger slot's unit of loading: the digest of what would be
// written and the write itself.
type slotWork struct {
	slot  string
	hash  string
	count int
	write func(ctx context.Context) error
}

// Load runs every pending slot. The returned error aggregates per-slot
// failures as PartialWriteError values; a non-nil error still means every
// slot not named in it was committed.
func (l *DualStoreLoader) Load(ctx context.Context, snap *Snapshot) (*Report, error) {
	report := &Report{Written: make(map[string]int)}

	work := l.plan(snap)

	var pending []slotWork
	for _, w := range work {
		if w.count == 0 || l.led.SlotContains(w.slot, w.hash) {
			report.Skipped = append(report.Skipped, w.slot)
			continue
		}
		pending = append(pending, w)
	}
	if len(pending) == 0 {
		return report, nil
	}

	if err := l.graph.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensure graph schema: %w", err)
	}
	if dims := pointDims(snap); dims > 0 {
		if err := l.points.EnsureCollection(ctx, dims); err != nil {
			return report, fmt.Errorf("ensure collection: %w", err)
		}
	}

	var failures []error
	for _, w := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := w.write(ctx); err != nil {
			l.logger.Error("slot write failed", "slot", w.slot, "err", err)
			report.Failed = append(report.Failed, w.slot)
			failures = append(failures, &PartialWriteError{Slot: w.slot, Err: err})
			continue
		}
		l.led.SlotMark(w.slot, w.hash)
		report.Written[w.slot] = w.count
		l.logger.Info("slot written", "slot", w.slot, "records", w.count)
	}
	return report, errors.Join(failures...)
}

// plan lays the slots out in write order: nodes, then node property patches,
// then relationships, then vector points.
func (l *DualStoreLoader) plan(snap *Snapshot) []slotWork {
	summaries := append(append([]*core.Summary{}, snap.ChatSummaries...), snap.ClusterSummaries...)

	return []slotWork{
		{
			slot:  SlotChatNodes,
			hash:  hashRecords(snap.Chats),
			count: len(snap.Chats),
			write: func(ctx context.Context) error {
				return l.graph.MergeNodes(ctx, "Chat", "id", chatRows(snap.Chats))
			},
		},
		{
			slot:  SlotMessageNodes,
			hash:  hashRecords(snap.Messages),
			count: len(snap.Messages),
			write: func(ctx context.Context) error {
				return l.graph.MergeNodes(ctx, "Message", "id", messageRows(snap.Messages))
			},
		},
		{
			slot:  SlotChunkNodes,
			hash:  hashRecords(snap.Chunks),
			count: len(snap.Chunks),
			write: func(ctx context.Context) error {
				return l.graph.MergeNodes(ctx, "Chunk", "id", chunkRows(snap.Chunks))
			},
		},
		{
			slot:  SlotClusterNodes,
			hash:  hashRecords(snap.Assignments),
			count: len(snap.Assignments),
			write: func(ctx context.Context) error {
				return l.graph.MergeNodes(ctx, "Cluster", "id", clusterRows(snap.Assignments))
			},
		},
		{
			slot:  SlotTagNodes,
			hash:  hashRecords(snap.Tags),
			count: len(snap.Tags),
			write: func(ctx context.Context) error {
				return l.graph.MergeNodes(ctx, "Tag", "id", tagRows(snap.Tags))
			},
		},
		{
			slot:  SlotSummaryNodes,
			hash:  hashRecords(summaries),
			count: len(summaries),
			write: func(ctx context.Context) error {
				return l.graph.MergeNodes(ctx, "Summary", "id", summaryRows(summaries))
			},
		},
		{
			slot:  SlotPositionProps,
			hash:  hashRecords(snap.Positions),
			count: len(snap.Positions),
			write: func(ctx context.Context) error {
				return l.writePositions(ctx, snap.Positions)
			},
		},
		{
			slot:  SlotContainsEdges,
			hash:  hashRecords(snap.Messages),
			count: len(snap.Messages),
			write: func(ctx context.Context) error {
				return l.mergeRels(ctx, graphstore.RelSpec{
					FromLabel: "Chat", FromKey: "id",
					ToLabel: "Message", ToKey: "id",
					RelType: "CONTAINS",
				}, containsRows(snap.Messages))
			},
		},
		{
			slot:  SlotChunkEdges,
			hash:  hashRecords(snap.Chunks),
			count: len(snap.Chunks),
			write: func(ctx context.Context) error {
				return l.mergeRels(ctx, graphstore.RelSpec{
					FromLabel: "Message", FromKey: "id",
					ToLabel: "Chunk", ToKey: "id",
					RelType: "HAS_CHUNK",
				}, chunkEdgeRows(snap.Chunks))
			},
		},
		{
			slot:  SlotTagEdges,
			hash:  hashRecords(snap.Tags),
			count: len(snap.Tags),
			write: func(ctx context.Context) error {
				return l.writeTagEdges(ctx, snap.Tags)
			},
		},
		{
			slot:  SlotSummaryEdges,
			hash:  hashRecords(summaries),
			count: len(summaries),
			write: func(ctx context.Context) error {
				return l.writeSummaryEdges(ctx, summaries)
			},
		},
		{
			slot:  SlotSimilarityEdges,
			hash:  hashRecords(snap.Edges),
			count: len(snap.Edges),
			write: func(ctx context.Context) error {
				return l.writeSimilarityEdges(ctx, snap.Edges)
			},
		},
		{
			slot:  SlotChunkPoints,
			hash:  hashRecords(snap.ChunkEmbeddings),
			count: len(snap.ChunkEmbeddings),
			write: func(ctx context.Context) error {
				return l.writePoints(ctx, snap.ChunkEmbeddings)
			},
		},
		{
			slot:  SlotSummaryPoints,
			hash:  hashRecords(snap.SummaryEmbeddings),
			count: len(snap.SummaryEmbeddings),
			write: func(ctx context.Context) error {
				return l.writePoints(ctx, snap.SummaryEmbeddings)
			},
		},
	}
}

// mergeRels writes relationship rows and retries once when endpoints were
// missing; node slots run earlier in the same pass, so a second attempt
// normally resolves them. Rows still unmatched after the retry fail the slot.
func (l *DualStoreLoader) mergeRels(ctx context.Context, spec graphstore.RelSpec, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	matched, err := l.graph.MergeRelationships(ctx, spec, rows)
	if err != nil {
		return err
	}
	if matched < len(rows) {
		l.logger.Warn("relationship endpoints missing, retrying",
			"type", spec.RelType, "matched", matched, "rows", len(rows))
		matched, err = l.graph.MergeRelationships(ctx, spec, rows)
		if err != nil {
			return err
		}
		if matched < len(rows) {
			return fmt.Errorf("%w: %s matched %d of %d rows",
				graphstore.ErrUnmatchedRows, spec.RelType, matched, len(rows))
		}
	}
	return nil
}

func (l *DualStoreLoader) writePositions(ctx context.Context, positions []*core.Position) error {
	byLabel := map[string][]map[string]any{}
	for _, p := range positions {
		label := "Chat"
		if p.ParentKind == core.SummaryCluster {
			label = "Cluster"
		}
		byLabel[label] = append(byLabel[label], map[string]any{
			"id": p.ParentID,
			"props": map[string]any{
				"x":             p.X,
				"y":             p.Y,
				"position_hash": p.Hash,
			},
		})
	}
	for label, rows := range byLabel {
		matched, err := l.graph.SetNodeProperties(ctx, label, "id", rows)
		if err != nil {
			return err
		}
		if matched < len(rows) {
			return fmt.Errorf("%w: %s positions matched %d of %d rows",
				graphstore.ErrUnmatchedRows, label, matched, len(rows))
		}
	}
	return nil
}

func (l *DualStoreLoader) writeTagEdges(ctx context.Context, tags []*core.Tag) error {
	var msgRows, chunkRows []map[string]any
	for _, t := range tags {
		msgRows = append(msgRows, map[string]any{
			"from": t.Tag, "to": t.MessageID,
			"props": map[string]any{"tag_hash": t.Hash},
		})
		for _, chunkID := range t.ChunkIDs {
			chunkRows = append(chunkRows, map[string]any{
				"from": t.Tag, "to": chunkID,
				"props": map[string]any{"tag_hash": t.Hash},
			})
		}
	}
	if err := l.mergeRels(ctx, graphstore.RelSpec{
		FromLabel: "Tag", FromKey: "id",
		ToLabel: "Message", ToKey: "id",
		RelType: "TAGS",
	}, msgRows); err != nil {
		return err
	}
	return l.mergeRels(ctx, graphstore.RelSpec{
		FromLabel: "Tag", FromKey: "id",
		ToLabel: "Chunk", ToKey: "id",
		RelType: "TAGS",
	}, chunkRows)
}

func (l *DualStoreLoader) writeSummaryEdges(ctx context.Context, summaries []*core.Summary) error {
	byLabel := map[string][]map[string]any{}
	for _, s := range summaries {
		label := "Chat"
		if s.Kind == core.SummaryCluster {
			label = "Cluster"
		}
		byLabel[label] = append(byLabel[label], map[string]any{
			"from": s.Hash, "to": s.ParentID,
			"props": map[string]any{"method": s.Method},
		})
	}
	for label, rows := range byLabel {
		spec := graphstore.RelSpec{
			FromLabel: "Summary", FromKey: "id",
			ToLabel: label, ToKey: "id",
			RelType: "SUMMARIZES",
		}
		if err := l.mergeRels(ctx, spec, rows); err != nil {
			return err
		}
	}
	return nil
}

func (l *DualStoreLoader) writeSimilarityEdges(ctx context.Context, edges []*core.SimilarityEdge) error {
	type bucket struct {
		label   string
		relType string
	}
	grouped := map[bucket][]map[string]any{}
	for _, e := range edges {
		label := "Chat"
		if e.Kind == core.SummaryCluster {
			label = "Cluster"
		}
		relType := "SIMILAR_MEDIUM"
		if e.Score > highSimilarity {
			relType = "SIMILAR_HIGH"
		}
		grouped[bucket{label, relType}] = append(grouped[bucket{label, relType}], map[string]any{
			"from": e.IDA, "to": e.IDB,
			"props": map[string]any{"score": e.Score, "edge_hash": e.Hash},
		})
	}
	for b, rows := range grouped {
		spec := graphstore.RelSpec{
			FromLabel: b.label, FromKey: "id",
			ToLabel: b.label, ToKey: "id",
			RelType: b.relType,
		}
		if err := l.mergeRels(ctx, spec, rows); err != nil {
			return err
		}
	}
	return nil
}

// writePoints upserts one vector point per embedding, with the full set of
// cross-reference ids in the payload so a vector hit joins straight back to
// the graph.
func (l *DualStoreLoader) writePoints(ctx context.Context, embeddings []*core.Embedding) error {
	points := make([]vectorstore.Point, 0, len(embeddings))
	for _, e := range embeddings {
		vector, err := l.vectors.Get(ctx, e.Hash)
		if err != nil {
			return fmt.Errorf("load vector %s: %w", e.Hash, err)
		}
		points = append(points, vectorstore.Point{
			ID:      vectorstore.PointID(e.Hash),
			Vector:  vector,
			Payload: pointPayload(e),
		})
	}
	return l.points.UpsertPoints(ctx, points)
}

// hashRecords digests the record-hash set of one artifact slice.
func hashRecords[T core.Record](records []T) string {
	if len(records) == 0 {
		return ""
	}
	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.RecordHash()
	}
	return core.HashSet(hashes)
}

// pointDims finds the vector dimension any new collection must use.
func pointDims(snap *Snapshot) int {
	for _, e := range snap.ChunkEmbeddings {
		if e.Dims > 0 {
			return e.Dims
		}
	}
	for _, e := range snap.SummaryEmbeddings {
		if e.Dims > 0 {
			return e.Dims
		}
	}
	return 0
}
