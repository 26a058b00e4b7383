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
	"github.com/poiesic/cartograph/graphstore"
	"github.com/poiesic/cartograph/loader"
	"github.com/poiesic/cartograph/pipeline"
	"github.com/poiesic/cartograph/vectorstore"
)

// Loading is the terminal stage: it hands every finalized artifact to the
// dual-store loader. Its unit of work is the ledger slot, not the item, so
// it bypasses the per-item runner.
type Loading struct {
	env *Env
}

func NewLoading(env *Env) *Loading {
	return &Loading{env: env}
}

func (s *Loading) Name() string { return StageLoading }

func (s *Loading) Dependencies() []string {
	return []string{
		StageIngestion, StageChunking, StageEmbedding, StageClustering,
		StageTagging, StageChatSummary, StageClusterSumm,
		StagePositioning, StageSimilarity,
	}
}

func (s *Loading) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactChats, Producer: StageIngestion},
		{Artifact: ArtifactMessages, Producer: StageIngestion, Slot: slotMessages},
		{Artifact: ArtifactChunks, Producer: StageChunking, Slot: slotChunks},
		{Artifact: ArtifactEmbeddings, Producer: StageEmbedding, Slot: slotEmbeddings},
		{Artifact: ArtifactClusters, Producer: StageClustering, Slot: slotAssignments},
		{Artifact: ArtifactTags, Producer: StageTagging, Slot: slotTags},
		{Artifact: ArtifactChatSumms, Producer: StageChatSummary},
		{Artifact: ArtifactClusterSumms, Producer: StageClusterSumm},
		{Artifact: ArtifactPositions, Producer: StagePositioning},
		{Artifact: ArtifactSummaryEmbs, Producer: StagePositioning, Slot: slotEmbeddings},
		{Artifact: ArtifactSimilarity, Producer: StageSimilarity, Slot: slotEdges},
	}
}

// snapshot reads every artifact the loader consumes, deduplicated by record
// hash. A missing artifact contributes an empty slice; the resolver has
// already decided whether the gap is fatal.
func (s *Loading) snapshot() (*loader.Snapshot, error) {
	snap := &loader.Snapshot{}

	var err error
	if snap.Chats, err = readDistinct[core.Chat](s.env, ArtifactChats); err != nil {
		return nil, err
	}
	if snap.Messages, err = readDistinct[core.Message](s.env, ArtifactMessages); err != nil {
		return nil, err
	}
	if snap.Chunks, err = readDistinct[core.Chunk](s.env, ArtifactChunks); err != nil {
		return nil, err
	}
	if snap.ChunkEmbeddings, err = readDistinct[core.Embedding](s.env, ArtifactEmbeddings); err != nil {
		return nil, err
	}
	if snap.Assignments, err = readDistinct[core.ClusterAssignment](s.env, ArtifactClusters); err != nil {
		return nil, err
	}
	if snap.Tags, err = readDistinct[core.Tag](s.env, ArtifactTags); err != nil {
		return nil, err
	}
	if snap.ChatSummaries, err = readDistinct[core.Summary](s.env, ArtifactChatSumms); err != nil {
		return nil, err
	}
	if snap.ClusterSummaries, err = readDistinct[core.Summary](s.env, ArtifactClusterSumms); err != nil {
		return nil, err
	}
	if snap.Positions, err = readDistinct[core.Position](s.env, ArtifactPositions); err != nil {
		return nil, err
	}
	if snap.SummaryEmbeddings, err = readDistinct[core.Embedding](s.env, ArtifactSummaryEmbs); err != nil {
		return nil, err
	}
	if snap.Edges, err = readDistinct[core.SimilarityEdge](s.env, ArtifactSimilarity); err != nil {
		return nil, err
	}
	return snap, nil
}

func readDistinct[T any](env *Env, name string) ([]*T, error) {
	if !env.Workspace.ArtifactExists(name) {
		return nil, nil
	}
	records, err := artifact.ReadAll[T](env.Workspace.ArtifactPath(name))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(records))
	out := make([]*T, 0, len(records))
	for _, r := range records {
		rec, ok := any(r).(core.Record)
		if !ok {
			return nil, fmt.Errorf("artifact %s holds non-record type %T", name, r)
		}
		if seen[rec.RecordHash()] {
			continue
		}
		seen[rec.RecordHash()] = true
		out = append(out, r)
	}
	return out, nil
}

func (s *Loading) newLoader() (*loader.DualStoreLoader, error) {
	led, err := s.env.ledger(StageLoading)
	if err != nil {
		return nil, err
	}
	return loader.New(s.env.Graph, s.env.Points, s.env.Vectors, led), nil
}

func (s *Loading) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	l, err := s.newLoader()
	if err != nil {
		return nil, err
	}
	total, pending := l.Plan(snap, force)
	return &pipeline.StagePlan{Stage: StageLoading, Total: total, Pending: pending}, nil
}

func (s *Loading) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	if s.env.Graph == nil {
		return nil, fmt.Errorf("loading: graph store: %w", graphstore.ErrNotConfigured)
	}
	if s.env.Points == nil {
		return nil, fmt.Errorf("loading: vector store: %w", vectorstore.ErrNotConfigured)
	}

	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	l, err := s.newLoader()
	if err != nil {
		return nil, err
	}

	report, loadErr := l.Load(ctx, snap)
	out := &pipeline.Outcome{
		Candidates: len(report.Written) + len(report.Skipped) + len(report.Failed),
		Processed:  len(report.Written),
		Skipped:    len(report.Skipped),
		Failed:     len(report.Failed),
	}
	s.env.writeMetadata(StageLoading, "dual_store", out, started)
	return out, loadErr
}
