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

// maxClusterExcerpts caps how many chunk excerpts go into one cluster
// summarization prompt. Beyond this the marginal excerpt adds tokens, not
// signal.
const maxClusterExcerpts = 12

// clusterToSummarize is one cluster from the latest clustering run with the
// chunk content needed to summarize it.
type clusterToSummarize struct {
	clusterID   int
	parentID    string
	excerpts    []string
	chunkHashes []string
	summaryHash string
}

// ClusterSummary produces one summary per cluster of the latest clustering
// run. Cluster ids are run-scoped, so the summary hash covers the sorted
// constituent chunk hashes rather than the id alone.
type ClusterSummary struct {
	env *Env
}

func NewClusterSummary(env *Env) *ClusterSummary {
	return &ClusterSummary{env: env}
}

func (s *ClusterSummary) Name() string           { return StageClusterSumm }
func (s *ClusterSummary) Dependencies() []string { return []string{StageClustering} }

func (s *ClusterSummary) Inputs() []pipeline.Input {
	return []pipeline.Input{
		{Artifact: ArtifactClusters, Producer: StageClustering, Slot: slotAssignments},
		{Artifact: ArtifactChunks, Producer: StageChunking, Slot: slotChunks},
	}
}

func (s *ClusterSummary) collect() ([]pipeline.Item[*clusterToSummarize], error) {
	assignments, err := artifact.ReadAll[core.ClusterAssignment](s.env.Workspace.ArtifactPath(ArtifactClusters))
	if err != nil {
		return nil, err
	}
	chunks, err := artifact.ReadAll[core.Chunk](s.env.Workspace.ArtifactPath(ArtifactChunks))
	if err != nil {
		return nil, err
	}

	contentByHash := make(map[string]string, len(chunks))
	for _, c := range chunks {
		contentByHash[c.Hash] = c.Content
	}

	byCluster := make(map[int][]*core.ClusterAssignment)
	for _, a := range assignments {
		if a.ClusterID == core.NoiseCluster {
			continue
		}
		byCluster[a.ClusterID] = append(byCluster[a.ClusterID], a)
	}

	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	items := make([]pipeline.Item[*clusterToSummarize], 0, len(ids))
	for _, id := range ids {
		members := byCluster[id]
		hashes := make([]string, len(members))
		for i, a := range members {
			hashes[i] = a.ChunkHash
		}
		sort.Strings(hashes)

		excerpts := make([]string, 0, maxClusterExcerpts)
		for _, a := range members {
			content, ok := contentByHash[a.ChunkHash]
			if !ok {
				return nil, fmt.Errorf("cluster %d references unknown chunk hash %s", id, a.ChunkHash)
			}
			if len(excerpts) < maxClusterExcerpts {
				excerpts = append(excerpts, content)
			}
		}

		parentID := fmt.Sprintf("cluster_%d", id)
		hash := core.HashSummary(parentID, hashes)
		items = append(items, pipeline.Item[*clusterToSummarize]{
			Hash: hash,
			Value: &clusterToSummarize{
				clusterID:   id,
				parentID:    parentID,
				excerpts:    excerpts,
				chunkHashes: hashes,
				summaryHash: hash,
			},
		})
	}
	return items, nil
}

func (s *ClusterSummary) Plan(ctx context.Context, force bool) (*pipeline.StagePlan, error) {
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageClusterSumm)
	if err != nil {
		return nil, err
	}
	plan := &pipeline.StagePlan{Stage: StageClusterSumm, Total: len(items), NeedsInit: s.env.needsInit(ArtifactClusterSumms)}
	for _, it := range items {
		if force || !led.Contains(it.Hash) {
			plan.Pending++
		}
	}
	return plan, nil
}

func (s *ClusterSummary) Run(ctx context.Context) (*pipeline.Outcome, error) {
	started := time.Now()
	items, err := s.collect()
	if err != nil {
		return nil, err
	}
	led, err := s.env.ledger(StageClusterSumm)
	if err != nil {
		return nil, err
	}

	index, err := s.env.loadIndex(ArtifactChats, ArtifactMessages, ArtifactChunks, ArtifactClusters)
	if err != nil {
		return nil, err
	}
	summaries, err := artifact.NewWriter(s.env.Workspace.ArtifactPath(ArtifactClusterSumms), index)
	if err != nil {
		return nil, err
	}
	defer summaries.Close()

	summarizer := s.env.Provider.Summarizer()

	out, runErr := pipeline.Run(ctx, s.env.runnerFor(StageClusterSumm), items, led,
		func(ctx context.Context, it pipeline.Item[*clusterToSummarize]) error {
			cl := it.Value

			var text string
			err := pipeline.RetryWithBackoff(ctx, func() error {
				var sumErr error
				text, sumErr = summarizer.SummarizeCluster(ctx, cl.excerpts)
				return sumErr
			}, summMaxAttempts, summBaseDelay)
			if err != nil {
				return fmt.Errorf("summarize cluster %d: %w", cl.clusterID, err)
			}

			summary := &core.Summary{
				Hash:         cl.summaryHash,
				Kind:         core.SummaryCluster,
				ParentID:     cl.parentID,
				ClusterID:    cl.clusterID,
				Text:         text,
				Constituents: cl.chunkHashes,
				Method:       s.env.SummaryMethod,
			}
			return summaries.Append(summary)
		})

	s.env.writeMetadata(StageClusterSumm, s.env.SummaryMethod, out, started)
	return out, runErr
}
