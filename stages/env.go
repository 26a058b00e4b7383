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
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/cartograph/ai"
	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/core"
	"github.com/poiesic/cartograph/ledger"
	"github.com/poiesic/cartograph/loader"
	"github.com/poiesic/cartograph/pipeline"
	"github.com/poiesic/cartograph/storage"
)

// Env carries everything the stage implementations share: the workspace, the
// ledger registry, the AI provider, the vector repository, and runner
// tuning. One Env serves one pipeline invocation.
type Env struct {
	Workspace *artifact.Workspace
	Ledgers   *pipeline.Ledgers
	Provider  ai.Provider
	Vectors   storage.VectorRepository

	// Graph and Points are the terminal stores. Both stay nil unless the
	// loading stage is selected; the pipeline core never sees credentials.
	Graph  loader.GraphWriter
	Points loader.PointUpserter

	Runner pipeline.RunnerConfig

	// EmbeddingModel names the model recorded in embedding hashes; changing
	// it invalidates every embedding.
	EmbeddingModel string

	// TaggingMethod and SummaryMethod are recorded in artifacts and
	// metadata ("llm" or "heuristic").
	TaggingMethod string
	SummaryMethod string

	ChunkSize    int
	ChunkOverlap int

	Logger *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) ledger(stage string) (*ledger.Ledger, error) {
	return e.Ledgers.Get(stage)
}

// runnerFor stamps the stage name onto the shared runner config so progress
// lines identify their stage.
func (e *Env) runnerFor(stage string) pipeline.RunnerConfig {
	cfg := e.Runner
	cfg.Label = stage
	return cfg
}

// needsInit reports whether any of the stage's output artifacts has not been
// created yet. A stage with zero items still runs once to materialize empty
// artifacts, so downstream can tell "empty" from "never ran".
func (e *Env) needsInit(names ...string) bool {
	for _, name := range names {
		if !e.Workspace.ArtifactExists(name) {
			return true
		}
	}
	return false
}

// loadIndex builds a cross-reference index from the named upstream
// artifacts. Missing artifacts contribute nothing; the resolver has already
// decided whether that is acceptable for this stage.
func (e *Env) loadIndex(names ...string) (*core.XRefIndex, error) {
	index := core.NewXRefIndex()
	for _, name := range names {
		if !e.Workspace.ArtifactExists(name) {
			continue
		}
		path := e.Workspace.ArtifactPath(name)
		var err error
		switch name {
		case ArtifactChats:
			err = artifact.ForEach(path, func(c *core.Chat) error {
				index.Index(c)
				return nil
			})
		case ArtifactMessages:
			err = artifact.ForEach(path, func(m *core.Message) error {
				index.Index(m)
				return nil
			})
		case ArtifactChunks:
			err = artifact.ForEach(path, func(c *core.Chunk) error {
				index.Index(c)
				return nil
			})
		case ArtifactEmbeddings, ArtifactSummaryEmbs:
			err = artifact.ForEach(path, func(em *core.Embedding) error {
				index.Index(em)
				return nil
			})
		case ArtifactClusters:
			err = artifact.ForEach(path, func(a *core.ClusterAssignment) error {
				index.Index(a)
				return nil
			})
		case ArtifactChatSumms, ArtifactClusterSumms:
			err = artifact.ForEach(path, func(s *core.Summary) error {
				index.Index(s)
				return nil
			})
		default:
			err = fmt.Errorf("unindexable artifact %q", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return index, nil
}

// writeMetadata records a finished run's counts for operator visibility.
// Failures are logged, never fatal.
func (e *Env) writeMetadata(stage, method string, out *pipeline.Outcome, started time.Time) {
	md := &artifact.Metadata{
		Stage:      stage,
		Method:     method,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if out != nil {
		md.Candidates = out.Candidates
		md.Processed = out.Processed
		md.Skipped = out.Skipped
		md.Failed = out.Failed
	}
	if err := artifact.WriteMetadata(e.Workspace.MetadataPath(stage), md); err != nil {
		e.logger().Warn("metadata write failed", "stage", stage, "err", err)
	}
}
