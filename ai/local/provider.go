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


package local

import (
	"github.com/poiesic/cartograph/ai"
)

// Provider implements ai.Provider with purely in-process heuristics: no
// network, no models, no credentials. Output schemas match the OpenAI
// provider exactly, so artifacts are interchangeable downstream.
type Provider struct {
	embedder   ai.Embedder
	tagger     ai.Tagger
	summarizer ai.Summarizer
	clusterer  ai.Clusterer
}

// NewProvider creates the heuristic provider.
//
// Returns ai.Provider interface for consistency with the OpenAI constructor.
func NewProvider(config *ai.Config) ai.Provider {
	return &Provider{
		embedder:   NewEmbedder(),
		tagger:     NewTagger(config.MaxTags),
		summarizer: NewSummarizer(),
		clusterer:  NewClusterer(config.ClusterThreshold),
	}
}

// Embedder returns the hashed-feature embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Tagger returns the term-frequency tagging service.
func (p *Provider) Tagger() ai.Tagger {
	return p.tagger
}

// Summarizer returns the extractive summarization service.
func (p *Provider) Summarizer() ai.Summarizer {
	return p.summarizer
}

// Clusterer returns the leader clustering service.
func (p *Provider) Clusterer() ai.Clusterer {
	return p.clusterer
}

// Close is a no-op; the heuristic services hold no resources.
func (p *Provider) Close() error {
	return nil
}
