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


// Package ai provides abstractions for the AI services used by the pipeline.
//
// Four interfaces cover everything the stages consume:
//
//   - Embedder: vector embeddings from text
//   - Tagger: topical tags for one message
//   - Summarizer: chat and cluster summaries
//   - Clusterer: grouping and planar projection of an embedding corpus
//
// Provider aggregates them for initialization and lifecycle management.
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//     (any host speaking the protocol: OpenAI, Ollama, vLLM, LocalAI)
//   - ai/local: heuristic implementations with no network dependency at all
//   - ai/mock: test doubles for unit testing
//
// Every implementation of an interface produces the same output schema, so
// artifacts written by a cloud run and a local run are interchangeable
// downstream. Switching method never changes record shape, only content
// quality.
//
// Public constructors (openai.NewProvider, local.NewProvider) return
// interface types to enforce abstraction. Mock constructors return concrete
// types so tests can inject behavior and assert call counts.
package ai
