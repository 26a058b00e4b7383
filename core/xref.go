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


package core

import (
	"fmt"
	"sync"
)

// XRef is the set of ancestor ids a record declares. Zero values mean "no
// ancestor of that kind"; a non-zero value must resolve against the index of
// already-accepted upstream records.
type XRef struct {
	ChatID        string
	MessageID     string
	ChunkID       string
	EmbeddingHash string
	SummaryHash   string
	// ParentIDs are summary-parent ids (chat ids or synthetic cluster_N
	// ids), declared by positions and similarity edges.
	ParentIDs []string
	ClusterID *int
}

// XRefIndex holds the ids of all accepted upstream entities. Writers consult
// it before accepting a record; a record whose declared ancestor cannot be
// resolved is a schema validation error, not data.
type XRefIndex struct {
	mu         sync.RWMutex
	chats      map[string]struct{}
	messages   map[string]struct{}
	chunks     map[string]struct{}
	embeddings map[string]struct{}
	summaries  map[string]struct{}
	parents    map[string]struct{}
	clusters   map[int]struct{}
}

func NewXRefIndex() *XRefIndex {
	return &XRefIndex{
		chats:      make(map[string]struct{}),
		messages:   make(map[string]struct{}),
		chunks:     make(map[string]struct{}),
		embeddings: make(map[string]struct{}),
		summaries:  make(map[string]struct{}),
		parents:    make(map[string]struct{}),
		clusters:   make(map[int]struct{}),
	}
}

func (x *XRefIndex) AddChat(id string)      { x.add(x.chats, id) }
func (x *XRefIndex) AddMessage(id string)   { x.add(x.messages, id) }
func (x *XRefIndex) AddChunk(id string)     { x.add(x.chunks, id) }
func (x *XRefIndex) AddEmbedding(id string) { x.add(x.embeddings, id) }
func (x *XRefIndex) AddSummary(hash string) { x.add(x.summaries, hash) }
func (x *XRefIndex) AddParent(id string)    { x.add(x.parents, id) }

func (x *XRefIndex) AddCluster(id int) {
	x.mu.Lock()
	x.clusters[id] = struct{}{}
	x.mu.Unlock()
}

func (x *XRefIndex) add(set map[string]struct{}, id string) {
	if id == "" {
		return
	}
	x.mu.Lock()
	set[id] = struct{}{}
	x.mu.Unlock()
}

// Index populates the index from a record's own identity, so later records
// can reference it.
func (x *XRefIndex) Index(rec Record) {
	switch r := rec.(type) {
	case *Chat:
		x.AddChat(r.ID)
	case *Message:
		x.AddMessage(r.ID)
	case *Chunk:
		x.AddChunk(r.ID)
	case *Embedding:
		x.AddEmbedding(r.Hash)
	case *ClusterAssignment:
		x.AddCluster(r.ClusterID)
	case *Summary:
		x.AddSummary(r.Hash)
		x.AddParent(r.ParentID)
	}
}

// Resolve validates every non-zero ancestor id in the given XRef. The first
// unresolvable id is returned wrapped in ErrUnresolvedXRef.
func (x *XRefIndex) Resolve(ref XRef) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := resolve(x.chats, ref.ChatID, "chat"); err != nil {
		return err
	}
	if err := resolve(x.messages, ref.MessageID, "message"); err != nil {
		return err
	}
	if err := resolve(x.chunks, ref.ChunkID, "chunk"); err != nil {
		return err
	}
	if err := resolve(x.embeddings, ref.EmbeddingHash, "embedding"); err != nil {
		return err
	}
	if err := resolve(x.summaries, ref.SummaryHash, "summary"); err != nil {
		return err
	}
	for _, id := range ref.ParentIDs {
		if err := resolve(x.parents, id, "summary parent"); err != nil {
			return err
		}
	}
	if ref.ClusterID != nil && *ref.ClusterID != NoiseCluster {
		if _, ok := x.clusters[*ref.ClusterID]; !ok {
			return fmt.Errorf("%w: cluster %d", ErrUnresolvedXRef, *ref.ClusterID)
		}
	}
	return nil
}

func resolve(set map[string]struct{}, id, kind string) error {
	if id == "" {
		return nil
	}
	if _, ok := set[id]; !ok {
		return fmt.Errorf("%w: %s %s", ErrUnresolvedXRef, kind, id)
	}
	return nil
}
