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


package pipeline

import (
	"fmt"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/ledger"
)

// Resolver validates that a stage's declared upstream artifacts exist and
// are hash-consistent with their producers' ledgers before the stage runs.
type Resolver struct {
	ws      *artifact.Workspace
	ledgers *Ledgers
}

func NewResolver(ws *artifact.Workspace, ledgers *Ledgers) *Resolver {
	return &Resolver{ws: ws, ledgers: ledgers}
}

// recordKey extracts a record's identity hash from any artifact line.
// Records that carry an explicit content hash use it; chats and messages are
// identified by their id fields, which are themselves content hashes.
type recordKey struct {
	Hash      string `json:"hash"`
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

func (r *recordKey) key() string {
	if r.Hash != "" {
		return r.Hash
	}
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.ChatID
}

// Check fails closed: a missing artifact yields ErrDependencyMissing (the
// stage is skipped, not the run); a record unaccounted for in its producer's
// ledger yields ErrHashMismatch (manual edits or ledger corruption; the
// stage refuses to run until the operator resolves it).
func (r *Resolver) Check(stage Stage) error {
	for _, in := range stage.Inputs() {
		if !r.ws.ArtifactExists(in.Artifact) {
			return fmt.Errorf("%w: stage %s requires artifact %s (produced by %s)",
				ErrDependencyMissing, stage.Name(), in.Artifact, in.Producer)
		}

		led, err := r.ledgers.Get(in.Producer)
		if err != nil {
			return err
		}
		slot := in.Slot
		if slot == "" {
			slot = ledger.DefaultSlot
		}

		path := r.ws.ArtifactPath(in.Artifact)
		err = artifact.ForEach(path, func(rk *recordKey) error {
			k := rk.key()
			if k == "" {
				return fmt.Errorf("%w: %s contains a record with no identity hash",
					ErrHashMismatch, in.Artifact)
			}
			if !led.SlotContains(slot, k) {
				return fmt.Errorf("%w: %s record %s not in %s ledger slot %q",
					ErrHashMismatch, in.Artifact, k, in.Producer, slot)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
