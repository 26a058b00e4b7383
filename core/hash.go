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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// HashFields computes a deterministic BLAKE2b-256 digest of a field map.
//
// The map is canonicalized before hashing: keys are serialized in sorted
// order at every nesting level and string values have runs of whitespace
// collapsed to a single space. Two field maps that differ only in key order
// or in whitespace therefore produce the same digest.
//
// Volatile fields (processing timestamps, run ids) must simply not be put in
// the map. Pure function; no I/O.
func HashFields(fields map[string]any) string {
	data, err := json.Marshal(canonicalize(fields))
	if err != nil {
		// Field maps are built from strings, numbers and slices thereof;
		// marshaling them cannot fail at runtime.
		panic(fmt.Sprintf("core: unhashable field map: %v", err))
	}
	return digest(data)
}

// HashSet computes the digest of a set of hashes, independent of order.
// Used for whole-corpus ledger keys (clustering, similarity) and for the
// loader's per-artifact-type slots.
func HashSet(hashes []string) string {
	sorted := slices.Clone(hashes)
	slices.Sort(sorted)
	return digest([]byte(strings.Join(sorted, "\n")))
}

func digest(data []byte) string {
	h, _ := blake2b.New(32, nil) // 256-bit
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize walks a value, collapsing whitespace in strings. Maps are
// left as maps: encoding/json already serializes map keys in sorted order,
// which gives the canonical key ordering for free.
func canonicalize(v any) any {
	switch t := v.(type) {
	case string:
		return NormalizeText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = NormalizeText(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return v
	}
}

// NormalizeText collapses runs of whitespace to single spaces and trims the
// ends. Applied to every string before it participates in a hash.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HashChat derives a chat's identity from its normalized title and the
// sorted hashes of its message contents.
func HashChat(title string, messageHashes []string) string {
	sorted := slices.Clone(messageHashes)
	slices.Sort(sorted)
	return HashFields(map[string]any{
		"title":    title,
		"messages": sorted,
	})
}

// HashMessage derives a message's identity.
func HashMessage(chatID string, role Role, content, sourceID string) string {
	return HashFields(map[string]any{
		"chat_id":   chatID,
		"role":      string(role),
		"content":   content,
		"source_id": sourceID,
	})
}

// HashChunk computes a chunk's content hash. The chunk's positional id
// ({chat_id}_msg_{n}_chunk_{m}) is separate; see ChunkID.
func HashChunk(chunkID, chatID, messageID, content string) string {
	return HashFields(map[string]any{
		"chunk_id":   chunkID,
		"chat_id":    chatID,
		"message_id": messageID,
		"content":    content,
	})
}

// HashEmbedding identifies an embedding by its owner and the inputs that
// produced the vector. A new owner hash or model yields a new embedding hash;
// vectors are never mutated in place.
func HashEmbedding(ownerID, ownerHash, model string) string {
	return HashFields(map[string]any{
		"owner_id":   ownerID,
		"owner_hash": ownerHash,
		"model":      model,
	})
}

// HashTag ties a tag to one message so tags propagate only to unchanged
// messages.
func HashTag(messageID, tag string) string {
	return HashFields(map[string]any{
		"message_id": messageID,
		"tag":        tag,
	})
}

// HashSummary identifies a summary by its parent and the sorted hashes of
// its constituents, so the summary is invalidated exactly when any
// constituent changes.
func HashSummary(parentID string, constituentHashes []string) string {
	sorted := slices.Clone(constituentHashes)
	slices.Sort(sorted)
	return HashFields(map[string]any{
		"parent_id":    parentID,
		"constituents": sorted,
	})
}

// HashPosition identifies a 2-D position by its parent and the summary the
// coordinates were derived from.
func HashPosition(parentID, summaryHash string) string {
	return HashFields(map[string]any{
		"parent_id":    parentID,
		"summary_hash": summaryHash,
	})
}

// HashEdge identifies a similarity edge by its unordered endpoint pair and
// the embedding hashes the score was computed from.
func HashEdge(idA, idB string, inputHashes []string) string {
	if idB < idA {
		idA, idB = idB, idA
	}
	inputs := slices.Clone(inputHashes)
	slices.Sort(inputs)
	return HashFields(map[string]any{
		"id_a":   idA,
		"id_b":   idB,
		"inputs": inputs,
	})
}

// ChunkID formats the positional chunk identifier.
func ChunkID(chatID string, msgIdx, chunkIdx int) string {
	return fmt.Sprintf("%s_msg_%d_chunk_%d", chatID, msgIdx, chunkIdx)
}
