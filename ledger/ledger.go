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


package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// DefaultSlot is the slot used by single-set stages.
const DefaultSlot = "done"

// fileFormat is the on-disk shape of a ledger.
type fileFormat struct {
	Stage string              `json:"stage"`
	Slots map[string][]string `json:"slots"`
}

// Ledger is a persisted, concurrency-safe set of processed hashes. MarkDone
// may be called from multiple pool workers; Flush is single-writer. The lock
// guards only the in-memory sets, never an external call.
type Ledger struct {
	mu     sync.Mutex
	stage  string
	path   string
	slots  map[string]map[string]struct{}
	dirty  bool
	logger *slog.Logger
}

// Open loads the ledger for a stage from path, or starts an empty one if the
// file does not exist yet.
func Open(stage, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		stage:  stage,
		path:   path,
		slots:  make(map[string]map[string]struct{}),
		logger: logger.With("stage", stage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("ledger %s: %w", stage, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, path, err)
	}
	for slot, hashes := range ff.Slots {
		set := make(map[string]struct{}, len(hashes))
		for _, h := range hashes {
			set[h] = struct{}{}
		}
		l.slots[slot] = set
	}
	return l, nil
}

// Stage returns the owning stage's name.
func (l *Ledger) Stage() string { return l.stage }

// Contains reports whether the default slot holds hash.
func (l *Ledger) Contains(hash string) bool {
	return l.SlotContains(DefaultSlot, hash)
}

// SlotContains reports whether the named slot holds hash.
func (l *Ledger) SlotContains(slot, hash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.slots[slot][hash]
	return ok
}

// MarkDone records hash in the default slot. Safe for concurrent use.
func (l *Ledger) MarkDone(hash string) {
	l.SlotMark(DefaultSlot, hash)
}

// SlotMark records hash in the named slot. Safe for concurrent use.
func (l *Ledger) SlotMark(slot, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.slots[slot]
	if !ok {
		set = make(map[string]struct{})
		l.slots[slot] = set
	}
	if _, ok := set[hash]; !ok {
		set[hash] = struct{}{}
		l.dirty = true
	}
}

// Count returns the size of the default slot.
func (l *Ledger) Count() int { return l.SlotCount(DefaultSlot) }

// SlotCount returns the size of the named slot.
func (l *Ledger) SlotCount(slot string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots[slot])
}

// Slots returns the sorted names of all non-empty slots.
func (l *Ledger) Slots() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.slots))
	for slot, set := range l.slots {
		if len(set) > 0 {
			out = append(out, slot)
		}
	}
	slices.Sort(out)
	return out
}

// Hashes returns the sorted contents of the named slot.
func (l *Ledger) Hashes(slot string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.slots[slot]))
	for h := range l.slots[slot] {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Flush atomically persists the ledger: marshal to a temp file in the same
// directory, then rename over the target. A no-op when nothing changed since
// the last flush.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	ff := fileFormat{Stage: l.stage, Slots: make(map[string][]string, len(l.slots))}
	for slot, set := range l.slots {
		hashes := make([]string, 0, len(set))
		for h := range set {
			hashes = append(hashes, h)
		}
		slices.Sort(hashes)
		ff.Slots[slot] = hashes
	}
	l.dirty = false
	l.mu.Unlock()

	data, err := json.MarshalIndent(&ff, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger %s: %w", l.stage, err)
	}
	return nil
}

// Clear discards every slot and persists the empty ledger. Clearing
// invalidates all downstream ledgers that depend on this stage's hash set,
// so it is always logged.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	dropped := 0
	for _, set := range l.slots {
		dropped += len(set)
	}
	l.slots = make(map[string]map[string]struct{})
	l.dirty = true
	l.mu.Unlock()

	l.logger.Warn("ledger cleared", "dropped", dropped, "path", l.path)
	return l.Flush()
}
