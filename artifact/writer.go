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


package artifact

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/poiesic/cartograph/core"
)

// Writer appends records to a newline-delimited JSON artifact file. It is
// safe for concurrent use by pool workers; each record is serialized and
// written as one line under the lock. Records failing the cross-reference
// contract are rejected before anything reaches the file.
type Writer struct {
	mu    sync.Mutex
	f     *os.File
	index *core.XRefIndex
	count int
}

// NewWriter opens (creating if needed) the artifact at path for appending.
// If index is non-nil, each record's declared ancestors are resolved against
// it before the record is accepted, and the record's own identity is added
// to the index after acceptance.
func NewWriter(path string, index *core.XRefIndex) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return &Writer{f: f, index: index}, nil
}

// Append validates and writes one record.
func (w *Writer) Append(rec core.Record) error {
	if rec.RecordHash() == "" {
		return fmt.Errorf("%w: record has no content hash", ErrSchemaViolation)
	}
	if w.index != nil {
		if err := w.index.Resolve(rec.XRefs()); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("artifact append: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("artifact append: %w", err)
	}
	w.count++
	if w.index != nil {
		w.index.Index(rec)
	}
	return nil
}

// Count returns the number of records appended by this writer.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close syncs and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// ForEach streams the records of an artifact file, decoding each line into T
// and calling fn. Missing files yield ErrArtifactMissing.
func ForEach[T any](path string, fn func(*T) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		rec := new(T)
		if err := json.Unmarshal(raw, rec); err != nil {
			return fmt.Errorf("artifact %s line %d: %w", path, line, err)
		}
		if err := fn(rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}

// ReadAll loads every record of an artifact file.
func ReadAll[T any](path string) ([]*T, error) {
	var out []*T
	err := ForEach(path, func(rec *T) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
