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


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/cartograph/storage"
)

// VectorRepository implements storage.VectorRepository on a Backend.
type VectorRepository struct {
	backend *Backend
	logger  *slog.Logger
}

// NewVectorRepository creates a vector repository on the given backend.
//
// Returns storage.VectorRepository interface to enforce abstraction.
func NewVectorRepository(backend *Backend) (storage.VectorRepository, error) {
	if backend == nil {
		return nil, errors.New("nil backend")
	}
	return &VectorRepository{
		backend: backend,
		logger:  slog.Default().With("component", "vector-repository"),
	}, nil
}

// Put stores a vector under its embedding hash.
func (r *VectorRepository) Put(ctx context.Context, hash string, vector []float32) error {
	if hash == "" {
		return storage.ErrEmptyHash
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeVectorKey(hash), storage.MarshalVector(vector)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Get retrieves a vector by embedding hash.
func (r *VectorRepository) Get(ctx context.Context, hash string) ([]float32, error) {
	if hash == "" {
		return nil, storage.ErrEmptyHash
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var vector []float32
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeVectorKey(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, hash)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			vector, err = storage.UnmarshalVector(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// Has reports whether a vector is stored under the hash.
func (r *VectorRepository) Has(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, storage.ErrEmptyHash
	}
	if r.backend.IsClosed() {
		return false, storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeVectorKey(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// Close closes the underlying backend.
func (r *VectorRepository) Close() error {
	return r.backend.Close()
}
