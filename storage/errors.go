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


package storage

import "errors"

var (
	// ErrNotFound indicates that no vector is stored under the given hash.
	ErrNotFound = errors.New("vector not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrTruncatedData indicates that stored vector bytes were shorter than
	// their declared dimension count.
	ErrTruncatedData = errors.New("truncated vector data")

	// ErrEmptyHash indicates a repository call with an empty hash key.
	ErrEmptyHash = errors.New("empty vector hash")
)
