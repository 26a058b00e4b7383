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

import "errors"

var (
	// ErrHashMismatch indicates an upstream artifact contains records whose
	// hashes are absent from the producing stage's ledger (ledger corruption
	// or manual file edits). The stage fails closed rather than silently
	// reprocessing everything.
	ErrHashMismatch = errors.New("upstream hash mismatch")

	// ErrDependencyMissing indicates a stage's upstream artifact file does
	// not exist yet. Non-fatal to the whole run; the stage is skipped.
	ErrDependencyMissing = errors.New("upstream dependency missing")

	// ErrStageAborted indicates a stage hit its consecutive-failure
	// threshold and stopped to avoid wasting a dataset's worth of failing
	// external calls.
	ErrStageAborted = errors.New("stage aborted after consecutive failures")

	// ErrUnknownStage indicates a requested stage name is not registered.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrForceInvalidation indicates the downstream cascade of a forced
	// stage could not be computed; the run aborts rather than guessing.
	ErrForceInvalidation = errors.New("cannot compute force-invalidation cascade")

	// ErrInvalidMaxAttempts indicates a retry helper was configured with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
)
