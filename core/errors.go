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

import "errors"

// Domain validation errors
var (
	// ErrInvalidRecord indicates a record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyContent indicates a required content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyID indicates a required identifier field is empty.
	ErrEmptyID = errors.New("identifier cannot be empty")

	// ErrInvalidRole indicates an unknown message role.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrUnresolvedXRef indicates a record declares an ancestor id that is
	// not present in the cross-reference index.
	ErrUnresolvedXRef = errors.New("unresolved cross-reference")
)
