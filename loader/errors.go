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


package loader

import "fmt"

// PartialWriteError reports that one ledger slot's write failed. The slot's
// ledger entry was not advanced; slots committed earlier in the same run
// remain valid and the run is safe to repeat.
type PartialWriteError struct {
	Slot string
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: slot %s: %v", e.Slot, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
