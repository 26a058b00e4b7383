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

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalVector serializes a vector as a uint32 dimension count followed by
// the float32 components, all little-endian.
func MarshalVector(vector []float32) []byte {
	buf := make([]byte, 4+4*len(vector))
	binary.LittleEndian.PutUint32(buf, uint32(len(vector)))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf
}

// UnmarshalVector deserializes a vector produced by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing dimension header", ErrTruncatedData)
	}
	dims := binary.LittleEndian.Uint32(data)
	if uint32(len(data)-4) < dims*4 {
		return nil, fmt.Errorf("%w: want %d floats, have %d bytes",
			ErrTruncatedData, dims, len(data)-4)
	}
	vector := make([]float32, dims)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return vector, nil
}
