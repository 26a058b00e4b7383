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


package ai

import (
	"math"
	"sync"
)

// Project2D maps an embedding vector to planar coordinates by projecting the
// normalized vector onto two fixed pseudo-random axes. The axes are derived
// deterministically from the dimensionality, so a given vector always lands
// at the same point across runs and processes.
func Project2D(vector []float32) (x, y float64) {
	if len(vector) == 0 {
		return 0, 0
	}
	ax, ay := axesFor(len(vector))

	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	inv := 1.0
	if sum > 0 {
		inv = 1 / math.Sqrt(sum)
	}
	for i, v := range vector {
		x += float64(v) * inv * ax[i]
		y += float64(v) * inv * ay[i]
	}
	return x, y
}

var (
	axesMu    sync.Mutex
	axesCache = map[int][2][]float64{}
)

// axesFor returns unit axes for the given dimensionality, derived from an
// LCG so they are identical everywhere.
func axesFor(dims int) (ax, ay []float64) {
	axesMu.Lock()
	defer axesMu.Unlock()
	if cached, ok := axesCache[dims]; ok {
		return cached[0], cached[1]
	}

	ax = make([]float64, dims)
	ay = make([]float64, dims)
	seed := uint64(0x9e3779b97f4a7c15)
	next := func() float64 {
		seed = seed*6364136223846793005 + 1442695040888963407
		return float64(seed>>11)/float64(1<<53)*2 - 1
	}
	for d := 0; d < dims; d++ {
		ax[d] = next()
		ay[d] = next()
	}
	unit(ax)
	unit(ay)
	axesCache[dims] = [2][]float64{ax, ay}
	return ax, ay
}

func unit(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum > 0 {
		inv := 1 / math.Sqrt(sum)
		for i := range v {
			v[i] *= inv
		}
	}
}
