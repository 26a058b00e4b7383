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


package local

import (
	"context"
	"math"

	"github.com/poiesic/cartograph/ai"
)

// minClusterSize is the smallest group that counts as a cluster; anything
// smaller is relabeled noise.
const minClusterSize = 2

// Clusterer implements ai.Clusterer with greedy leader clustering: each
// vector joins the best-matching existing centroid above the similarity
// threshold, or founds a new cluster. One pass, deterministic for a given
// input order, no parameters to tune beyond the threshold.
//
// Planar coordinates come from a fixed random projection, so the same vector
// always lands at the same point across runs.
type Clusterer struct {
	threshold float64
}

// NewClusterer creates a leader clusterer with the given cosine similarity
// threshold for cluster membership.
//
// Returns ai.Clusterer interface to enforce abstraction.
func NewClusterer(threshold float64) ai.Clusterer {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.80
	}
	return &Clusterer{threshold: threshold}
}

// Cluster assigns each vector a cluster label and 2-D coordinates.
func (c *Clusterer) Cluster(ctx context.Context, vectors [][]float32) (*ai.Clustering, error) {
	n := len(vectors)
	result := &ai.Clustering{
		Labels: make([]int, n),
		Coords: make([][2]float64, n),
	}
	if n == 0 {
		return result, nil
	}

	normed := make([][]float64, n)
	for i, v := range vectors {
		normed[i] = normalize(v)
	}

	type cluster struct {
		centroid []float64
		size     int
	}
	var clusters []*cluster

	for i, v := range normed {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		best, bestSim := -1, c.threshold
		for ci, cl := range clusters {
			if sim := dot(v, cl.centroid); sim >= bestSim {
				best, bestSim = ci, sim
			}
		}

		if best < 0 {
			clusters = append(clusters, &cluster{centroid: append([]float64(nil), v...), size: 1})
			result.Labels[i] = len(clusters) - 1
			continue
		}

		cl := clusters[best]
		for d := range cl.centroid {
			cl.centroid[d] = (cl.centroid[d]*float64(cl.size) + v[d]) / float64(cl.size+1)
		}
		renormalize(cl.centroid)
		cl.size++
		result.Labels[i] = best
	}

	// Demote undersized clusters to noise and compact the surviving labels.
	remap := make(map[int]int)
	next := 0
	for ci, cl := range clusters {
		if cl.size >= minClusterSize {
			remap[ci] = next
			next++
		}
	}
	for i, l := range result.Labels {
		if nl, ok := remap[l]; ok {
			result.Labels[i] = nl
		} else {
			result.Labels[i] = ai.NoiseLabel
		}
	}

	for i, v := range vectors {
		x, y := ai.Project2D(v)
		result.Coords[i] = [2]float64{x, y}
	}

	return result, nil
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = float64(x)
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := 1 / math.Sqrt(sum)
		for i := range out {
			out[i] *= inv
		}
	}
	return out
}

func renormalize(v []float64) {
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

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
