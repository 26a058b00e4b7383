package ai

// NoiseLabel marks a vector that fit no cluster.
const NoiseLabel = -1

// Clustering is the result of one clustering run over a vector corpus.
type Clustering struct {
	// Labels[i] is the cluster id assigned to vectors[i], or NoiseLabel.
	// Cluster ids are contiguous from 0 and scoped to this run; reruns over
	// a changed corpus may relabel everything.
	Labels []int

	// Coords[i] is the planar projection of vectors[i], used for map-style
	// visualization downstream.
	Coords [][2]float64
}

// Clusters returns the number of distinct non-noise clusters.
func (c *Clustering) Clusters() int {
	max := -1
	for _, l := range c.Labels {
		if l > max {
			max = l
		}
	}
	return max + 1
}
