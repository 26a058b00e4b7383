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
	"hash/fnv"
	"math"

	"github.com/poiesic/cartograph/ai"
)

// embedDims is the fixed dimensionality of hashed embeddings.
const embedDims = 256

// Embedder implements ai.Embedder with the hashing trick: token counts
// bucketed by FNV hash, L2-normalized. No model, no network. Texts sharing
// vocabulary land near each other, which is enough for offline smoke runs
// of the full pipeline; it is not a semantic embedding.
type Embedder struct{}

// NewEmbedder creates the hashed-feature embedder.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder() ai.Embedder {
	return &Embedder{}
}

// EmbedText generates a hashed-feature vector for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

// EmbedTexts generates hashed-feature vectors for multiple text strings.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, embedDims)
	for _, tok := range tokenize(text) {
		if stopwords[tok] {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%embedDims]++
	}

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range v {
			v[i] *= norm
		}
	}
	return v
}
