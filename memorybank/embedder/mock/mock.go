// Package mock provides deterministic embedders for tests and local
// development without model files. Vectors are derived from a content
// hash, so identical input always embeds identically; they carry no
// real semantic similarity.
package mock

import (
	"context"
	"hash/fnv"
	"image"
	"math"
)

// Embedder is a deterministic text embedder.
type Embedder struct {
	dimensions int
}

// New creates a mock text embedder.
func New() *Embedder {
	return &Embedder{
		dimensions: 384, // Match all-MiniLM-L6-v2 dimensions
	}
}

// Embed creates a deterministic embedding from the text hash.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	return fromSeed(h.Sum64(), m.dimensions), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// ImageEmbedder is a deterministic image embedder.
type ImageEmbedder struct {
	dimensions int
}

// NewImage creates a mock image embedder.
func NewImage() *ImageEmbedder {
	return &ImageEmbedder{
		dimensions: 512, // Match CLIP ViT-B/32 dimensions
	}
}

// EmbedImage hashes a sparse pixel sample into a deterministic vector.
func (m *ImageEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	h := fnv.New64a()
	bounds := img.Bounds()

	stepX := bounds.Dx()/16 + 1
	stepY := bounds.Dy()/16 + 1
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, a := img.At(x, y).RGBA()
			h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(b >> 8), byte(a >> 8)})
		}
	}

	return fromSeed(h.Sum64(), m.dimensions), nil
}

// Dimensions returns the embedding size.
func (m *ImageEmbedder) Dimensions() int {
	return m.dimensions
}

// fromSeed generates a unit vector from a hash seed using an LCG.
func fromSeed(seed uint64, dimensions int) []float32 {
	embedding := make([]float32, dimensions)
	for i := 0; i < dimensions; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding)
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
