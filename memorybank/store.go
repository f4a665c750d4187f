package memorybank

import (
	"context"
	"image"
)

// TextEmbedder converts text to a fixed-length vector, deterministic
// for identical input.
// Implementations: mock (testing), ONNX MiniLM (local), API-based (production).
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// ImageEmbedder converts an image to a fixed-length, unit-normalized
// vector in the same space as its paired text model.
// Implementations: mock (testing), ONNX CLIP (local).
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)

	Dimensions() int
}

// Query selects similar items from a Collection. Either Text or
// Embedding must be set; Embedding wins when both are present (used for
// image queries where the vector is precomputed).
type Query struct {
	UserID    string
	Text      string
	Embedding []float32
	TopK      int
}

// Collection is the vector storage backend for one memory kind. All
// reads are scoped by owner: queries must never return another user's
// items.
//
// Implementations: chromem store (local), pgvector (production).
type Collection interface {
	// Add stores a new item and returns its id. A backing store that is
	// unreachable yields a ConnectivityError; data is never silently
	// dropped.
	Add(ctx context.Context, it *Item) (string, error)

	// Get looks up one item by id. A missing item returns (nil, nil),
	// not an error.
	Get(ctx context.Context, id string) (*Item, error)

	// Query returns up to q.TopK*2 candidates ordered by raw cosine
	// similarity, giving the decay re-ranking stage headroom. An empty
	// collection returns an empty slice.
	Query(ctx context.Context, q Query) ([]Retrieved, error)

	// All returns every item owned by userID, unordered. An empty
	// userID returns every item in the collection (maintenance sweep).
	All(ctx context.Context, userID string) ([]*Item, error)

	// UpdateMetadata patches the stored metadata of one item in place.
	// Reinforcement persists through this path.
	UpdateMetadata(ctx context.Context, id string, patch map[string]string) error

	// Upsert inserts the item or replaces the record with the same id.
	Upsert(ctx context.Context, it *Item) (string, error)

	// Delete removes items permanently. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
}

// SessionStore tracks one monotonically increasing session counter per
// user, independent of the memory collections.
type SessionStore interface {
	// Increment atomically bumps the counter and returns the new value.
	// The first call for a user returns 1.
	Increment(ctx context.Context, userID string) (int, error)
}
