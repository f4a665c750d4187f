// Package chromem backs the memory bank with chromem-go, a pure Go
// embedded vector database. One chromem collection per memory kind,
// cosine similarity, owner filtering via metadata.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Zoiudp/Dolores-AI/memorybank"
)

// Durable collection names, one per memory kind.
var collectionNames = map[memorybank.Kind]string{
	memorybank.KindConversation:   "conversations",
	memorybank.KindEmotionalImage: "emotional_images",
	memorybank.KindEventSummary:   "event_summaries",
	memorybank.KindUserPortrait:   "user_portraits",
}

const sessionCollectionName = "session_metadata"

// Store owns the chromem database and hands out one Collection per
// memory kind plus the session counter store.
type Store struct {
	db          *chromem.DB
	collections map[memorybank.Kind]*Collection
	sessions    *SessionCounters
}

// New creates a chromem-backed store. The text embedder vectorizes
// documents and text queries for the text collections; the image
// collection receives precomputed embeddings and never invokes it.
func New(embedder memorybank.TextEmbedder) (*Store, error) {
	db := chromem.NewDB()

	embedFn := missingEmbedderFunc
	if embedder != nil {
		embedFn = embedder.Embed
	}

	s := &Store{
		db:          db,
		collections: make(map[memorybank.Kind]*Collection, len(collectionNames)),
	}
	for kind, name := range collectionNames {
		col, err := db.CreateCollection(name, nil, chromem.EmbeddingFunc(embedFn))
		if err != nil {
			return nil, fmt.Errorf("create collection %s: %w", name, err)
		}
		s.collections[kind] = &Collection{
			kind:   kind,
			col:    col,
			owners: make(map[string]string),
		}
	}

	sessions, err := db.CreateCollection(sessionCollectionName, nil, chromem.EmbeddingFunc(missingEmbedderFunc))
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", sessionCollectionName, err)
	}
	s.sessions = &SessionCounters{col: sessions}

	return s, nil
}

// Collections returns the per-kind collection map the Bank is built on.
func (s *Store) Collections() map[memorybank.Kind]memorybank.Collection {
	out := make(map[memorybank.Kind]memorybank.Collection, len(s.collections))
	for kind, col := range s.collections {
		out[kind] = col
	}
	return out
}

// Sessions returns the session counter store.
func (s *Store) Sessions() memorybank.SessionStore {
	return s.sessions
}

func missingEmbedderFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("no text embedder configured")
}

// Collection implements memorybank.Collection on one chromem collection.
//
// chromem does not expose iteration over stored documents, so the
// wrapper keeps a sidecar id->owner index. Every write flows through
// this type, which keeps the index consistent with the database.
type Collection struct {
	kind memorybank.Kind
	col  *chromem.Collection

	mu     sync.RWMutex
	owners map[string]string
}

// Add stores a new item. Items without a precomputed embedding are
// vectorized from their text by the collection's embedding function.
func (c *Collection) Add(ctx context.Context, it *memorybank.Item) (string, error) {
	if it.ID == "" {
		return "", fmt.Errorf("item has no id")
	}

	if err := c.col.AddDocument(ctx, toDocument(it)); err != nil {
		return "", &memorybank.ConnectivityError{Op: "add " + string(c.kind), Err: err}
	}

	c.mu.Lock()
	c.owners[it.ID] = it.UserID
	c.mu.Unlock()

	return it.ID, nil
}

// Get returns the item with the given id, or (nil, nil) when absent.
func (c *Collection) Get(ctx context.Context, id string) (*memorybank.Item, error) {
	c.mu.RLock()
	_, known := c.owners[id]
	c.mu.RUnlock()
	if !known {
		return nil, nil
	}

	doc, err := c.col.GetByID(ctx, id)
	if err != nil {
		return nil, &memorybank.ConnectivityError{Op: "get " + string(c.kind), Err: err}
	}
	return fromDocument(c.kind, doc), nil
}

// Query returns up to q.TopK*2 of the owner's items ordered by raw
// cosine similarity. An empty collection yields an empty result, not an
// error.
func (c *Collection) Query(ctx context.Context, q memorybank.Query) ([]memorybank.Retrieved, error) {
	fetch := q.TopK * 2

	// chromem rejects nResults larger than the number of matching
	// documents, so clamp against the owner's share of the index.
	c.mu.RLock()
	owned := 0
	for _, owner := range c.owners {
		if owner == q.UserID {
			owned++
		}
	}
	c.mu.RUnlock()
	if owned == 0 {
		return nil, nil
	}
	if fetch > owned {
		fetch = owned
	}

	where := map[string]string{memorybank.MetaUserID: q.UserID}

	var results []chromem.Result
	var err error
	if len(q.Embedding) > 0 {
		results, err = c.col.QueryEmbedding(ctx, q.Embedding, fetch, where, nil)
	} else {
		results, err = c.col.Query(ctx, q.Text, fetch, where, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]memorybank.Retrieved, 0, len(results))
	for _, r := range results {
		it := fromDocument(c.kind, chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
			Content:   r.Content,
		})
		out = append(out, memorybank.Retrieved{Item: *it, Similarity: r.Similarity})
	}
	return out, nil
}

// All returns a snapshot of the owner's items, unordered. An empty
// userID returns everything, which the maintenance sweep relies on.
// Items deleted between the snapshot and the lookup are skipped.
func (c *Collection) All(ctx context.Context, userID string) ([]*memorybank.Item, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.owners))
	for id, owner := range c.owners {
		if userID == "" || owner == userID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	items := make([]*memorybank.Item, 0, len(ids))
	for _, id := range ids {
		doc, err := c.col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, fromDocument(c.kind, doc))
	}
	return items, nil
}

// UpdateMetadata patches the stored metadata of one item, preserving
// its content and embedding. chromem has no partial update, so the
// document is re-added in place.
func (c *Collection) UpdateMetadata(ctx context.Context, id string, patch map[string]string) error {
	doc, err := c.col.GetByID(ctx, id)
	if err != nil {
		return &memorybank.ConnectivityError{Op: "update " + string(c.kind), Err: err}
	}

	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string, len(patch))
	}
	for k, v := range patch {
		doc.Metadata[k] = v
	}

	if err := c.col.AddDocument(ctx, doc); err != nil {
		return &memorybank.ConnectivityError{Op: "update " + string(c.kind), Err: err}
	}
	return nil
}

// Upsert inserts or replaces the record with the item's id.
func (c *Collection) Upsert(ctx context.Context, it *memorybank.Item) (string, error) {
	return c.Add(ctx, it)
}

// Delete removes items permanently. Unknown ids are ignored.
func (c *Collection) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return &memorybank.ConnectivityError{Op: "delete " + string(c.kind), Err: err}
	}

	c.mu.Lock()
	for _, id := range ids {
		delete(c.owners, id)
	}
	c.mu.Unlock()

	log.Printf("[CHROMEM] Deleted %d documents from %s", len(ids), c.kind)
	return nil
}

// Count returns the number of stored documents.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.owners)
}

// toDocument serializes an item. Strength and timestamps live in the
// metadata map so reinforcement patches them without re-embedding.
func toDocument(it *memorybank.Item) chromem.Document {
	metadata := map[string]string{
		memorybank.MetaUserID:     it.UserID,
		memorybank.MetaKind:       string(it.Kind),
		memorybank.MetaCreatedAt:  memorybank.FormatTime(it.CreatedAt),
		memorybank.MetaLastAccess: memorybank.FormatTime(it.LastAccess),
		memorybank.MetaStrength:   memorybank.FormatStrength(it.Strength),
	}
	for k, v := range it.Metadata {
		metadata[k] = v
	}

	return chromem.Document{
		ID:        it.ID,
		Content:   it.Text,
		Embedding: it.Embedding,
		Metadata:  metadata,
	}
}

// fromDocument deserializes a stored document back into an item.
func fromDocument(kind memorybank.Kind, doc chromem.Document) *memorybank.Item {
	metadata := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		switch k {
		case memorybank.MetaUserID, memorybank.MetaKind, memorybank.MetaCreatedAt,
			memorybank.MetaLastAccess, memorybank.MetaStrength:
		default:
			metadata[k] = v
		}
	}

	return &memorybank.Item{
		ID:         doc.ID,
		UserID:     doc.Metadata[memorybank.MetaUserID],
		Kind:       kind,
		Text:       doc.Content,
		Embedding:  doc.Embedding,
		CreatedAt:  memorybank.ParseTime(doc.Metadata[memorybank.MetaCreatedAt]),
		LastAccess: memorybank.ParseTime(doc.Metadata[memorybank.MetaLastAccess]),
		Strength:   memorybank.ParseStrength(doc.Metadata[memorybank.MetaStrength]),
		Metadata:   metadata,
	}
}
