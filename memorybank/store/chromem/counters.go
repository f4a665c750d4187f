package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Zoiudp/Dolores-AI/memorybank"
)

// counterEmbedding is a placeholder vector for counter documents.
// Counters are looked up by id and never searched by similarity.
var counterEmbedding = []float32{1}

// SessionCounters keeps one session counter document per user in its
// own chromem collection, separate from the memory collections.
type SessionCounters struct {
	col *chromem.Collection
	mu  sync.Mutex
}

// Increment atomically bumps the user's counter and returns the new
// value. A user seen for the first time starts at 1.
func (s *SessionCounters) Increment(ctx context.Context, userID string) (int, error) {
	id := "session_count_" + userID

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 1
	if doc, err := s.col.GetByID(ctx, id); err == nil {
		prev, perr := strconv.Atoi(doc.Content)
		if perr != nil {
			return 0, fmt.Errorf("corrupt session counter for %s: %w", userID, perr)
		}
		count = prev + 1
	}

	doc := chromem.Document{
		ID:        id,
		Content:   strconv.Itoa(count),
		Embedding: counterEmbedding,
		Metadata:  map[string]string{memorybank.MetaUserID: userID},
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return 0, &memorybank.ConnectivityError{Op: "increment session", Err: err}
	}
	return count, nil
}
