package memorybank

import (
	"context"
	"fmt"
	"image"
	"log"
	"sort"
	"sync"
	"time"
)

// Default per-collection result counts for prompt context assembly.
const (
	contextConversations = 5
	contextImages        = 3
	contextSummaries     = 3
)

// Bank orchestrates the memory collections. One Bank instance is shared
// across request handlers; it is safe for concurrent use.
//
// The bank mutex guards only persisted read-modify-writes (reinforcement
// and portrait upsert). Embedding runs before any lock is taken, since
// embedders may cross a process boundary and block for seconds.
type Bank struct {
	collections map[Kind]Collection
	sessions    SessionStore
	scorer      Scorer
	texts       TextEmbedder
	images      ImageEmbedder
	now         func() time.Time

	mu sync.Mutex
}

// Option configures a Bank.
type Option func(*Bank)

// WithScorer overrides the decay scorer. The default scorer has
// forgetting enabled.
func WithScorer(s Scorer) Option {
	return func(b *Bank) {
		b.scorer = s
	}
}

// WithTextEmbedder lets the bank precompute portrait embeddings before
// taking its mutex. Without it, the portrait collection embeds on
// write, inside the upsert critical section.
func WithTextEmbedder(e TextEmbedder) Option {
	return func(b *Bank) {
		b.texts = e
	}
}

// WithImageEmbedder enables the emotional-image collection. Without it,
// AddEmotionalImage returns a ValidationError.
func WithImageEmbedder(e ImageEmbedder) Option {
	return func(b *Bank) {
		b.images = e
	}
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		b.now = now
	}
}

// New creates a Bank over one Collection per memory kind plus a session
// counter store. Every kind in Kinds must be present.
func New(collections map[Kind]Collection, sessions SessionStore, opts ...Option) (*Bank, error) {
	for _, k := range Kinds {
		if collections[k] == nil {
			return nil, fmt.Errorf("missing collection for kind %q", k)
		}
	}
	if sessions == nil {
		return nil, fmt.Errorf("missing session store")
	}

	b := &Bank{
		collections: collections,
		sessions:    sessions,
		scorer:      NewScorer(true),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Scorer returns the bank's decay scorer.
func (b *Bank) Scorer() Scorer {
	return b.scorer
}

// AddConversation stores one conversational exchange. userInput and
// botResponse are optional and kept as metadata alongside the full text.
func (b *Bank) AddConversation(ctx context.Context, userID, text, userInput, botResponse string, meta map[string]string) (string, error) {
	if err := validateUser(userID); err != nil {
		return "", err
	}
	if err := validateText("conversation_text", text); err != nil {
		return "", err
	}

	it := newItem(userID, KindConversation, text, DefaultStrength, b.now(), meta)
	if userInput != "" {
		it.Metadata[MetaUserInput] = userInput
	}
	if botResponse != "" {
		it.Metadata[MetaBotReply] = botResponse
	}
	return b.collections[KindConversation].Add(ctx, it)
}

// AddEmotionalImage stores an emotional snapshot: the CLIP-space image
// embedding plus its text description. The raw image itself is persisted
// by path reference only, never as the embedding.
func (b *Bank) AddEmotionalImage(ctx context.Context, userID string, img image.Image, imagePath, description string, meta map[string]string) (string, error) {
	if err := validateUser(userID); err != nil {
		return "", err
	}
	if err := validateText("emotion_description", description); err != nil {
		return "", err
	}
	if b.images == nil {
		return "", &ValidationError{Field: "image", Reason: "no image embedder configured"}
	}
	if img == nil {
		return "", &ValidationError{Field: "image", Reason: "must not be nil"}
	}

	// Embed before touching the store so a failed embed writes nothing.
	embedding, err := b.images.EmbedImage(ctx, img)
	if err != nil {
		return "", fmt.Errorf("embed image: %w", err)
	}

	it := newItem(userID, KindEmotionalImage, description, DefaultStrength, b.now(), meta)
	it.Embedding = embedding
	if imagePath != "" {
		it.Metadata[MetaImagePath] = imagePath
	}
	return b.collections[KindEmotionalImage].Add(ctx, it)
}

// AddEventSummary stores a summary of events.
func (b *Bank) AddEventSummary(ctx context.Context, userID, text string, meta map[string]string) (string, error) {
	if err := validateUser(userID); err != nil {
		return "", err
	}
	if err := validateText("summary_text", text); err != nil {
		return "", err
	}

	it := newItem(userID, KindEventSummary, text, DefaultStrength, b.now(), meta)
	return b.collections[KindEventSummary].Add(ctx, it)
}

// UpdateUserPortrait upserts the user's portrait. The portrait id is
// derived from the user id, so there is never more than one live
// portrait per user. Re-upserting replaces text and metadata and resets
// recency, but never lowers strength below what the portrait has earned.
func (b *Bank) UpdateUserPortrait(ctx context.Context, userID, text string, meta map[string]string) (string, error) {
	if err := validateUser(userID); err != nil {
		return "", err
	}
	if err := validateText("portrait_text", text); err != nil {
		return "", err
	}

	col := b.collections[KindUserPortrait]
	it := newItem(userID, KindUserPortrait, text, PortraitStrength, b.now(), meta)

	// Embed before taking the lock: embedders may block for seconds,
	// and the mutex also serializes every reinforcement.
	if b.texts != nil {
		embedding, err := b.texts.Embed(ctx, text)
		if err != nil {
			return "", fmt.Errorf("embed portrait: %w", err)
		}
		it.Embedding = embedding
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := col.Get(ctx, it.ID)
	if err != nil {
		return "", fmt.Errorf("get portrait: %w", err)
	}
	if existing != nil {
		it.CreatedAt = existing.CreatedAt
		if existing.Strength > it.Strength {
			it.Strength = existing.Strength
		}
	}
	return col.Upsert(ctx, it)
}

// GetUserPortrait returns the user's portrait, reinforcing it, or
// (nil, nil) when no portrait has been written yet.
func (b *Bank) GetUserPortrait(ctx context.Context, userID string) (*Item, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	col := b.collections[KindUserPortrait]
	it, err := col.Get(ctx, PortraitID(userID))
	if err != nil || it == nil {
		return nil, err
	}
	b.reinforce(ctx, col, []string{it.ID})
	return it, nil
}

// Retrieve runs the two-phase retrieval for one collection: similarity
// search over-fetches topK*2 candidates, decay scoring re-ranks them,
// and exactly the returned items are reinforced. Scores on the returned
// items are the pre-reinforcement values.
//
// An empty query falls back to recency ordering.
func (b *Bank) Retrieve(ctx context.Context, kind Kind, userID, query string, topK int) ([]Retrieved, error) {
	return b.retrieve(ctx, kind, userID, query, nil, topK)
}

// RetrieveByImage is Retrieve with a precomputed image-space query
// vector instead of text.
func (b *Bank) RetrieveByImage(ctx context.Context, kind Kind, userID string, img image.Image, topK int) ([]Retrieved, error) {
	if b.images == nil {
		return nil, &ValidationError{Field: "image", Reason: "no image embedder configured"}
	}
	embedding, err := b.images.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}
	return b.retrieve(ctx, kind, userID, "", embedding, topK)
}

func (b *Bank) retrieve(ctx context.Context, kind Kind, userID, query string, embedding []float32, topK int) ([]Retrieved, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	col, ok := b.collections[kind]
	if !ok {
		return nil, fmt.Errorf("unknown memory kind %q", kind)
	}
	if topK <= 0 {
		topK = 1
	}

	var candidates []Retrieved
	var err error
	switch {
	case len(embedding) > 0:
		candidates, err = col.Query(ctx, Query{UserID: userID, Embedding: embedding, TopK: topK})
	case query != "":
		candidates, err = col.Query(ctx, Query{UserID: userID, Text: query, TopK: topK})
	default:
		candidates, err = b.recent(ctx, col, userID, topK*2)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Re-rank by decay score; raw similarity breaks ties.
	now := b.now()
	for i := range candidates {
		candidates[i].Score = b.scorer.Score(now, candidates[i].LastAccess, candidates[i].Strength)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
	}
	b.reinforce(ctx, col, ids)

	return candidates, nil
}

// recent is the no-query fallback: every item the user owns, newest
// first, capped at limit.
func (b *Bank) recent(ctx context.Context, col Collection, userID string, limit int) ([]Retrieved, error) {
	items, err := col.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]Retrieved, len(items))
	for i, it := range items {
		out[i] = Retrieved{Item: *it}
	}
	return out, nil
}

// reinforce bumps strength and resets recency for each item, persisted
// one at a time under the bank mutex so concurrent retrievals of the
// same item never lose an update. Individual failures are logged and
// skipped.
func (b *Bank) reinforce(ctx context.Context, col Collection, ids []string) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range ids {
		cur, err := col.Get(ctx, id)
		if err != nil {
			log.Printf("[MEMORY] reinforce %s: %v", id, err)
			continue
		}
		if cur == nil {
			continue
		}
		patch := map[string]string{
			MetaStrength:   FormatStrength(cur.Strength + 1.0),
			MetaLastAccess: FormatTime(now),
		}
		if err := col.UpdateMetadata(ctx, id, patch); err != nil {
			log.Printf("[MEMORY] reinforce %s: %v", id, err)
		}
	}
}

// IncrementSession atomically advances the user's session counter. The
// first call for a user returns 1.
func (b *Bank) IncrementSession(ctx context.Context, userID string) (int, error) {
	if err := validateUser(userID); err != nil {
		return 0, err
	}
	return b.sessions.Increment(ctx, userID)
}

// GetPromptContext retrieves and reinforces relevant memories from every
// collection and aggregates them for prompt consumption. Every field is
// populated even when all collections are empty (explicit sentinels), so
// a fresh user gets a deterministic context.
func (b *Bank) GetPromptContext(ctx context.Context, userID, userInput string) (*PromptContext, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	conversations, err := b.Retrieve(ctx, KindConversation, userID, userInput, contextConversations)
	if err != nil {
		return nil, err
	}
	// Emotional images live in CLIP space, which a text query cannot
	// search. Recent emotional state is what the prompt wants anyway.
	images, err := b.Retrieve(ctx, KindEmotionalImage, userID, "", contextImages)
	if err != nil {
		return nil, err
	}
	summaries, err := b.Retrieve(ctx, KindEventSummary, userID, userInput, contextSummaries)
	if err != nil {
		return nil, err
	}
	portrait, err := b.GetUserPortrait(ctx, userID)
	if err != nil {
		return nil, err
	}
	session, err := b.IncrementSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	pc := &PromptContext{
		CurrentTime:      b.now(),
		UserID:           userID,
		SessionCount:     session,
		UserInput:        userInput,
		Conversations:    joinEntries(conversations, "Conversation from", "\n\n"),
		EmotionalContext: joinEntries(images, "Emotional state from", "\n"),
		EventSummaries:   joinEntries(summaries, "Event from", "\n\n"),
		Portrait:         NoPortrait,
	}
	if pc.Conversations == "" {
		pc.Conversations = NoConversations
	}
	if pc.EmotionalContext == "" {
		pc.EmotionalContext = NoEmotionalContext
	}
	if pc.EventSummaries == "" {
		pc.EventSummaries = NoEventSummaries
	}
	if portrait != nil {
		pc.Portrait = portrait.Text
	}
	return pc, nil
}

// CleanExpired sweeps every non-portrait collection and deletes items
// whose retention score has fallen below threshold. The sweep snapshots
// item references without holding the bank lock and deletes one item at
// a time, so concurrent inserts during the sweep are unaffected.
// Individual failures are logged and skipped; the returned count is the
// number of items actually removed.
func (b *Bank) CleanExpired(ctx context.Context, threshold float64) (int, error) {
	if !b.scorer.Enabled() {
		return 0, nil
	}

	deleted := 0
	for _, kind := range []Kind{KindConversation, KindEmotionalImage, KindEventSummary} {
		col := b.collections[kind]
		items, err := col.All(ctx, "")
		if err != nil {
			log.Printf("[MEMORY] sweep %s: %v", kind, err)
			continue
		}

		now := b.now()
		removed := 0
		for _, it := range items {
			if it.Kind == KindUserPortrait {
				// Portraits never expire, wherever they turn up.
				continue
			}
			if b.scorer.Score(now, it.LastAccess, it.Strength) >= threshold {
				continue
			}
			if err := col.Delete(ctx, it.ID); err != nil {
				log.Printf("[MEMORY] sweep %s: delete %s: %v", kind, it.ID, err)
				continue
			}
			removed++
		}
		if removed > 0 {
			log.Printf("[MEMORY] Deleted %d expired memories from %s", removed, kind)
		}
		deleted += removed
	}
	return deleted, nil
}

// RecordExchange is the caller-facing shorthand for storing one
// user/bot exchange.
func (b *Bank) RecordExchange(ctx context.Context, userID, userText, botText string, meta map[string]string) (string, error) {
	text := fmt.Sprintf("User: %s\nBot: %s", userText, botText)
	if userText == "" && botText == "" {
		text = ""
	}
	return b.AddConversation(ctx, userID, text, userText, botText, meta)
}

// RecordEmotionalImage is the caller-facing alias for AddEmotionalImage.
func (b *Bank) RecordEmotionalImage(ctx context.Context, userID string, img image.Image, imagePath, description string, meta map[string]string) (string, error) {
	return b.AddEmotionalImage(ctx, userID, img, imagePath, description, meta)
}

// RunMaintenance is the caller-facing alias for CleanExpired.
func (b *Bank) RunMaintenance(ctx context.Context, threshold float64) (int, error) {
	return b.CleanExpired(ctx, threshold)
}
