package memorybank_test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zoiudp/Dolores-AI/memorybank"
	"github.com/Zoiudp/Dolores-AI/memorybank/embedder/mock"
	"github.com/Zoiudp/Dolores-AI/memorybank/store/chromem"
)

// testClock is a mutable wall clock for deterministic decay tests.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBank(t *testing.T, opts ...memorybank.Option) (*memorybank.Bank, *chromem.Store, *testClock) {
	t.Helper()

	store, err := chromem.New(mock.New())
	require.NoError(t, err)

	clock := newTestClock()
	opts = append([]memorybank.Option{
		memorybank.WithClock(clock.Now),
		memorybank.WithTextEmbedder(mock.New()),
		memorybank.WithImageEmbedder(mock.NewImage()),
	}, opts...)

	bank, err := memorybank.New(store.Collections(), store.Sessions(), opts...)
	require.NoError(t, err)
	return bank, store, clock
}

func testImage(seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: seed, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	return img
}

func TestBank_MissingCollection(t *testing.T) {
	store, err := chromem.New(mock.New())
	require.NoError(t, err)

	cols := store.Collections()
	delete(cols, memorybank.KindEventSummary)

	_, err = memorybank.New(cols, store.Sessions())
	assert.Error(t, err)
}

func TestBank_ValidationErrors(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	var verr *memorybank.ValidationError

	_, err := bank.AddConversation(ctx, "", "text", "", "", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_id", verr.Field)

	_, err = bank.AddConversation(ctx, "alice", "", "", "", nil)
	require.ErrorAs(t, err, &verr)

	_, err = bank.UpdateUserPortrait(ctx, "alice", "", nil)
	require.ErrorAs(t, err, &verr)

	_, err = bank.Retrieve(ctx, memorybank.KindConversation, "", "query", 3)
	require.ErrorAs(t, err, &verr)

	_, err = bank.IncrementSession(ctx, "")
	require.ErrorAs(t, err, &verr)
}

func TestBank_RetrieveRecencyFallback(t *testing.T) {
	bank, _, clock := newTestBank(t)
	ctx := context.Background()

	_, err := bank.AddConversation(ctx, "alice", "talked about gardening", "", "", nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = bank.AddConversation(ctx, "alice", "talked about cooking", "", "", nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = bank.AddConversation(ctx, "alice", "talked about travel", "", "", nil)
	require.NoError(t, err)

	got, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "talked about travel", got[0].Text)
	assert.Equal(t, "talked about cooking", got[1].Text)
}

func TestBank_RetrieveReinforcesReturnedItems(t *testing.T) {
	bank, store, clock := newTestBank(t)
	ctx := context.Background()
	col := store.Collections()[memorybank.KindConversation]

	id, err := bank.AddConversation(ctx, "alice", "we planted tomatoes", "", "", nil)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	got, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "we planted tomatoes", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// The returned score reflects pre-reinforcement state.
	assert.Greater(t, got[0].Score, 0.95)
	assert.Equal(t, memorybank.DefaultStrength, got[0].Strength)

	// The persisted record has earned strength and fresh recency.
	stored, err := col.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, memorybank.DefaultStrength+1.0, stored.Strength)
	assert.WithinDuration(t, clock.Now(), stored.LastAccess, time.Millisecond)
}

func TestBank_RetrieveSkipsReinforcingUnreturnedItems(t *testing.T) {
	bank, store, clock := newTestBank(t)
	ctx := context.Background()
	col := store.Collections()[memorybank.KindConversation]

	oldID, err := bank.AddConversation(ctx, "alice", "an old chat", "", "", nil)
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	freshID, err := bank.AddConversation(ctx, "alice", "a fresh chat", "", "", nil)
	require.NoError(t, err)

	got, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, freshID, got[0].ID)

	stored, err := col.Get(ctx, oldID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, memorybank.DefaultStrength, stored.Strength)
}

func TestBank_RepeatedRetrievalAccruesStrength(t *testing.T) {
	bank, store, _ := newTestBank(t)
	ctx := context.Background()
	col := store.Collections()[memorybank.KindConversation]

	id, err := bank.AddConversation(ctx, "alice", "the lake trip", "", "", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "the lake trip", 1)
		require.NoError(t, err)
	}

	stored, err := col.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, memorybank.DefaultStrength+3.0, stored.Strength)
}

func TestBank_OwnerIsolation(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	_, err := bank.AddConversation(ctx, "alice", "alice's secret plans", "", "", nil)
	require.NoError(t, err)

	got, err := bank.Retrieve(ctx, memorybank.KindConversation, "bob", "secret plans", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = bank.Retrieve(ctx, memorybank.KindConversation, "bob", "", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBank_PortraitUpsertKeepsSingleRecord(t *testing.T) {
	bank, store, clock := newTestBank(t)
	ctx := context.Background()
	col := store.Collections()[memorybank.KindUserPortrait]

	firstCreated := clock.Now()
	id1, err := bank.UpdateUserPortrait(ctx, "alice", "likes gardening", nil)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	id2, err := bank.UpdateUserPortrait(ctx, "alice", "likes gardening and cooking", nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, memorybank.PortraitID("alice"), id1)

	all, err := col.All(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "likes gardening and cooking", all[0].Text)
	assert.WithinDuration(t, firstCreated, all[0].CreatedAt, time.Millisecond)
	assert.Equal(t, memorybank.PortraitStrength, all[0].Strength)
}

func TestBank_PortraitStrengthNeverLowered(t *testing.T) {
	bank, store, _ := newTestBank(t)
	ctx := context.Background()
	col := store.Collections()[memorybank.KindUserPortrait]

	_, err := bank.UpdateUserPortrait(ctx, "alice", "v1", nil)
	require.NoError(t, err)

	// Reading reinforces the portrait past its baseline.
	got, err := bank.GetUserPortrait(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)

	stored, err := col.Get(ctx, memorybank.PortraitID("alice"))
	require.NoError(t, err)
	assert.Equal(t, memorybank.PortraitStrength+1.0, stored.Strength)

	// A later upsert keeps the earned strength.
	_, err = bank.UpdateUserPortrait(ctx, "alice", "v2", nil)
	require.NoError(t, err)

	stored, err = col.Get(ctx, memorybank.PortraitID("alice"))
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Text)
	assert.Equal(t, memorybank.PortraitStrength+1.0, stored.Strength)
}

// fixedEmbedder returns one constant vector, distinguishable from the
// store's own embedding function.
type fixedEmbedder struct {
	vec []float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func (f *fixedEmbedder) Dimensions() int {
	return len(f.vec)
}

func TestBank_PortraitEmbeddingPrecomputed(t *testing.T) {
	store, err := chromem.New(mock.New())
	require.NoError(t, err)

	// Give the bank a different embedder than the store. The persisted
	// portrait must carry the bank's vector, proving it was embedded
	// up front rather than by the collection during the upsert.
	vec := make([]float32, 384)
	vec[0] = 1
	bank, err := memorybank.New(store.Collections(), store.Sessions(),
		memorybank.WithTextEmbedder(&fixedEmbedder{vec: vec}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = bank.UpdateUserPortrait(ctx, "alice", "likes gardening", nil)
	require.NoError(t, err)

	stored, err := store.Collections()[memorybank.KindUserPortrait].Get(ctx, memorybank.PortraitID("alice"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, vec, stored.Embedding)
}

func TestBank_GetUserPortraitMissing(t *testing.T) {
	bank, _, _ := newTestBank(t)

	got, err := bank.GetUserPortrait(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBank_SessionCounter(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := bank.IncrementSession(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := bank.IncrementSession(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestBank_EmotionalImage(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	_, err := bank.AddEmotionalImage(ctx, "alice", testImage(1), "/tmp/frame1.png", "user looked happy", nil)
	require.NoError(t, err)

	got, err := bank.Retrieve(ctx, memorybank.KindEmotionalImage, "alice", "", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "user looked happy", got[0].Text)
	assert.Equal(t, "/tmp/frame1.png", got[0].Metadata[memorybank.MetaImagePath])
}

func TestBank_EmotionalImageRequiresEmbedder(t *testing.T) {
	store, err := chromem.New(mock.New())
	require.NoError(t, err)
	bank, err := memorybank.New(store.Collections(), store.Sessions())
	require.NoError(t, err)

	var verr *memorybank.ValidationError
	_, err = bank.AddEmotionalImage(context.Background(), "alice", testImage(1), "", "desc", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "image", verr.Field)
}

func TestBank_RetrieveByImage(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	_, err := bank.AddEmotionalImage(ctx, "alice", testImage(1), "", "smiling at the camera", nil)
	require.NoError(t, err)
	_, err = bank.AddEmotionalImage(ctx, "alice", testImage(200), "", "frowning", nil)
	require.NoError(t, err)

	// The identical frame embeds identically, so it ranks first.
	got, err := bank.RetrieveByImage(ctx, memorybank.KindEmotionalImage, "alice", testImage(1), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "smiling at the camera", got[0].Text)
}

func TestBank_PromptContextFreshUser(t *testing.T) {
	bank, _, clock := newTestBank(t)

	pc, err := bank.GetPromptContext(context.Background(), "newcomer", "hello there")
	require.NoError(t, err)

	assert.Equal(t, "newcomer", pc.UserID)
	assert.Equal(t, 1, pc.SessionCount)
	assert.Equal(t, "hello there", pc.UserInput)
	assert.Equal(t, clock.Now(), pc.CurrentTime)
	assert.Equal(t, memorybank.NoConversations, pc.Conversations)
	assert.Equal(t, memorybank.NoEmotionalContext, pc.EmotionalContext)
	assert.Equal(t, memorybank.NoPortrait, pc.Portrait)
	assert.Equal(t, memorybank.NoEventSummaries, pc.EventSummaries)
}

func TestBank_PromptContextAggregates(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	_, err := bank.RecordExchange(ctx, "alice", "how do I prune roses", "cut above the bud", nil)
	require.NoError(t, err)
	_, err = bank.AddEventSummary(ctx, "alice", "planted a rose bed in spring", nil)
	require.NoError(t, err)
	_, err = bank.UpdateUserPortrait(ctx, "alice", "avid gardener", nil)
	require.NoError(t, err)
	_, err = bank.AddEmotionalImage(ctx, "alice", testImage(3), "", "proud of the garden", nil)
	require.NoError(t, err)

	pc, err := bank.GetPromptContext(ctx, "alice", "how do I prune roses")
	require.NoError(t, err)

	assert.Contains(t, pc.Conversations, "how do I prune roses")
	assert.Contains(t, pc.Conversations, "Conversation from")
	assert.Contains(t, pc.EventSummaries, "planted a rose bed")
	assert.Contains(t, pc.EmotionalContext, "proud of the garden")
	assert.Equal(t, "avid gardener", pc.Portrait)
	assert.Equal(t, 1, pc.SessionCount)
}

func TestBank_SessionCountAdvancesPerContext(t *testing.T) {
	bank, _, _ := newTestBank(t)
	ctx := context.Background()

	pc, err := bank.GetPromptContext(ctx, "alice", "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, pc.SessionCount)

	pc, err = bank.GetPromptContext(ctx, "alice", "hi again")
	require.NoError(t, err)
	assert.Equal(t, 2, pc.SessionCount)
}

func TestBank_CleanExpired(t *testing.T) {
	bank, _, clock := newTestBank(t)
	ctx := context.Background()

	_, err := bank.AddConversation(ctx, "alice", "a fading memory", "", "", nil)
	require.NoError(t, err)
	_, err = bank.AddEventSummary(ctx, "alice", "a fading event", nil)
	require.NoError(t, err)
	_, err = bank.UpdateUserPortrait(ctx, "alice", "persistent portrait", nil)
	require.NoError(t, err)

	clock.Advance(60 * 24 * time.Hour)
	_, err = bank.AddConversation(ctx, "alice", "a fresh memory", "", "", nil)
	require.NoError(t, err)

	deleted, err := bank.CleanExpired(ctx, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	got, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a fresh memory", got[0].Text)

	// Portraits never expire.
	portrait, err := bank.GetUserPortrait(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, portrait)
	assert.Equal(t, "persistent portrait", portrait.Text)
}

func TestBank_CleanExpiredDisabled(t *testing.T) {
	bank, _, clock := newTestBank(t, memorybank.WithScorer(memorybank.NewScorer(false)))
	ctx := context.Background()

	_, err := bank.AddConversation(ctx, "alice", "would have faded", "", "", nil)
	require.NoError(t, err)
	clock.Advance(365 * 24 * time.Hour)

	deleted, err := bank.CleanExpired(ctx, 0.1)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	got, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBank_ReinforcementExtendsRetention(t *testing.T) {
	bank, _, clock := newTestBank(t)
	ctx := context.Background()

	_, err := bank.AddConversation(ctx, "alice", "rehearsed memory", "", "", nil)
	require.NoError(t, err)

	// Rehearse over several days: each retrieval bumps strength and
	// resets recency, so the memory outlives the eviction sweep.
	for i := 0; i < 5; i++ {
		clock.Advance(24 * time.Hour)
		_, err := bank.Retrieve(ctx, memorybank.KindConversation, "alice", "", 1)
		require.NoError(t, err)
	}

	clock.Advance(10 * 24 * time.Hour)
	deleted, err := bank.CleanExpired(ctx, 0.1)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestBank_RecordExchangeFormatsText(t *testing.T) {
	bank, store, _ := newTestBank(t)
	ctx := context.Background()
	col := store.Collections()[memorybank.KindConversation]

	id, err := bank.RecordExchange(ctx, "alice", "hi", "hello alice", map[string]string{"session": "3"})
	require.NoError(t, err)

	stored, err := col.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "User: hi\nBot: hello alice", stored.Text)
	assert.Equal(t, "hi", stored.Metadata[memorybank.MetaUserInput])
	assert.Equal(t, "hello alice", stored.Metadata[memorybank.MetaBotReply])
	assert.Equal(t, "3", stored.Metadata["session"])
}
