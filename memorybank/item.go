package memorybank

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one memory collection.
type Kind string

const (
	KindConversation   Kind = "conversation"
	KindEmotionalImage Kind = "emotional_image"
	KindEventSummary   Kind = "event_summary"
	KindUserPortrait   Kind = "user_portrait"
)

// Kinds lists every memory kind a Bank manages.
var Kinds = []Kind{KindConversation, KindEmotionalImage, KindEventSummary, KindUserPortrait}

// Baseline memory strengths. Portraits start stronger so they decay
// far slower than ordinary memories even before reinforcement.
const (
	DefaultStrength  = 1.0
	PortraitStrength = 5.0
)

// Well-known metadata keys shared between the Bank and Collection
// implementations. Reinforcement is persisted as a metadata patch on
// these keys.
const (
	MetaUserID     = "user_id"
	MetaKind       = "type"
	MetaCreatedAt  = "timestamp"
	MetaLastAccess = "last_access_time"
	MetaStrength   = "memory_strength"
	MetaUserInput  = "user_input"
	MetaBotReply   = "bot_response"
	MetaImagePath  = "image_path"
)

// Item is one stored memory.
type Item struct {
	ID         string
	UserID     string
	Kind       Kind
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
	LastAccess time.Time
	Strength   float64
	Metadata   map[string]string
}

// Retrieved is an Item returned from a query, with its raw cosine
// similarity and its decay score at retrieval time. The score is always
// computed fresh from persisted state, never cached.
type Retrieved struct {
	Item
	Similarity float32
	Score      float64
}

// newItem builds a fresh item with baseline strength. Strength is
// clamped upward to the minimum of 1.0 and never decreased afterwards.
func newItem(userID string, kind Kind, text string, strength float64, now time.Time, meta map[string]string) *Item {
	if strength < DefaultStrength {
		strength = DefaultStrength
	}
	md := make(map[string]string, len(meta))
	for k, v := range meta {
		md[k] = v
	}
	return &Item{
		ID:         itemID(kind, userID),
		UserID:     userID,
		Kind:       kind,
		Text:       text,
		CreatedAt:  now,
		LastAccess: now,
		Strength:   strength,
		Metadata:   md,
	}
}

// itemID generates a collection-unique id. Portraits are keyed
// deterministically by user so updates hit the same record.
func itemID(kind Kind, userID string) string {
	switch kind {
	case KindUserPortrait:
		return PortraitID(userID)
	case KindConversation:
		return fmt.Sprintf("conv_%s_%s", userID, uuid.NewString())
	case KindEmotionalImage:
		return fmt.Sprintf("img_%s_%s", userID, uuid.NewString())
	case KindEventSummary:
		return fmt.Sprintf("sum_%s_%s", userID, uuid.NewString())
	default:
		return uuid.NewString()
	}
}

// PortraitID returns the deterministic id of a user's portrait item.
func PortraitID(userID string) string {
	return "portrait_" + userID
}

// FormatStrength and ParseStrength convert memory strength to and from
// its persisted metadata representation.
func FormatStrength(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

func ParseStrength(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < DefaultStrength {
		return DefaultStrength
	}
	return v
}

// FormatTime and ParseTime convert timestamps to and from their
// persisted metadata representation (fractional unix seconds).
func FormatTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func ParseTime(s string) time.Time {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
