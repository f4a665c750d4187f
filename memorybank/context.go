package memorybank

import (
	"fmt"
	"strings"
	"time"
)

// Explicit empty-state sentinels. The prompt always carries a definite
// statement for each collection rather than an absent field.
const (
	NoConversations    = "No relevant past conversations."
	NoEmotionalContext = "No emotional image analysis available."
	NoPortrait         = "No user portrait available yet."
	NoEventSummaries   = "No event summaries available."
)

const contextTimeLayout = "2006-01-02 15:04"

// PromptContext is the aggregated retrieval output handed to the prompt
// orchestration layer. Every text field is non-empty: either joined
// memory entries or the matching sentinel.
type PromptContext struct {
	CurrentTime  time.Time
	UserID       string
	SessionCount int
	UserInput    string

	Conversations    string
	EmotionalContext string
	Portrait         string
	EventSummaries   string
}

// joinEntries renders retrieved items as timestamped blocks:
//
//	[<label> 2025-04-01 09:30]
//	<text>
func joinEntries(items []Retrieved, label, sep string) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("[%s %s]\n%s", label, it.CreatedAt.Format(contextTimeLayout), it.Text))
	}
	return strings.Join(parts, sep)
}

// Assembler formats a PromptContext into a single text block for model
// consumption. It performs no retrieval, no mutation and no I/O.
type Assembler struct{}

// Render serializes the context. Output is stable for identical input.
func (Assembler) Render(pc *PromptContext) string {
	var sb strings.Builder
	sb.WriteString("USER MEMORY CONTEXT:\n")
	fmt.Fprintf(&sb, "- Current Time: %s\n", pc.CurrentTime.Format(contextTimeLayout))
	fmt.Fprintf(&sb, "- User: %s\n", pc.UserID)
	fmt.Fprintf(&sb, "- Session: %d\n", pc.SessionCount)
	fmt.Fprintf(&sb, "- User Profile: %s\n", pc.Portrait)
	fmt.Fprintf(&sb, "- Previous Conversations:\n%s\n", pc.Conversations)
	fmt.Fprintf(&sb, "- Emotional History:\n%s\n", pc.EmotionalContext)
	fmt.Fprintf(&sb, "- Important Events:\n%s\n", pc.EventSummaries)
	return sb.String()
}
