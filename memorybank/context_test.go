package memorybank_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zoiudp/Dolores-AI/memorybank"
)

func samplePromptContext() *memorybank.PromptContext {
	return &memorybank.PromptContext{
		CurrentTime:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		UserID:           "alice",
		SessionCount:     4,
		UserInput:        "how are the roses doing",
		Conversations:    "[Conversation from 2025-05-30 18:00]\nUser: hi\nBot: hello",
		EmotionalContext: "[Emotional state from 2025-05-30 18:01]\nsmiling",
		Portrait:         "avid gardener",
		EventSummaries:   "[Event from 2025-05-28 10:00]\nplanted a rose bed",
	}
}

func TestAssembler_RenderContainsEverySection(t *testing.T) {
	out := memorybank.Assembler{}.Render(samplePromptContext())

	assert.True(t, strings.HasPrefix(out, "USER MEMORY CONTEXT:\n"))
	assert.Contains(t, out, "- Current Time: 2025-06-01 09:30")
	assert.Contains(t, out, "- User: alice")
	assert.Contains(t, out, "- Session: 4")
	assert.Contains(t, out, "- User Profile: avid gardener")
	assert.Contains(t, out, "- Previous Conversations:\n[Conversation from 2025-05-30 18:00]")
	assert.Contains(t, out, "- Emotional History:\n[Emotional state from 2025-05-30 18:01]")
	assert.Contains(t, out, "- Important Events:\n[Event from 2025-05-28 10:00]")
}

func TestAssembler_RenderIsStable(t *testing.T) {
	pc := samplePromptContext()
	a := memorybank.Assembler{}

	first := a.Render(pc)
	second := a.Render(pc)
	assert.Equal(t, first, second)
}

func TestAssembler_SectionOrder(t *testing.T) {
	out := memorybank.Assembler{}.Render(samplePromptContext())

	profile := strings.Index(out, "- User Profile:")
	conversations := strings.Index(out, "- Previous Conversations:")
	emotional := strings.Index(out, "- Emotional History:")
	events := strings.Index(out, "- Important Events:")

	require.NotEqual(t, -1, profile)
	assert.Less(t, profile, conversations)
	assert.Less(t, conversations, emotional)
	assert.Less(t, emotional, events)
}

func TestAssembler_RenderSentinels(t *testing.T) {
	pc := &memorybank.PromptContext{
		CurrentTime:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		UserID:           "newcomer",
		SessionCount:     1,
		Conversations:    memorybank.NoConversations,
		EmotionalContext: memorybank.NoEmotionalContext,
		Portrait:         memorybank.NoPortrait,
		EventSummaries:   memorybank.NoEventSummaries,
	}
	out := memorybank.Assembler{}.Render(pc)

	assert.Contains(t, out, memorybank.NoConversations)
	assert.Contains(t, out, memorybank.NoEmotionalContext)
	assert.Contains(t, out, memorybank.NoPortrait)
	assert.Contains(t, out, memorybank.NoEventSummaries)
}
