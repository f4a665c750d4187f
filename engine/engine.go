// Package engine runs the companion's response loop: it assembles a
// memory-augmented prompt, calls the Claude API (with the camera frame
// as a multimodal block when one is supplied) and records the finished
// exchange back into the memory bank.
package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/Zoiudp/Dolores-AI/memorybank"
)

// MemoryBank is the slice of the bank the engine depends on.
type MemoryBank interface {
	GetPromptContext(ctx context.Context, userID, userInput string) (*memorybank.PromptContext, error)
	RecordExchange(ctx context.Context, userID, userText, botText string, meta map[string]string) (string, error)
	RecordEmotionalImage(ctx context.Context, userID string, img image.Image, imagePath, description string, meta map[string]string) (string, error)
}

// Engine drives one model conversation turn.
type Engine struct {
	client    *anthropic.Client
	bank      MemoryBank
	assembler memorybank.Assembler

	model        string
	maxTokens    int64
	systemPrompt string
}

// Option configures the engine.
type Option func(*Engine)

// WithModel sets the Claude model.
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithMaxTokens sets the response token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) {
		e.maxTokens = n
	}
}

// WithSystemPrompt replaces the default companion persona prompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// New creates an engine over an Anthropic client and a memory bank.
func New(client *anthropic.Client, bank MemoryBank, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		bank:         bank,
		model:        "claude-sonnet-4-20250514",
		maxTokens:    1024,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one conversation turn.
type Request struct {
	// UserID identifies the speaker.
	UserID string

	// Text is the transcribed user input.
	Text string

	// Image is the decoded camera frame, used for the emotional-image
	// memory. Optional.
	Image image.Image

	// ImageData and ImageMediaType carry the raw encoded frame for the
	// model's multimodal block. Optional.
	ImageData      []byte
	ImageMediaType string

	// ImagePath is where the frame was persisted; stored by reference.
	ImagePath string

	// StreamCallback receives reply chunks as they arrive. Optional.
	StreamCallback func(chunk string, done bool)
}

// Reply is the model's response for one turn.
type Reply struct {
	Text         string
	SessionCount int
}

// Respond executes one turn: retrieve memories, call the model, record
// the exchange. Memory recording failures are non-fatal; the reply is
// already in hand and is returned regardless.
func (e *Engine) Respond(ctx context.Context, req *Request) (*Reply, error) {
	if req.UserID == "" {
		return nil, &memorybank.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if req.Text == "" {
		return nil, &memorybank.ValidationError{Field: "text", Reason: "must not be empty"}
	}

	// PHASE 1: RETRIEVE MEMORIES
	pctx, err := e.bank.GetPromptContext(ctx, req.UserID, req.Text)
	if err != nil {
		return nil, fmt.Errorf("get prompt context: %w", err)
	}
	system := e.systemPrompt + "\n\n" + e.assembler.Render(pctx)

	// PHASE 2: CALL MODEL
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(req.Text),
	}
	if len(req.ImageData) > 0 {
		mediaType := req.ImageMediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		encoded := base64.StdEncoding.EncodeToString(req.ImageData)
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, encoded))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}

	var resp *anthropic.Message
	if req.StreamCallback != nil {
		resp, err = e.createMessageStreaming(ctx, params, req.StreamCallback)
	} else {
		resp, err = e.client.Messages.New(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if req.StreamCallback != nil {
		req.StreamCallback("", true)
	}

	// PHASE 3: RECORD EXCHANGE
	if _, err := e.bank.RecordExchange(ctx, req.UserID, req.Text, text, map[string]string{
		"session": fmt.Sprintf("%d", pctx.SessionCount),
	}); err != nil {
		log.Printf("[ENGINE] Failed to record exchange: %v", err)
	}

	if req.Image != nil {
		description := emotionDescription(pctx, req.Text, text)
		if _, err := e.bank.RecordEmotionalImage(ctx, req.UserID, req.Image, req.ImagePath, description, map[string]string{
			"user_question": req.Text,
		}); err != nil {
			log.Printf("[ENGINE] Failed to record emotional image: %v", err)
		}
	}

	return &Reply{Text: text, SessionCount: pctx.SessionCount}, nil
}

// emotionDescription summarizes the visual exchange for the emotional
// image collection.
func emotionDescription(pctx *memorybank.PromptContext, question, reply string) string {
	const maxReply = 200
	if len(reply) > maxReply {
		reply = reply[:maxReply] + "..."
	}
	return fmt.Sprintf("Snapshot from %s: user asked %q. Reply: %s",
		pctx.CurrentTime.Format("2006-01-02 15:04"), question, reply)
}

// createMessageStreaming handles streaming API calls.
func (e *Engine) createMessageStreaming(ctx context.Context, params anthropic.MessageNewParams, callback func(string, bool)) (*anthropic.Message, error) {
	stream := e.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			// Accumulation errors are non-fatal; keep streaming.
			continue
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				callback(delta.Text, false)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}
