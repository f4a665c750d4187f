// Package server exposes the companion over HTTP: a multipart
// audio+image conversation endpoint, synthesized-reply downloads, a
// websocket streaming variant and memory maintenance routes.
//
// Transcription and speech synthesis are external collaborators behind
// interfaces; the server only wires them into the request flow.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Zoiudp/Dolores-AI/engine"
	"github.com/Zoiudp/Dolores-AI/memorybank"
)

// Transcriber converts recorded speech to text.
// Implementations: Whisper sidecar, cloud STT. Out of scope here.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Synthesizer renders reply text to an audio file at outPath.
// Implementations: edge-tts sidecar, cloud TTS. Out of scope here.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

// Responder produces one conversation reply. Satisfied by engine.Engine.
type Responder interface {
	Respond(ctx context.Context, req *engine.Request) (*engine.Reply, error)
}

// Bank is the slice of the memory bank the HTTP surface needs.
type Bank interface {
	Retrieve(ctx context.Context, kind memorybank.Kind, userID, query string, topK int) ([]memorybank.Retrieved, error)
	RunMaintenance(ctx context.Context, threshold float64) (int, error)
}

// Server is the HTTP front of the companion.
type Server struct {
	responder   Responder
	bank        Bank
	transcriber Transcriber
	synthesizer Synthesizer

	audioDir  string
	uploadDir string

	listening atomic.Bool
	upgrader  websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithTranscriber sets the speech-to-text collaborator. Without one,
// the multipart endpoint rejects audio uploads.
func WithTranscriber(t Transcriber) Option {
	return func(s *Server) {
		s.transcriber = t
	}
}

// WithSynthesizer sets the text-to-speech collaborator. Without one,
// replies are text-only.
func WithSynthesizer(t Synthesizer) Option {
	return func(s *Server) {
		s.synthesizer = t
	}
}

// New creates a Server. audioDir holds synthesized replies; uploadDir
// stages incoming files.
func New(responder Responder, bank Bank, audioDir, uploadDir string, opts ...Option) *Server {
	s := &Server{
		responder: responder,
		bank:      bank,
		audioDir:  audioDir,
		uploadDir: uploadDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.listening.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Post("/audio_image", s.handleConverse)
	r.Get("/model_output/{filename}", s.handleAudio)
	r.Post("/set_listening_state", s.handleListening)
	r.Get("/memories", s.handleMemories)
	r.Post("/maintenance", s.handleMaintenance)
	r.Get("/ws", s.handleStream)

	return r
}
