package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Zoiudp/Dolores-AI/engine"
	"github.com/Zoiudp/Dolores-AI/memorybank"
)

// defaultUserID serves single-user deployments with no authentication.
const defaultUserID = "User 1"

const maxUploadBytes = 32 << 20

// handleConverse accepts a multipart request with an "audio" part and
// an optional "image" part, transcribes the audio, runs the responder
// and synthesizes the reply.
func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	if !s.listening.Load() {
		writeError(w, http.StatusBadRequest, "Listening is disabled, no audio will be fetched.")
		return
	}
	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "no transcriber configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	audioFile, audioHeader, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file part in the request")
		return
	}
	defer audioFile.Close()
	if audioHeader.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		userID = defaultUserID
	}

	start := time.Now()

	audioPath, err := s.stageUpload(audioFile, "audio_"+uuid.NewString()+filepath.Ext(audioHeader.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(audioPath)

	req := &engine.Request{UserID: userID}

	if imageFile, imageHeader, err := r.FormFile("image"); err == nil {
		defer imageFile.Close()
		if err := s.attachImage(req, imageFile, imageHeader); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	transcription, err := s.transcriber.Transcribe(r.Context(), audioPath)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("transcription failed: %v", err))
		return
	}
	req.Text = transcription

	reply, err := s.responder.Respond(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	audioSource := ""
	if s.synthesizer != nil {
		filename := "reply_" + uuid.NewString() + ".mp3"
		outPath := filepath.Join(s.audioDir, filename)
		if err := s.synthesizer.Synthesize(r.Context(), reply.Text, outPath); err != nil {
			log.Printf("[SERVER] Synthesis failed: %v", err)
		} else {
			audioSource = "/model_output/" + filename
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      reply.Text,
		"audio_source": audioSource,
		"session":      reply.SessionCount,
		"exec_seconds": time.Since(start).Seconds(),
	})
}

// stageUpload copies an uploaded part into the upload directory.
func (s *Server) stageUpload(src multipart.File, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return path, nil
}

// attachImage decodes the uploaded frame, persists it for by-reference
// storage and fills the request's image fields.
func (s *Server) attachImage(req *engine.Request, file multipart.File, header *multipart.FileHeader) error {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, "image_"+uuid.NewString()+"."+format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist image: %w", err)
	}

	req.Image = img
	req.ImageData = data
	req.ImageMediaType = "image/" + format
	req.ImagePath = path
	return nil
}

// handleAudio serves a synthesized reply file.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	path := filepath.Join(s.audioDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	http.ServeFile(w, r, path)
}

// handleListening toggles whether the converse endpoint accepts audio.
func (s *Server) handleListening(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsListening *bool `json:"isListening"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsListening == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.listening.Store(*body.IsListening)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Listening state set to %t", *body.IsListening),
	})
}

// handleMemories returns recent or query-relevant conversation memories.
func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = defaultUserID
	}
	query := r.URL.Query().Get("query")

	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}

	items, err := s.bank.Retrieve(r.Context(), memorybank.KindConversation, userID, query, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type memoryView struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		Score     float64   `json:"memory_score"`
		CreatedAt time.Time `json:"created_at"`
	}
	views := make([]memoryView, 0, len(items))
	for _, it := range items {
		views = append(views, memoryView{
			ID:        it.ID,
			Text:      it.Text,
			Score:     it.Score,
			CreatedAt: it.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memories": views})
}

// handleMaintenance runs one eviction sweep.
func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Threshold float64 `json:"threshold"`
	}{Threshold: 0.1}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	deleted, err := s.bank.RunMaintenance(r.Context(), body.Threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
