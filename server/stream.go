package server

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Zoiudp/Dolores-AI/engine"
)

type streamRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type streamEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Session int    `json:"session,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleStream serves text conversations over a websocket. Each inbound
// message is one turn; reply chunks are forwarded as they arrive from
// the model, followed by a final "done" event with the full text.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var in streamRequest
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] Websocket read failed: %v", err)
			}
			return
		}
		if in.UserID == "" {
			in.UserID = defaultUserID
		}

		req := &engine.Request{
			UserID: in.UserID,
			Text:   in.Text,
			StreamCallback: func(chunk string, done bool) {
				if done || chunk == "" {
					return
				}
				if err := conn.WriteJSON(streamEvent{Type: "chunk", Text: chunk}); err != nil {
					log.Printf("[SERVER] Websocket write failed: %v", err)
				}
			},
		}

		reply, err := s.responder.Respond(r.Context(), req)
		if err != nil {
			if werr := conn.WriteJSON(streamEvent{Type: "error", Message: err.Error()}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(streamEvent{Type: "done", Text: reply.Text, Session: reply.SessionCount}); err != nil {
			return
		}
	}
}
