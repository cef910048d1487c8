// stereo-streamer - stream live stereo video to a remote viewer
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package signaling exchanges WebRTC session descriptions between a
// viewer and the streamer, over plain HTTP or a websocket.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/TheCacophonyProject/stereo-streamer/stream"
)

// Message types.
const (
	TypeOffer    = "offer"
	TypeAnswer   = "answer"
	TypeKeyframe = "keyframe"
	TypeClose    = "close"
	TypeError    = "error"
)

const maxMessageSize = 1 << 20

// Message is the JSON body of every request and response.
type Message struct {
	Type  string `json:"type"`
	SDP   string `json:"sdp,omitempty"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Offerer answers offers. It is implemented by stream.SessionManager.
type Offerer interface {
	Offer(ctx context.Context, sdp string) (id string, answer string, err error)
	Close(id string) error
	RequestKeyframe() bool
}

// Server serves:
//
//	POST   /offer        {type: offer, sdp} -> {type: answer, sdp, id}
//	POST   /keyframe     -> 200, or 429 when throttled
//	DELETE /session?id=  -> 200, or 404
//	GET    /ws           websocket carrying the same messages
type Server struct {
	offerer      Offerer
	offerTimeout time.Duration
	mux          *http.ServeMux
}

func NewServer(offerer Offerer, offerTimeout time.Duration) *Server {
	s := &Server{
		offerer:      offerer,
		offerTimeout: offerTimeout,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("/offer", s.handleOffer)
	s.mux.HandleFunc("/keyframe", s.handleKeyframe)
	s.mux.HandleFunc("/session", s.handleSession)
	s.mux.HandleFunc("/ws", s.handleWebsocket)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Viewers are often served from another origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "offers must be POSTed")
		return
	}
	var msg Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageSize)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer: "+err.Error())
		return
	}
	reply, status := s.answer(r.Context(), msg)
	writeJSON(w, status, reply)
}

// answer handles an offer message for either transport.
func (s *Server) answer(ctx context.Context, msg Message) (Message, int) {
	if msg.Type != TypeOffer || msg.SDP == "" {
		return Message{Type: TypeError, Error: "expected an offer with an sdp"}, http.StatusBadRequest
	}
	ctx, cancel := context.WithTimeout(ctx, s.offerTimeout)
	defer cancel()
	id, answer, err := s.offerer.Offer(ctx, msg.SDP)
	if err != nil {
		log.Printf("answering offer failed: %v", err)
		return Message{Type: TypeError, Error: err.Error()}, http.StatusInternalServerError
	}
	return Message{Type: TypeAnswer, SDP: answer, ID: id}, http.StatusOK
}

func (s *Server) handleKeyframe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "keyframe requests must be POSTed")
		return
	}
	if !s.offerer.RequestKeyframe() {
		writeError(w, http.StatusTooManyRequests, "keyframe requests are being throttled")
		return
	}
	writeJSON(w, http.StatusOK, Message{Type: TypeKeyframe})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "sessions can only be deleted")
		return
	}
	id := r.URL.Query().Get("id")
	err := s.offerer.Close(id)
	switch {
	case errors.Is(err, stream.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, Message{Type: TypeClose, ID: id})
	}
}

// handleWebsocket serves one viewer. Sessions opened over the socket are
// closed when it drops.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	sessions := make(map[string]bool)
	defer func() {
		conn.Close()
		for id := range sessions {
			s.offerer.Close(id)
		}
	}()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = Message{}
		}

		var reply *Message
		switch msg.Type {
		case TypeOffer:
			answer, _ := s.answer(r.Context(), msg)
			if answer.ID != "" {
				sessions[answer.ID] = true
			}
			reply = &answer
		case TypeKeyframe:
			if !s.offerer.RequestKeyframe() {
				reply = &Message{Type: TypeError, Error: "keyframe requests are being throttled"}
			}
		case TypeClose:
			if sessions[msg.ID] {
				delete(sessions, msg.ID)
				s.offerer.Close(msg.ID)
			}
		default:
			reply = &Message{Type: TypeError, Error: "unknown message"}
		}
		if reply == nil {
			continue
		}
		buf, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := wsutil.WriteServerText(conn, buf); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, msg Message) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(msg)
}

func writeError(w http.ResponseWriter, status int, text string) {
	writeJSON(w, status, Message{Type: TypeError, Error: text})
}
