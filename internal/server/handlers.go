package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/session"
	"github.com/comigor/mentorchat/internal/transcript"
)

const writeWait = 10 * time.Second

type handler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
}

type sessionResponse struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"createdAt"`
	View      transcript.View `json:"view"`
}

type turnResponse struct {
	session.TurnResult
	Error string `json:"error,omitempty"`
}

// wsMessage is pushed to websocket clients; Type is "view" for the initial
// snapshot and the signal kind afterwards.
type wsMessage struct {
	Type   string             `json:"type"`
	Signal *transcript.Signal `json:"signal,omitempty"`
	View   transcript.View    `json:"view"`
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{ID: s.ID(), Label: s.Label(), CreatedAt: s.CreatedAt(), View: s.View()}
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.sessions.Create(payload.Label)
	respondJSON(w, http.StatusCreated, toSessionResponse(s))
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.sessions.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s))
}

func (h *handler) resetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) postMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.Submit(r.Context(), payload.Text)
	if err == nil {
		respondJSON(w, http.StatusOK, turnResponse{TurnResult: res})
		return
	}

	status := statusFor(err)
	if status == http.StatusBadGateway {
		respondJSON(w, status, turnResponse{TurnResult: res, Error: err.Error()})
		return
	}
	respondError(w, status, err.Error())
}

func (h *handler) streamSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Session(s.ID()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	signals, unsubscribe := s.Subscribe(32)
	defer unsubscribe()

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	if err := send(wsMessage{Type: "view", View: s.View()}); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if err := send(wsMessage{Type: string(sig.Kind), Signal: &sig, View: s.View()}); err != nil {
				logger.Session(s.ID()).Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return nil, false
	}
	return s, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcript.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, session.ErrResponseGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
