// Package server exposes sessions to the dashboard over HTTP and pushes
// transcript signals over a websocket.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/session"
)

// NewRouter wires HTTP routes to the session manager.
func NewRouter(sessions *session.Manager) http.Handler {
	h := &handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/sessions", func(api chi.Router) {
		api.Post("/", h.createSession)
		api.Get("/", h.listSessions)
		api.Route("/{sessionID}", func(sr chi.Router) {
			sr.Get("/", h.getSession)
			sr.Delete("/", h.resetSession)
			sr.Post("/messages", h.postMessage)
			sr.Get("/ws", h.streamSession)
		})
	})

	return r
}

// requestLogger logs one line per request through the global slog logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
