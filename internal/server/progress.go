package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// keepAlive is the interval between comment lines on an idle stream.
const keepAlive = 15 * time.Second

// handleProgress streams a session's progress events as server-sent events
// until a terminal event is delivered or the client goes away. Opening the
// same session again replaces this stream.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		http.Error(w, `{"success":false,"message":"session id is required"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.hub.Open(sessionID)
	defer s.hub.Release(sub)
	log := s.log.With(zap.String("session", sessionID))
	log.Debug("progress stream opened")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("progress stream closed by client")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				// Replaced by a newer subscriber or closed by the hub.
				fmt.Fprint(w, "event: done\ndata: end\n\n")
				flusher.Flush()
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				log.Warn("encode progress event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			if ev.Terminal() {
				fmt.Fprint(w, "event: done\ndata: end\n\n")
				flusher.Flush()
				return
			}
			flusher.Flush()
		}
	}
}
