package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event names sent on the book stream
const (
	EventBooks     = "books"
	EventHeartbeat = "heartbeat"
)

// handleBookStream handles GET /api/books/stream. It sends the visible book
// list as a server-sent event on connect and after every change, until the
// client disconnects.
func (s *Server) handleBookStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		s.logger.Error("Streaming not supported", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	updates := s.books.GetAllBooks().Subscribe(ctx)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case books, ok := <-updates:
			if !ok {
				return
			}
			if err := s.sendEvent(rc, w, EventBooks, books); err != nil {
				s.logger.Debug("Book stream client went away", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
		case <-heartbeat.C:
			if err := s.sendEvent(rc, w, EventHeartbeat, map[string]int64{"time": time.Now().Unix()}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) sendEvent(rc *http.ResponseController, w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	if err := rc.SetWriteDeadline(time.Now().Add(2 * s.heartbeat)); err != nil {
		s.logger.Debug("Failed to set write deadline", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}
