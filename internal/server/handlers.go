package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
	"github.com/drallgood/plex-audiobook-cache/internal/refresh"
	"github.com/drallgood/plex-audiobook-cache/internal/repository"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ProgressRequest is the body of PUT /api/books/{id}/progress
type ProgressRequest struct {
	Progress     int64 `json:"progress"`
	LastViewedAt int64 `json:"last_viewed_at"`
}

// CachedRequest is the body of PUT /api/books/{id}/cached
type CachedRequest struct {
	Cached bool `json:"cached"`
}

// OfflineRequest is the body of PUT /api/offline
type OfflineRequest struct {
	Offline bool `json:"offline"`
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode JSON response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccessResponse writes a success response
func (s *Server) writeSuccessResponse(w http.ResponseWriter, data interface{}) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeInternalError logs err and answers 500
func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Request failed", map[string]interface{}{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
}

func bookID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleHealthCheck handles GET /healthz
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	count, err := s.books.GetBookCountAsync(r.Context())
	if err != nil {
		s.logger.Warn("Health check could not count books", map[string]interface{}{
			"error": err.Error(),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "unavailable"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"books":   count,
		"offline": s.offline.OfflineMode(),
	})
}

// handleRefresh handles POST /refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresher.RunOnce(r.Context())
	switch {
	case errors.Is(err, refresh.ErrInProgress):
		s.writeErrorResponse(w, http.StatusConflict, err.Error())
	case repository.IsRefreshError(err):
		s.logger.Warn("Refresh aborted", map[string]interface{}{
			"error": err.Error(),
		})
		s.writeErrorResponse(w, http.StatusBadGateway, err.Error())
	case err != nil:
		s.writeInternalError(w, r, err)
	case result.Status == repository.RefreshSkippedOffline:
		s.writeJSONResponse(w, http.StatusAccepted, APIResponse{Success: true, Data: result})
	default:
		s.writeSuccessResponse(w, result)
	}
}

func (s *Server) writeBooks(w http.ResponseWriter, r *http.Request, books []models.Audiobook, err error) {
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	if books == nil {
		books = []models.Audiobook{}
	}
	s.writeSuccessResponse(w, books)
}

// handleListBooks handles GET /api/books
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.GetAllBooksAsync(r.Context())
	s.writeBooks(w, r, books, err)
}

// handleRecentlyAdded handles GET /api/books/recent
func (s *Server) handleRecentlyAdded(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.GetRecentlyAddedAsync(r.Context())
	s.writeBooks(w, r, books, err)
}

// handleRecentlyListened handles GET /api/books/listened
func (s *Server) handleRecentlyListened(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.GetRecentlyListenedAsync(r.Context())
	s.writeBooks(w, r, books, err)
}

// handleCachedBooks handles GET /api/books/cached
func (s *Server) handleCachedBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.GetCachedAudiobooksAsync(r.Context())
	s.writeBooks(w, r, books, err)
}

// handleSearch handles GET /api/search?q=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Query parameter q is required")
		return
	}
	books, err := s.books.SearchAsync(r.Context(), query)
	s.writeBooks(w, r, books, err)
}

// handleMostRecentlyPlayed handles GET /api/books/current. Data is omitted
// when nothing has been played.
func (s *Server) handleMostRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	book, err := s.books.GetMostRecentlyPlayedAsync(r.Context())
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, book)
}

// handleRandomBook handles GET /api/books/random
func (s *Server) handleRandomBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.books.GetRandomBookAsync(r.Context())
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, book)
}

// handleGetBook handles GET /api/books/{id}
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	book, err := s.books.GetAudiobookAsync(r.Context(), id)
	if err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	if book == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "Book not found")
		return
	}
	s.writeSuccessResponse(w, book)
}

// handleUpdateProgress handles PUT /api/books/{id}/progress
func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	var req ProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Progress < 0 || req.LastViewedAt < 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, "progress and last_viewed_at must not be negative")
		return
	}

	if err := s.books.UpdateProgress(r.Context(), id, req.LastViewedAt, req.Progress); err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, nil)
}

// handleUpdateCached handles PUT /api/books/{id}/cached
func (s *Server) handleUpdateCached(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	var req CachedRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.books.UpdateCached(r.Context(), id, req.Cached); err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, nil)
}

// handleLoadChapters handles POST /api/books/{id}/chapters
func (s *Server) handleLoadChapters(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	details, err := s.books.LoadBookDetails(r.Context(), id)
	switch {
	case repository.IsTrackError(err):
		s.logger.Warn("Failed to load book tracks", map[string]interface{}{
			"book_id": id,
			"error":   err.Error(),
		})
		s.writeErrorResponse(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		s.writeInternalError(w, r, err)
		return
	}
	if details == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "Book not found")
		return
	}
	s.writeSuccessResponse(w, details)
}

// handleUncacheAll handles POST /api/books/uncache
func (s *Server) handleUncacheAll(w http.ResponseWriter, r *http.Request) {
	if err := s.books.UncacheAll(r.Context()); err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, nil)
}

// handleSetOffline handles PUT /api/offline
func (s *Server) handleSetOffline(w http.ResponseWriter, r *http.Request) {
	var req OfflineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.offline.SetOfflineMode(req.Offline); err != nil {
		s.writeInternalError(w, r, err)
		return
	}
	s.logger.Info("Offline mode changed", map[string]interface{}{
		"offline": req.Offline,
	})
	s.writeSuccessResponse(w, OfflineRequest{Offline: s.offline.OfflineMode()})
}
