// Package plex is a small client for the Plex Media Server HTTP API,
// covering the library, album, track and chapter endpoints an audiobook
// cache needs.
package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/drallgood/plex-audiobook-cache/internal/cache"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

const (
	// Product is sent as X-Plex-Product
	Product = "plex-audiobook-cache"

	// albumType is the Plex metadata type of a music album
	albumType = 9

	defaultTimeout = 30 * time.Second
)

// ErrMissingLibrary is returned when no library section id is configured
var ErrMissingLibrary = errors.New("plex library id is required")

// APIError is returned for non-2xx responses
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plex API %s returned status %d", e.Endpoint, e.StatusCode)
}

// Config configures a Client
type Config struct {
	BaseURL           string
	Token             string
	ClientIdentifier  string
	RequestsPerSecond float64
	Timeout           time.Duration
	// ChapterCacheTTL keeps fetched chapter markers per track; 0 disables it
	ChapterCacheTTL   time.Duration
	HTTPClient        *http.Client
}

// Client is a client for the Plex Media Server API
type Client struct {
	baseURL  string
	token    string
	clientID string
	client   *http.Client
	limiter  *rate.Limiter
	chapters cache.Cache[int, []models.Chapter]
	logger   *logger.Logger
}

// NewClient creates a Plex client. A random client identifier is generated
// when none is configured.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.ClientIdentifier == "" {
		cfg.ClientIdentifier = uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		clientID: cfg.ClientIdentifier,
		client:   cfg.HTTPClient,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   log.WithComponent("plex_client"),
	}
	if cfg.ChapterCacheTTL > 0 {
		c.chapters = cache.WithTTL(cache.NewMemoryCache[int, []models.Chapter](c.logger), cfg.ChapterCacheTTL)
	}
	return c
}

// ClientIdentifier returns the X-Plex-Client-Identifier sent with every request
func (c *Client) ClientIdentifier() string {
	return c.clientID
}

// get performs a GET on endpoint and decodes the MediaContainer response
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*mediaContainer, error) {
	log := c.logger.WithFields(map[string]interface{}{"endpoint": endpoint})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		log.Error("Failed to create request", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Client-Identifier", c.clientID)
	req.Header.Set("X-Plex-Product", Product)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("Request failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("Unexpected status code", map[string]interface{}{
			"status":   resp.StatusCode,
			"response": truncate(string(body), 512),
		})
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result mediaContainer
	if err := json.Unmarshal(body, &result); err != nil {
		log.Error("Failed to decode response", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}

	log.Debug("Request completed", map[string]interface{}{
		"status":   resp.StatusCode,
		"items":    len(result.MediaContainer.Metadata) + len(result.MediaContainer.Directory),
		"duration": time.Since(start).String(),
	})
	return &result, nil
}

// GetLibraries fetches all library sections
func (c *Client) GetLibraries(ctx context.Context) ([]Library, error) {
	result, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return nil, err
	}

	libraries := result.MediaContainer.Directory
	c.logger.Info("Fetched libraries", map[string]interface{}{"count": len(libraries)})
	return libraries, nil
}

// FetchAudiobooks returns every album in the library section as an audiobook
func (c *Client) FetchAudiobooks(ctx context.Context, libraryID string) ([]models.Audiobook, error) {
	if libraryID == "" {
		return nil, ErrMissingLibrary
	}

	endpoint := fmt.Sprintf("/library/sections/%s/all", url.PathEscape(libraryID))
	query := url.Values{"type": {strconv.Itoa(albumType)}}
	result, err := c.get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}

	source, _ := strconv.ParseInt(libraryID, 10, 64)
	books := make([]models.Audiobook, 0, len(result.MediaContainer.Metadata))
	for _, m := range result.MediaContainer.Metadata {
		book, err := m.toAudiobook(source)
		if err != nil {
			c.logger.Warn("Skipping audiobook", map[string]interface{}{
				"library_id": libraryID,
				"title":      m.Title,
				"error":      err.Error(),
			})
			continue
		}
		books = append(books, book)
	}

	c.logger.Info("Fetched audiobooks", map[string]interface{}{
		"library_id": libraryID,
		"count":      len(books),
	})
	return books, nil
}

// FetchTracks returns the tracks of a book
func (c *Client) FetchTracks(ctx context.Context, bookID int) ([]models.MediaItemTrack, error) {
	endpoint := fmt.Sprintf("/library/metadata/%d/children", bookID)
	result, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.MediaItemTrack, 0, len(result.MediaContainer.Metadata))
	for _, m := range result.MediaContainer.Metadata {
		track, err := m.toTrack()
		if err != nil {
			c.logger.Warn("Skipping track", map[string]interface{}{
				"book_id": bookID,
				"title":   m.Title,
				"error":   err.Error(),
			})
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// FetchChapters returns the embedded chapter markers of a track, which may be empty
func (c *Client) FetchChapters(ctx context.Context, trackID int) ([]models.Chapter, error) {
	if c.chapters != nil {
		if chapters, ok := c.chapters.Get(trackID); ok {
			return chapters, nil
		}
	}

	endpoint := fmt.Sprintf("/library/metadata/%d", trackID)
	result, err := c.get(ctx, endpoint, url.Values{"includeChapters": {"1"}})
	if err != nil {
		return nil, err
	}

	var chapters []models.Chapter
	if len(result.MediaContainer.Metadata) > 0 {
		chapters = result.MediaContainer.Metadata[0].toChapters()
	}
	if c.chapters != nil {
		c.chapters.Set(trackID, chapters, 0)
	}
	return chapters, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
