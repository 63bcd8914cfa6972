package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL + "/", Token: "test-token"}, logger.Nop())
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://plex:32400/", Token: "tok"}, logger.Nop())
	assert.Equal(t, "http://plex:32400", client.baseURL)
	assert.Equal(t, "tok", client.token)
	assert.Len(t, client.ClientIdentifier(), 36)
	assert.NotNil(t, client.client)

	fixed := NewClient(Config{ClientIdentifier: "abc"}, logger.Nop())
	assert.Equal(t, "abc", fixed.ClientIdentifier())
}

func TestRequestHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Plex-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, Product, r.Header.Get("X-Plex-Product"))
		assert.NotEmpty(t, r.Header.Get("X-Plex-Client-Identifier"))
		_, _ = w.Write([]byte(`{"MediaContainer":{"size":0}}`))
	})

	libs, err := client.GetLibraries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, libs)
}

func TestGetLibraries(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expected    []Library
		expectError bool
	}{
		{
			name:   "successful response",
			status: http.StatusOK,
			body: `{"MediaContainer":{"size":2,"Directory":[
				{"key":"3","title":"Audiobooks","type":"artist"},
				{"key":"4","title":"Movies","type":"movie"}]}}`,
			expected: []Library{
				{Key: "3", Title: "Audiobooks", Type: "artist"},
				{Key: "4", Title: "Movies", Type: "movie"},
			},
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `Unauthorized`,
			expectError: true,
		},
		{
			name:        "malformed json",
			status:      http.StatusOK,
			body:        `{"MediaContainer":`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/library/sections", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			libraries, err := client.GetLibraries(context.Background())
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, libraries)
		})
	}
}

func TestFetchAudiobooks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections/3/all", r.URL.Path)
		assert.Equal(t, "9", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"MediaContainer":{"size":2,"Metadata":[
			{"ratingKey":"101","parentRatingKey":"50","title":"Dune","titleSort":"Dune",
			 "parentTitle":"Frank Herbert","thumb":"/t/101","summary":"Spice","year":1965,
			 "addedAt":1000,"updatedAt":1100,"lastViewedAt":1200,"viewOffset":5000,
			 "viewCount":2,"leafCount":10,"viewedLeafCount":3,
			 "Genre":[{"tag":"Sci-Fi"},{"tag":"Classic"}]},
			{"ratingKey":"102","title":"Hyperion","parentTitle":"Dan Simmons"}]}}`))
	})

	books, err := client.FetchAudiobooks(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, models.Audiobook{
		ID:              101,
		Source:          3,
		Title:           "Dune",
		TitleSort:       "Dune",
		Author:          "Frank Herbert",
		Thumb:           "/t/101",
		ParentID:        50,
		Genre:           "Sci-Fi, Classic",
		Summary:         "Spice",
		Year:            1965,
		AddedAt:         1000,
		UpdatedAt:       1100,
		LastViewedAt:    1200,
		Progress:        5000,
		ViewedLeafCount: 3,
		LeafCount:       10,
		ViewCount:       2,
	}, books[0])

	assert.Equal(t, 102, books[1].ID)
	assert.Equal(t, "Hyperion", books[1].TitleSort, "title is used when titleSort is missing")
}

func TestFetchAudiobooksRequiresLibrary(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://unused"}, logger.Nop())
	_, err := client.FetchAudiobooks(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingLibrary)
}

func TestFetchTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/metadata/101/children", r.URL.Path)
		_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[
			{"ratingKey":"201","parentRatingKey":"101","title":"Part 1","index":1,"parentIndex":1,
			 "duration":60000,"viewOffset":1000,"lastViewedAt":1500,
			 "parentTitle":"Dune","grandparentTitle":"Frank Herbert",
			 "Media":[{"Part":[{"key":"/library/parts/9/file.mp3","duration":60000}]}]},
			{"ratingKey":"202","parentRatingKey":"101","title":"Part 2","index":2,"parentIndex":1,"duration":30000}]}}`))
	})

	tracks, err := client.FetchTracks(context.Background(), 101)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, models.MediaItemTrack{
		ID:           201,
		ParentID:     101,
		Title:        "Part 1",
		Index:        1,
		DiscNumber:   1,
		Duration:     60000,
		Progress:     1000,
		Media:        "/library/parts/9/file.mp3",
		Album:        "Dune",
		Artist:       "Frank Herbert",
		LastViewedAt: 1500,
	}, tracks[0])
	assert.Empty(t, tracks[1].Media)
}

func TestUnparseableRatingKeysAreSkipped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[
			{"ratingKey":"","title":"No key"},
			{"ratingKey":"abc","title":"Bad key"},
			{"ratingKey":"-4","title":"Negative key"},
			{"ratingKey":"7","parentRatingKey":"101","title":"Good"}]}}`))
	})

	books, err := client.FetchAudiobooks(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 7, books[0].ID)

	tracks, err := client.FetchTracks(context.Background(), 101)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, 7, tracks[0].ID)
}

func TestFetchChapters(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []models.Chapter
	}{
		{
			name: "track with chapters",
			body: `{"MediaContainer":{"Metadata":[{"ratingKey":"201","parentRatingKey":"101","parentIndex":2,
				"Chapter":[
					{"id":1,"tag":"Opening","index":1,"startTimeOffset":0,"endTimeOffset":1000},
					{"id":2,"tag":"Middle","index":2,"startTimeOffset":1000,"endTimeOffset":2500}]}]}}`,
			expected: []models.Chapter{
				{ID: 1, Title: "Opening", Index: 1, DiscNumber: 2, StartTimeOffset: 0, EndTimeOffset: 1000, TrackID: 201, BookID: 101},
				{ID: 2, Title: "Middle", Index: 2, DiscNumber: 2, StartTimeOffset: 1000, EndTimeOffset: 2500, TrackID: 201, BookID: 101},
			},
		},
		{
			name:     "track without chapters",
			body:     `{"MediaContainer":{"Metadata":[{"ratingKey":"201"}]}}`,
			expected: []models.Chapter{},
		},
		{
			name: "empty container",
			body: `{"MediaContainer":{"size":0}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/library/metadata/201", r.URL.Path)
				assert.Equal(t, "1", r.URL.Query().Get("includeChapters"))
				_, _ = w.Write([]byte(tt.body))
			})

			chapters, err := client.FetchChapters(context.Background(), 201)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, chapters)
		})
	}
}

func TestFetchChaptersCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"MediaContainer":{"Metadata":[{"ratingKey":"201","Chapter":[{"id":1,"tag":"One"}]}]}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, ChapterCacheTTL: time.Minute}, logger.Nop())
	for i := 0; i < 3; i++ {
		chapters, err := client.FetchChapters(context.Background(), 201)
		require.NoError(t, err)
		require.Len(t, chapters, 1)
	}
	assert.Equal(t, 1, calls)

	uncached := NewClient(Config{BaseURL: server.URL}, logger.Nop())
	_, err := uncached.FetchChapters(context.Background(), 201)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.FetchTracks(context.Background(), 1)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "/library/metadata/1/children", apiErr.Endpoint)
	assert.Contains(t, apiErr.Body, "boom")
}

func TestContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchAudiobooks(ctx, "3")
	assert.Error(t, err)
}

func TestRateLimiting(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"MediaContainer":{}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 20}, logger.Nop())

	start := time.Now()
	for i := 0; i < 25; i++ {
		_, err := client.GetLibraries(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 25, calls)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}
