package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

const testToken = "secret-token"

func newPlexServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer":{"size":1,"Directory":[{"key":"1","title":"Audiobooks","type":"artist"}]}}`)
	})
	mux.HandleFunc("/library/sections/1/all", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"MediaContainer":{"size":2,"Metadata":[
			{"ratingKey":"101","title":"Dune","parentTitle":"Frank Herbert","addedAt":100,"duration":5000},
			{"ratingKey":"102","title":"Neuromancer","parentTitle":"William Gibson","addedAt":200,"duration":7000}
		]}}`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func setupEnv(t *testing.T, plexURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("DATABASE_TYPE", "sqlite-pure")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("PREFS_FILE", "")
	t.Setenv("PLEX_PREFS_FILE", "")
	t.Setenv("ENCRYPTION_KEY", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PLEX_URL", plexURL)
	t.Setenv("PLEX_TOKEN", testToken)
	t.Setenv("PLEX_LIBRARY_ID", "1")
	os.Unsetenv("OFFLINE_MODE")
	return dir
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp()
	app.Writer = &out
	require.NoError(t, app.Run(append([]string{"plex-audiobook-cache"}, args...)))
	return out.Bytes()
}

func decodeBooks(t *testing.T, data []byte) []models.Audiobook {
	t.Helper()
	var books []models.Audiobook
	require.NoError(t, json.Unmarshal(data, &books))
	return books
}

func TestRefreshThenQuery(t *testing.T) {
	plex := newPlexServer(t)
	dir := setupEnv(t, plex.URL)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(run(t, "refresh"), &result))
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, float64(2), result["added"])

	books := decodeBooks(t, run(t, "books"))
	assert.Len(t, books, 2)

	recent := decodeBooks(t, run(t, "books", "--recent"))
	require.Len(t, recent, 2)
	assert.Equal(t, "Neuromancer", recent[0].Title)

	found := decodeBooks(t, run(t, "search", "dune"))
	require.Len(t, found, 1)
	assert.Equal(t, 101, found[0].ID)

	stored, err := os.ReadFile(filepath.Join(dir, "plex.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(stored), testToken)
}

func TestOfflineModeHidesUncachedBooks(t *testing.T) {
	plex := newPlexServer(t)
	setupEnv(t, plex.URL)

	run(t, "refresh")
	run(t, "offline", "on")

	assert.Empty(t, decodeBooks(t, run(t, "books")))

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(run(t, "refresh"), &result))
	assert.Equal(t, "skipped_offline", result["status"])

	run(t, "offline", "off")
	assert.Len(t, decodeBooks(t, run(t, "books")), 2)
}

func TestCredentialsPersistAcrossRuns(t *testing.T) {
	plex := newPlexServer(t)
	setupEnv(t, plex.URL)
	run(t, "libraries")

	t.Setenv("PLEX_URL", "")
	t.Setenv("PLEX_TOKEN", "")
	t.Setenv("PLEX_LIBRARY_ID", "")

	var libraries []map[string]interface{}
	require.NoError(t, json.Unmarshal(run(t, "libraries"), &libraries))
	require.Len(t, libraries, 1)
	assert.Equal(t, "Audiobooks", libraries[0]["title"])
}

func TestMissingPlexConfiguration(t *testing.T) {
	setupEnv(t, "")
	t.Setenv("PLEX_TOKEN", "")

	app := newCLIApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"plex-audiobook-cache", "refresh"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLEX_URL")
}

func TestInvalidArguments(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	for _, args := range [][]string{
		{"offline", "sometimes"},
		{"chapters", "abc"},
		{"search"},
	} {
		app := newCLIApp()
		app.Writer = &bytes.Buffer{}
		assert.Error(t, app.Run(append([]string{"plex-audiobook-cache"}, args...)), args)
	}
}
