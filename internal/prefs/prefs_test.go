package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drallgood/plex-audiobook-cache/internal/crypto"
	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

type recordingEmitter struct {
	topics []string
}

func (e *recordingEmitter) Emit(topic string) {
	e.topics = append(e.topics, topic)
}

func newCrypto(t *testing.T) *crypto.EncryptionManager {
	t.Helper()
	em, err := crypto.NewEncryptionManagerWithKey(crypto.DeriveKeyFromPassword("test"), logger.Nop())
	require.NoError(t, err)
	return em
}

func TestStore_NewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	s, err := Open(path, nil, logger.Nop())
	require.NoError(t, err)

	assert.False(t, s.OfflineMode())
	assert.True(t, s.LastRefresh().IsZero())
	assert.FileExists(t, path)
}

func TestStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prefs.json")
	emitter := &recordingEmitter{}

	s, err := Open(path, emitter, logger.Nop())
	require.NoError(t, err)

	refreshed := time.Unix(1751108977, 0)
	require.NoError(t, s.SetOfflineMode(true))
	require.NoError(t, s.SetLastRefresh(refreshed))

	reloaded, err := Open(path, nil, logger.Nop())
	require.NoError(t, err)
	assert.True(t, reloaded.OfflineMode())
	assert.True(t, refreshed.Equal(reloaded.LastRefresh()))
}

func TestStore_OfflineModeEmitsOnlyOnChange(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"), emitter, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.SetOfflineMode(false))
	assert.Empty(t, emitter.topics)

	require.NoError(t, s.SetOfflineMode(true))
	require.NoError(t, s.SetOfflineMode(true))
	assert.Equal(t, []string{live.TopicPreferences}, emitter.topics)

	require.NoError(t, s.SetLastRefresh(time.Now()))
	assert.Len(t, emitter.topics, 1)
}

func TestStore_InvalidFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "invalid json"},
		{"unknown version", `{"version": "9.9"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "prefs.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Open(path, nil, logger.Nop())
			assert.Error(t, err)
		})
	}
}

func TestPlexStore_TokenIsEncryptedOnDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plex.json")
	em := newCrypto(t)

	s, err := OpenPlex(path, em, logger.Nop())
	require.NoError(t, err)
	assert.Empty(t, s.Token())

	require.NoError(t, s.SetServer("http://plex:32400", "secret-token"))
	require.NoError(t, s.SetLibraryID("7"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")

	var stored plexPrefs
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, PlexCurrentVersion, stored.Version)
	assert.Equal(t, "7", stored.LibraryID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := OpenPlex(path, em, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "http://plex:32400", reloaded.ServerURL())
	assert.Equal(t, "secret-token", reloaded.Token())
	assert.Equal(t, "7", reloaded.LibraryID())
}

func TestPlexStore_MigratesV1(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plex.json")
	v1 := `{
		"version": "1.0",
		"serverUrl": "http://old:32400",
		"token": "plain",
		"libraryId": "3"
	}`
	require.NoError(t, os.WriteFile(path, []byte(v1), 0644))

	em := newCrypto(t)
	s, err := OpenPlex(path, em, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "plain", s.Token())
	assert.Equal(t, "3", s.LibraryID())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"plain"`)
	assert.Contains(t, string(raw), `"version": "2.0"`)
}

func TestPlexStore_WrongKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plex.json")
	s, err := OpenPlex(path, newCrypto(t), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SetServer("http://plex", "token"))

	other, err := crypto.NewEncryptionManagerWithKey(crypto.DeriveKeyFromPassword("other"), logger.Nop())
	require.NoError(t, err)
	_, err = OpenPlex(path, other, logger.Nop())
	assert.Error(t, err)
}
