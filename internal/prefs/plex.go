package prefs

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/drallgood/plex-audiobook-cache/internal/crypto"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

const (
	// PlexCurrentVersion is the current version of the Plex preferences format
	PlexCurrentVersion = "2.0"
	// DefaultPlexFile is the default path for the Plex preferences file
	DefaultPlexFile = "./data/plex.json"
)

// plexPrefs is the on-disk format. Token holds ciphertext.
type plexPrefs struct {
	Version   string `json:"version"`
	ServerURL string `json:"serverUrl,omitempty"`
	Token     string `json:"token,omitempty"`
	LibraryID string `json:"libraryId,omitempty"`
}

// v1PlexPrefs stored the token in plain text
type v1PlexPrefs struct {
	Version   string `json:"version"`
	ServerURL string `json:"serverUrl"`
	Token     string `json:"token"`
	LibraryID string `json:"libraryId"`
}

// PlexStore holds the Plex server connection preferences. The token is kept
// decrypted in memory and encrypted on disk.
type PlexStore struct {
	mu        sync.RWMutex
	path      string
	serverURL string
	token     string
	libraryID string
	crypto    *crypto.EncryptionManager
	logger    *logger.Logger
}

// OpenPlex loads the Plex preferences at path, creating the file if needed.
// Files written by the plain-text v1 format are rewritten encrypted.
func OpenPlex(path string, em *crypto.EncryptionManager, log *logger.Logger) (*PlexStore, error) {
	if path == "" {
		path = DefaultPlexFile
	}

	s := &PlexStore{
		path:   path,
		crypto: em,
		logger: log.WithComponent("plex_prefs"),
	}

	data, version, err := readVersion(path)
	if err != nil {
		return nil, err
	}

	switch {
	case data == nil:
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("failed to initialize Plex preferences file at %q: %w", path, err)
		}
	case version == "" || version == "1.0":
		var v1 v1PlexPrefs
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("failed to parse v1 Plex preferences: %w", err)
		}
		s.serverURL, s.token, s.libraryID = v1.ServerURL, v1.Token, v1.LibraryID
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("failed to migrate Plex preferences: %w", err)
		}
		s.logger.Info("Migrated Plex preferences to encrypted format", map[string]interface{}{
			"path": path,
		})
	case version == PlexCurrentVersion:
		var stored plexPrefs
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("failed to parse Plex preferences: %w", err)
		}
		token, err := em.Decrypt(stored.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt Plex token: %w", err)
		}
		s.serverURL, s.token, s.libraryID = stored.ServerURL, token, stored.LibraryID
	default:
		return nil, fmt.Errorf("unsupported Plex preferences version: %s", version)
	}

	return s, nil
}

// LibraryID returns the id of the library section audiobooks are read from
func (s *PlexStore) LibraryID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.libraryID
}

// SetLibraryID persists the library section id
func (s *PlexStore) SetLibraryID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraryID = id
	return s.save()
}

// ServerURL returns the base URL of the Plex server
func (s *PlexStore) ServerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverURL
}

// Token returns the decrypted Plex token
func (s *PlexStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetServer persists the server URL and token together
func (s *PlexStore) SetServer(serverURL, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverURL = serverURL
	s.token = token
	return s.save()
}

// save must be called with mu held
func (s *PlexStore) save() error {
	sealed, err := s.crypto.Encrypt(s.token)
	if err != nil {
		return fmt.Errorf("failed to encrypt Plex token: %w", err)
	}

	stored := plexPrefs{
		Version:   PlexCurrentVersion,
		ServerURL: s.serverURL,
		Token:     sealed,
		LibraryID: s.libraryID,
	}
	if err := writeJSON(s.path, stored, 0600); err != nil {
		s.logger.Error("Failed to save Plex preferences", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return err
	}
	return nil
}
