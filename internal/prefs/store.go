package prefs

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

const (
	// CurrentVersion is the current version of the app preferences format
	CurrentVersion = "1.0"
	// DefaultFile is the default path for the app preferences file
	DefaultFile = "./data/preferences.json"
)

type appPrefs struct {
	Version     string `json:"version"`
	OfflineMode bool   `json:"offlineMode"`
	LastRefresh int64  `json:"lastRefresh"`
}

// Store holds application preferences persisted as a JSON file.
// Every setter saves immediately.
type Store struct {
	mu      sync.RWMutex
	path    string
	data    appPrefs
	emitter live.Emitter
	logger  *logger.Logger
}

// Open loads the preferences at path, creating the file with defaults if it
// does not exist. Changing offline mode is reported to emitter.
func Open(path string, emitter live.Emitter, log *logger.Logger) (*Store, error) {
	if path == "" {
		path = DefaultFile
	}
	if emitter == nil {
		emitter = live.NoopEmitter{}
	}

	s := &Store{
		path:    path,
		data:    appPrefs{Version: CurrentVersion},
		emitter: emitter,
		logger:  log.WithComponent("prefs"),
	}

	data, version, err := readVersion(path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("failed to initialize preferences file at %q: %w", path, err)
		}
		return s, nil
	}

	if version != CurrentVersion {
		return nil, fmt.Errorf("unsupported preferences version: %s", version)
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return s, nil
}

// Path returns the file backing the store
func (s *Store) Path() string {
	return s.path
}

// OfflineMode reports whether only cached books should be visible
func (s *Store) OfflineMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.OfflineMode
}

// SetOfflineMode persists the offline flag and wakes observable queries
func (s *Store) SetOfflineMode(offline bool) error {
	s.mu.Lock()
	if s.data.OfflineMode == offline {
		s.mu.Unlock()
		return nil
	}
	s.data.OfflineMode = offline
	err := s.save()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("Offline mode changed", map[string]interface{}{
		"offline": offline,
	})
	s.emitter.Emit(live.TopicPreferences)
	return nil
}

// LastRefresh returns when the library was last reconciled, or the zero time
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.LastRefresh == 0 {
		return time.Time{}
	}
	return time.Unix(s.data.LastRefresh, 0)
}

// SetLastRefresh persists the time of the last successful reconciliation
func (s *Store) SetLastRefresh(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LastRefresh = t.Unix()
	return s.save()
}

// save must be called with mu held
func (s *Store) save() error {
	if err := writeJSON(s.path, s.data, 0644); err != nil {
		s.logger.Error("Failed to save preferences", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return err
	}
	return nil
}
