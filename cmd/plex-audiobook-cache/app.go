package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/plex-audiobook-cache/internal/api/plex"
	"github.com/drallgood/plex-audiobook-cache/internal/config"
	"github.com/drallgood/plex-audiobook-cache/internal/crypto"
	"github.com/drallgood/plex-audiobook-cache/internal/database"
	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/prefs"
	"github.com/drallgood/plex-audiobook-cache/internal/refresh"
	"github.com/drallgood/plex-audiobook-cache/internal/repository"
)

// app holds the wired components shared by all commands
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.Database
	notifier  *live.Notifier
	prefs     *prefs.Store
	plexPrefs *prefs.PlexStore
	plex      *plex.Client
	repo      *repository.BookRepository
	scheduler *refresh.Scheduler
}

// newApp loads the configuration and wires every component. The caller
// must Close the returned app.
func newApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logger.ForceSetup(cfg.LoggerConfig())
	log := logger.Get()

	log.Info("Application configuration", map[string]interface{}{
		"version":          version,
		"log_level":        cfg.Logging.Level,
		"data_dir":         cfg.Paths.DataDir,
		"database_type":    string(cfg.Database.Type),
		"refresh_interval": cfg.App.RefreshInterval.String(),
	})

	a := &app{
		cfg:      cfg,
		log:      log,
		notifier: live.NewNotifier(log),
	}

	a.db, err = database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := a.openPreferences(); err != nil {
		a.Close()
		return nil, err
	}

	a.plex = plex.NewClient(plex.Config{
		BaseURL:           a.plexPrefs.ServerURL(),
		Token:             a.plexPrefs.Token(),
		ClientIdentifier:  cfg.Plex.ClientIdentifier,
		RequestsPerSecond: cfg.Plex.RequestsPerSecond,
		Timeout:           cfg.Plex.Timeout,
		ChapterCacheTTL:   cfg.Plex.ChapterCacheTTL,
	}, log)

	a.repo = repository.NewBookRepository(
		database.NewBookDAO(a.db, a.notifier, log),
		a.prefs,
		a.plexPrefs,
		a.plex,
		a.notifier,
		log,
		repository.WithDispatcher(repository.NewDispatcher(cfg.App.IOSlots)),
	)
	a.scheduler = refresh.NewScheduler(a.repo, a.prefs, cfg.App.RefreshInterval, log)

	return a, nil
}

// openPreferences opens both preference files and stores configured
// values in them
func (a *app) openPreferences() error {
	var err error
	a.prefs, err = prefs.Open(a.cfg.Paths.PrefsFile, a.notifier, a.log)
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}
	if a.cfg.App.OfflineMode != nil {
		if err := a.prefs.SetOfflineMode(*a.cfg.App.OfflineMode); err != nil {
			return fmt.Errorf("failed to apply offline mode: %w", err)
		}
	}

	em, err := crypto.NewEncryptionManager(a.cfg.Paths.DataDir, a.log)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	a.plexPrefs, err = prefs.OpenPlex(a.cfg.Paths.PlexPrefsFile, em, a.log)
	if err != nil {
		return fmt.Errorf("failed to open Plex preferences: %w", err)
	}

	plexCfg := a.cfg.Plex
	if plexCfg.URL != "" || plexCfg.Token != "" {
		serverURL, token := plexCfg.URL, plexCfg.Token
		if serverURL == "" {
			serverURL = a.plexPrefs.ServerURL()
		}
		if token == "" {
			token = a.plexPrefs.Token()
		}
		if serverURL != a.plexPrefs.ServerURL() || token != a.plexPrefs.Token() {
			if err := a.plexPrefs.SetServer(serverURL, token); err != nil {
				return fmt.Errorf("failed to store Plex server: %w", err)
			}
		}
	}
	if plexCfg.LibraryID != "" && plexCfg.LibraryID != a.plexPrefs.LibraryID() {
		if err := a.plexPrefs.SetLibraryID(plexCfg.LibraryID); err != nil {
			return fmt.Errorf("failed to store Plex library: %w", err)
		}
	}
	return nil
}

// requirePlex fails unless server, token and library are all known
func (a *app) requirePlex() error {
	return config.RequirePlex(a.plexPrefs.ServerURL(), a.plexPrefs.Token(), a.plexPrefs.LibraryID())
}

func (a *app) plexServerConfigured() error {
	return config.RequirePlexServer(a.plexPrefs.ServerURL(), a.plexPrefs.Token())
}

// Close releases the database
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// withApp wires the app around a command action
func withApp(fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}
