package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/drallgood/plex-audiobook-cache/internal/database"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`

	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Plex configuration. URL, token and library id are copied into the
	// Plex preferences file on start-up; values already stored there are
	// used when these are empty.
	Plex struct {
		URL               string        `yaml:"url"`
		Token             string        `yaml:"token"`
		LibraryID         string        `yaml:"library_id"`
		ClientIdentifier  string        `yaml:"client_identifier"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Timeout           time.Duration `yaml:"timeout"`
		ChapterCacheTTL   time.Duration `yaml:"chapter_cache_ttl"`
	} `yaml:"plex"`

	// Application settings
	App struct {
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		// OfflineMode overrides the stored preference when set
		OfflineMode *bool `yaml:"offline_mode"`
		IOSlots     int64 `yaml:"io_slots"`
	} `yaml:"app"`

	// File paths
	Paths struct {
		DataDir       string `yaml:"data_dir"`
		PrefsFile     string `yaml:"prefs_file"`
		PlexPrefsFile string `yaml:"plex_prefs_file"`
	} `yaml:"paths"`

	Database database.DatabaseConfig `yaml:"database"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Plex.RequestsPerSecond = 10
	cfg.Plex.Timeout = 30 * time.Second
	cfg.Plex.ChapterCacheTTL = 15 * time.Minute
	cfg.App.RefreshInterval = time.Hour
	cfg.App.IOSlots = 64
	cfg.Paths.DataDir = "./data"
	cfg.Database.Type = database.DatabaseTypeSQLite
	return cfg
}

// Load builds the configuration from defaults, then the YAML file (if
// configFile is not empty), then environment variables, and validates it.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)
	cfg.resolvePaths()
	cfg.Database.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths places unset file paths inside the data directory
func (c *Config) resolvePaths() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "./data"
	}
	if c.Paths.PrefsFile == "" {
		c.Paths.PrefsFile = filepath.Join(c.Paths.DataDir, "preferences.json")
	}
	if c.Paths.PlexPrefsFile == "" {
		c.Paths.PlexPrefsFile = filepath.Join(c.Paths.DataDir, "plex.json")
	}
	if c.Database.Type.IsSQLite() && c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Paths.DataDir, "audiobooks.db")
	}
}

// Validate checks that configured values are usable. Plex credentials are
// checked separately by RequirePlex because they may come from the
// preferences file.
func (c *Config) Validate() error {
	if c.App.RefreshInterval < 0 {
		return &ConfigError{Field: "REFRESH_INTERVAL", Msg: "must not be negative"}
	}
	if c.Plex.RequestsPerSecond < 0 {
		return &ConfigError{Field: "PLEX_REQUESTS_PER_SECOND", Msg: "must not be negative"}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return &ConfigError{Field: "SHUTDOWN_TIMEOUT", Msg: "must be positive"}
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return &ConfigError{Field: "PORT", Msg: fmt.Sprintf("invalid port %q", c.Server.Port)}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return &ConfigError{Field: "LOG_FORMAT", Msg: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// RequirePlex returns a *ConfigError naming every missing Plex setting
func RequirePlex(url, token, libraryID string) error {
	return requireValues(
		setting{"PLEX_URL", url},
		setting{"PLEX_TOKEN", token},
		setting{"PLEX_LIBRARY_ID", libraryID},
	)
}

// RequirePlexServer is RequirePlex for commands that do not need a library
func RequirePlexServer(url, token string) error {
	return requireValues(
		setting{"PLEX_URL", url},
		setting{"PLEX_TOKEN", token},
	)
}

type setting struct {
	name  string
	value string
}

func requireValues(settings ...setting) error {
	var missing []string
	for _, s := range settings {
		if s.value == "" {
			missing = append(missing, s.name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Field: strings.Join(missing, ", "),
			Msg:   "required configuration values are missing",
		}
	}
	return nil
}

// LoggerConfig returns the logger settings
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     logger.ParseLogFormat(c.Logging.Format),
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

// loadFromEnv overrides cfg with any environment variables that are set
func loadFromEnv(cfg *Config) {
	// Plex configuration
	if url := os.Getenv("PLEX_URL"); url != "" {
		cfg.Plex.URL = strings.TrimSuffix(url, "/")
	}
	if token := os.Getenv("PLEX_TOKEN"); token != "" {
		cfg.Plex.Token = token
	}
	if id := os.Getenv("PLEX_LIBRARY_ID"); id != "" {
		cfg.Plex.LibraryID = id
	}
	if id := os.Getenv("PLEX_CLIENT_IDENTIFIER"); id != "" {
		cfg.Plex.ClientIdentifier = id
	}
	cfg.Plex.RequestsPerSecond = getFloat64FromEnv("PLEX_REQUESTS_PER_SECOND", cfg.Plex.RequestsPerSecond)
	cfg.Plex.Timeout = getDurationFromEnv("PLEX_TIMEOUT", cfg.Plex.Timeout)
	cfg.Plex.ChapterCacheTTL = getDurationFromEnv("PLEX_CHAPTER_CACHE_TTL", cfg.Plex.ChapterCacheTTL)

	// Server configuration
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.ShutdownTimeout = getDurationFromEnv("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	// Logging
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	// Application settings
	cfg.App.RefreshInterval = getDurationFromEnv("REFRESH_INTERVAL", cfg.App.RefreshInterval)
	if v, ok := os.LookupEnv("OFFLINE_MODE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.OfflineMode = &b
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse bool from env var OFFLINE_MODE: %v\n", err)
		}
	}
	cfg.App.IOSlots = int64(getIntFromEnv("IO_SLOTS", int(cfg.App.IOSlots)))

	// File paths
	cfg.Paths.DataDir = getEnv("DATA_DIR", cfg.Paths.DataDir)
	cfg.Paths.PrefsFile = getEnv("PREFS_FILE", cfg.Paths.PrefsFile)
	cfg.Paths.PlexPrefsFile = getEnv("PLEX_PREFS_FILE", cfg.Paths.PlexPrefsFile)
}

// Helper functions for environment variable parsing
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getIntFromEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		i, err := strconv.Atoi(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse int from env var %s: %v\n", key, err)
			return fallback
		}
		return i
	}
	return fallback
}

// getDurationFromEnv reads a duration from an environment variable or returns a default value
func getDurationFromEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse duration from env var %s: %v\n", key, err)
			return fallback
		}
		return d
	}
	return fallback
}

// getFloat64FromEnv reads a float64 from an environment variable or returns a default value
func getFloat64FromEnv(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse float64 from env var %s: %v\n", key, err)
			return fallback
		}
		return f
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
