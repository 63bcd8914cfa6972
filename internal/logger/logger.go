package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

var (
	// globalLogger is the global logger instance
	globalLogger *Logger

	// once ensures the global logger is only initialized once
	once sync.Once

	// defaultConfig is used when Get is called before Setup
	defaultConfig = Config{
		Level:      "info",
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
)

// Logger wraps zerolog.Logger to provide our own interface
type Logger struct {
	zerolog.Logger
	level zerolog.Level
}

// GetLevel returns the level the logger was configured with
func (l *Logger) GetLevel() zerolog.Level {
	if l == nil {
		return zerolog.NoLevel
	}
	if l.level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l.level
}

// LogFormat defines the available log formats
type LogFormat string

const (
	// FormatJSON is the JSON format
	FormatJSON LogFormat = "json"
	// FormatConsole is the console format
	FormatConsole LogFormat = "console"
)

// String returns the string representation of the log format
func (f LogFormat) String() string {
	return string(f)
}

// ParseLogFormat parses a string into a LogFormat, defaulting to JSON
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(format) {
	case "console":
		return FormatConsole
	default:
		return FormatJSON
	}
}

// Config holds the configuration for the logger
type Config struct {
	// Level is the log level (debug, info, warn, error, fatal, panic)
	Level string
	// Format is the log format (json, console)
	Format LogFormat
	// Output is the output writer (default: os.Stdout)
	Output io.Writer
	// TimeFormat is the time format (default: time.RFC3339)
	TimeFormat string
}

// Get returns the global logger instance
func Get() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			setupLogger(defaultConfig)
		}
	})
	return globalLogger
}

// ResetForTesting resets the global logger and sync.Once variable.
// This should only be used in tests.
func ResetForTesting() {
	globalLogger = nil
	once = sync.Once{}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// Setup initializes the global logger with the given configuration.
// Subsequent calls are ignored.
func Setup(cfg Config) {
	once.Do(func() {
		setupLogger(cfg)
	})
}

// ForceSetup re-initializes the global logger, bypassing the once guard
func ForceSetup(cfg Config) {
	setupLogger(cfg)
}

// New builds a standalone logger without touching the global instance
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	switch cfg.Format {
	case FormatConsole:
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		})
	default:
		zl = zerolog.New(output)
	}

	return &Logger{
		Logger: zl.Level(level).With().Timestamp().Logger(),
		level:  level,
	}
}

func setupLogger(cfg Config) {
	globalLogger = New(cfg)

	globalLogger.Debug("Logger initialized", map[string]interface{}{
		"format": string(cfg.Format),
		"level":  globalLogger.level.String(),
	})
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), level: zerolog.Disabled}
}

// loggerKey is the key used to store the logger in the context
type loggerKey struct{}

// NewContext returns a copy of ctx carrying the logger.
// If logger is nil, the original context is returned unchanged.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return l
		}
	}
	return Get()
}

// WithFields adds the given fields to the logger and returns a new logger instance
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}
	if len(fields) == 0 {
		return l
	}

	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}

	return &Logger{
		Logger: ctx.Logger(),
		level:  l.level,
	}
}

// WithComponent returns a child logger tagged with the component name
func (l *Logger) WithComponent(name string) *Logger {
	return l.WithFields(map[string]interface{}{"component": name})
}

func (l *Logger) event(e *zerolog.Event, msg string, fields []map[string]interface{}) {
	if len(fields) > 0 && fields[0] != nil {
		e = e.Fields(fields[0])
	}
	e.Msg(msg)
}

// Info logs a message at Info level with optional fields
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Info(), msg, fields)
}

// Warn logs a message at Warn level with optional fields
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Warn(), msg, fields)
}

// Debug logs a message at Debug level with optional fields
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Debug(), msg, fields)
}

// Error logs a message at Error level with optional fields
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Error(), msg, fields)
}

// Errorf logs a formatted message at Error level
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Error().Msgf(format, args...)
}

// HTTPMiddleware logs every request handled by next
func HTTPMiddleware(log *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rww := &responseWriterWrapper{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rww, r.WithContext(NewContext(r.Context(), log)))

			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.RemoteAddr
			}

			log.Info("HTTP request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"query":    r.URL.RawQuery,
				"ip":       ip,
				"status":   rww.status,
				"duration": time.Since(start).String(),
			})
		})
	}
}

// responseWriterWrapper captures the status code written by a handler
type responseWriterWrapper struct {
	http.ResponseWriter
	status int
}

func (r *responseWriterWrapper) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets streaming handlers work through the wrapper
func (r *responseWriterWrapper) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (r *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
