package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
	"github.com/drallgood/plex-audiobook-cache/internal/repository"
)

// Books is the part of the book repository served over HTTP
type Books interface {
	GetAllBooks() *live.Query[[]models.Audiobook]
	GetAllBooksAsync(ctx context.Context) ([]models.Audiobook, error)
	GetAudiobookAsync(ctx context.Context, id int) (*models.Audiobook, error)
	GetRecentlyAddedAsync(ctx context.Context) ([]models.Audiobook, error)
	GetRecentlyListenedAsync(ctx context.Context) ([]models.Audiobook, error)
	GetMostRecentlyPlayedAsync(ctx context.Context) (*models.Audiobook, error)
	GetCachedAudiobooksAsync(ctx context.Context) ([]models.Audiobook, error)
	SearchAsync(ctx context.Context, query string) ([]models.Audiobook, error)
	GetRandomBookAsync(ctx context.Context) (*models.Audiobook, error)
	GetBookCountAsync(ctx context.Context) (int64, error)
	UpdateProgress(ctx context.Context, id int, lastViewedAt, progress int64) error
	UpdateCached(ctx context.Context, id int, cached bool) error
	UncacheAll(ctx context.Context) error
	LoadBookDetails(ctx context.Context, id int) (*repository.BookDetails, error)
}

// Refresher runs a library refresh on demand
type Refresher interface {
	RunOnce(ctx context.Context) (*repository.RefreshResult, error)
}

// OfflineSwitch reads and toggles offline mode
type OfflineSwitch interface {
	OfflineMode() bool
	SetOfflineMode(offline bool) error
}

// Options configures the HTTP server
type Options struct {
	Addr           string
	AllowedOrigins []string
	// HeartbeatInterval is the keep-alive period of the book stream
	HeartbeatInterval time.Duration
}

// Server represents the HTTP server
type Server struct {
	server    *http.Server
	router    *chi.Mux
	books     Books
	refresher Refresher
	offline   OfflineSwitch
	heartbeat time.Duration
	logger    *logger.Logger
}

// New creates a new HTTP server with all routes configured
func New(opts Options, books Books, refresher Refresher, offline OfflineSwitch, log *logger.Logger) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router:    chi.NewRouter(),
		books:     books,
		refresher: refresher,
		offline:   offline,
		heartbeat: opts.HeartbeatInterval,
		logger:    log.WithComponent("server"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(logger.HTTPMiddleware(s.logger))
	s.routes()

	// WriteTimeout stays unset so the book stream is not cut off; the stream
	// manages its own write deadline.
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Shutdown cancels every request context, which ends open book streams.
	baseCtx, cancel := context.WithCancel(context.Background())
	s.server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	s.server.RegisterOnShutdown(cancel)
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthCheck)
	s.router.Post("/refresh", s.handleRefresh)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Put("/offline", s.handleSetOffline)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.Get("/recent", s.handleRecentlyAdded)
			r.Get("/listened", s.handleRecentlyListened)
			r.Get("/current", s.handleMostRecentlyPlayed)
			r.Get("/cached", s.handleCachedBooks)
			r.Get("/random", s.handleRandomBook)
			r.Get("/stream", s.handleBookStream)
			r.Post("/uncache", s.handleUncacheAll)

			r.Get("/{id}", s.handleGetBook)
			r.Put("/{id}/progress", s.handleUpdateProgress)
			r.Put("/{id}/cached", s.handleUpdateCached)
			r.Post("/{id}/chapters", s.handleLoadChapters)
		})
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on l and blocks until the server is shut down
func (s *Server) Serve(l net.Listener) error {
	if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
