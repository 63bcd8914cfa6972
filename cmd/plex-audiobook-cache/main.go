// plex-audiobook-cache keeps a local, offline-capable copy of a Plex
// audiobook library and serves it over HTTP.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// Environment Variables:
//   PLEX_URL                  URL of the Plex Media Server
//   PLEX_TOKEN                Plex authentication token (stored encrypted after first use)
//   PLEX_LIBRARY_ID           Library section holding the audiobooks
//   REFRESH_INTERVAL          (optional) Go duration between refreshes, 0 disables (default: 1h)
//   OFFLINE_MODE              (optional) Serve only downloaded books and never contact Plex
//   DATA_DIR                  (optional) Directory for the database, preferences and key (default: ./data)
//   LOG_LEVEL                 (optional) Log level (debug, info, warn, error)
//   DATABASE_TYPE             (optional) sqlite, sqlite-pure, postgresql, mysql or mariadb
//
// Endpoints:
//   GET  /healthz             # Health check
//   POST /refresh             # Refresh the library from Plex
//   GET  /api/books/stream    # Server-sent events with the book list

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	logger.Setup(logger.Config{
		Level:      "info",
		Format:     logger.FormatJSON,
		TimeFormat: time.RFC3339,
	})
}

func newCLIApp() *cli.App {
	return &cli.App{
		Name:    "plex-audiobook-cache",
		Usage:   "Cache a Plex audiobook library locally and serve it offline",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the periodic refresh",
				Action: withApp(serve),
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the local library from Plex once",
				Action: withApp(refreshOnce),
			},
			{
				Name:  "books",
				Usage: "List stored books",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recent", Usage: "Show the most recently added books"},
					&cli.BoolFlag{Name: "listened", Usage: "Show the most recently played books"},
					&cli.BoolFlag{Name: "cached", Usage: "Show downloaded books only"},
				},
				Action: withApp(listBooks),
			},
			{
				Name:      "search",
				Usage:     "Search stored books by title or author",
				ArgsUsage: "<query>",
				Action:    withApp(searchBooks),
			},
			{
				Name:      "chapters",
				Usage:     "Load tracks and chapter markers of a book from Plex",
				ArgsUsage: "<book-id>",
				Action:    withApp(loadChapters),
			},
			{
				Name:   "libraries",
				Usage:  "List the library sections of the Plex server",
				Action: withApp(listLibraries),
			},
			{
				Name:      "offline",
				Usage:     "Turn offline mode on or off",
				ArgsUsage: "<on|off>",
				Action:    withApp(setOffline),
			},
			{
				Name:   "uncache",
				Usage:  "Mark every book as not downloaded",
				Action: withApp(uncacheAll),
			},
			{
				Name:   "clear",
				Usage:  "Delete every stored book",
				Action: withApp(clearBooks),
			},
		},
	}
}

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		logger.Get().Error("Command failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
