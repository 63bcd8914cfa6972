package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
	"github.com/drallgood/plex-audiobook-cache/internal/server"
)

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func serve(c *cli.Context, a *app) error {
	if err := a.requirePlex(); err != nil {
		if !a.prefs.OfflineMode() {
			return err
		}
		a.log.Warn("Plex is not configured, serving the offline library only", map[string]interface{}{
			"error": err.Error(),
		})
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Addr:           ":" + a.cfg.Server.Port,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, a.repo, a.scheduler, a.prefs, a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	refreshDone := a.scheduler.Start(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutdown signal received")
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("HTTP server shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	select {
	case <-refreshDone:
	case <-shutdownCtx.Done():
		a.log.Warn("Refresh did not stop before the shutdown timeout")
	}

	a.log.Info("Shutdown complete")
	return serveErr
}

func refreshOnce(c *cli.Context, a *app) error {
	if err := a.requirePlex(); err != nil {
		return err
	}

	result, err := a.scheduler.RunOnce(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, result)
}

func listBooks(c *cli.Context, a *app) error {
	var (
		books []models.Audiobook
		err   error
	)
	switch {
	case c.Bool("recent"):
		books, err = a.repo.GetRecentlyAddedAsync(c.Context)
	case c.Bool("listened"):
		books, err = a.repo.GetRecentlyListenedAsync(c.Context)
	case c.Bool("cached"):
		books, err = a.repo.GetCachedAudiobooksAsync(c.Context)
	default:
		books, err = a.repo.GetAllBooksAsync(c.Context)
	}
	if err != nil {
		return err
	}
	return printJSON(c, books)
}

func searchBooks(c *cli.Context, a *app) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("usage: search <query>")
	}

	books, err := a.repo.SearchAsync(c.Context, query)
	if err != nil {
		return err
	}
	return printJSON(c, books)
}

func loadChapters(c *cli.Context, a *app) error {
	id, err := strconv.Atoi(c.Args().First())
	if err != nil || id <= 0 {
		return fmt.Errorf("usage: chapters <book-id>: invalid book id %q", c.Args().First())
	}
	if err := a.requirePlex(); err != nil {
		return err
	}

	details, err := a.repo.LoadBookDetails(c.Context, id)
	if err != nil {
		return err
	}
	if details == nil {
		return fmt.Errorf("audiobook %d not found", id)
	}
	return printJSON(c, details)
}

func listLibraries(c *cli.Context, a *app) error {
	if err := a.plexServerConfigured(); err != nil {
		return err
	}

	libraries, err := a.plex.GetLibraries(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, libraries)
}

func setOffline(c *cli.Context, a *app) error {
	var offline bool
	switch arg := strings.ToLower(c.Args().First()); arg {
	case "on":
		offline = true
	case "off":
		offline = false
	default:
		v, err := strconv.ParseBool(arg)
		if err != nil {
			return fmt.Errorf("usage: offline <on|off>: invalid value %q", arg)
		}
		offline = v
	}

	if err := a.prefs.SetOfflineMode(offline); err != nil {
		return err
	}
	return printJSON(c, map[string]bool{"offline": offline})
}

func uncacheAll(c *cli.Context, a *app) error {
	if err := a.repo.UncacheAll(c.Context); err != nil {
		return err
	}
	a.log.Info("Marked all books as not downloaded")
	return nil
}

func clearBooks(c *cli.Context, a *app) error {
	if err := a.repo.Clear(c.Context); err != nil {
		return err
	}
	a.log.Info("Deleted all stored books")
	return nil
}
