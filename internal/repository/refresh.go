package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// RefreshStatus describes how a refresh ended
type RefreshStatus string

const (
	// RefreshCompleted means the store now mirrors the server listing
	RefreshCompleted RefreshStatus = "completed"
	// RefreshSkippedOffline means nothing was done because offline mode is on
	RefreshSkippedOffline RefreshStatus = "skipped_offline"
)

// RefreshResult summarizes a refresh
type RefreshResult struct {
	Status      RefreshStatus      `json:"status"`
	Books       []models.Audiobook `json:"-"`
	Added       int                `json:"added"`
	Merged      int                `json:"merged"`
	Removed     int                `json:"removed"`
	RefreshedAt time.Time          `json:"refreshed_at,omitempty"`
}

// RefreshError reports that the server listing could not be fetched. The
// local store is left untouched when it is returned.
type RefreshError struct {
	LibraryID string
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh aborted: failed to fetch audiobooks for library %q: %v", e.LibraryID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// IsRefreshError reports whether err carries a *RefreshError
func IsRefreshError(err error) bool {
	var refreshErr *RefreshError
	return errors.As(err, &refreshErr)
}

// RefreshData reconciles the store with the server listing: server books are
// merged with their local counterparts, local books missing from the server
// are deleted and the merged list is upserted.
//
// In offline mode nothing is read or written. A failed server fetch returns a
// *RefreshError; store failures are returned as ordinary errors.
func (r *BookRepository) RefreshData(ctx context.Context) (*RefreshResult, error) {
	if r.offline() {
		r.logger.Debug("Offline mode enabled, skipping refresh")
		return &RefreshResult{Status: RefreshSkippedOffline}, nil
	}

	libraryID := r.plexPrefs.LibraryID()
	start := time.Now()

	network, err := dispatch(ctx, r.io, func(ctx context.Context) ([]models.Audiobook, error) {
		books, err := r.media.FetchAudiobooks(ctx, libraryID)
		if err != nil {
			return nil, &RefreshError{LibraryID: libraryID, Err: err}
		}
		return books, nil
	})
	if err != nil {
		r.logger.Warn("Failed to fetch audiobooks, keeping local library", map[string]interface{}{
			"library_id": libraryID,
			"error":      err.Error(),
		})
		return nil, err
	}

	local, err := dispatch(ctx, r.io, func(ctx context.Context) ([]models.Audiobook, error) {
		return r.store.GetAll(ctx, false)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load local audiobooks: %w", err)
	}

	result := reconcile(network, local)

	if len(result.removedIDs) > 0 {
		err := r.io.Do(ctx, func(ctx context.Context) error {
			return r.store.RemoveAll(ctx, result.removedIDs)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to remove stale audiobooks: %w", err)
		}
	}

	err = r.io.Do(ctx, func(ctx context.Context) error {
		return r.store.InsertAll(ctx, result.books)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save audiobooks: %w", err)
	}

	now := time.Now()
	if err := r.prefs.SetLastRefresh(now); err != nil {
		r.logger.Error("Failed to record refresh time", map[string]interface{}{
			"error": err.Error(),
		})
	}

	r.logger.Info("Refresh completed", map[string]interface{}{
		"library_id": libraryID,
		"books":      len(result.books),
		"added":      result.added,
		"merged":     result.merged,
		"removed":    len(result.removedIDs),
		"duration":   time.Since(start).String(),
	})

	return &RefreshResult{
		Status:      RefreshCompleted,
		Books:       result.books,
		Added:       result.added,
		Merged:      result.merged,
		Removed:     len(result.removedIDs),
		RefreshedAt: now,
	}, nil
}

type reconciliation struct {
	books      []models.Audiobook
	removedIDs []int
	added      int
	merged     int
}

// reconcile merges the server listing into the local one. A book listed
// twice by the server is kept once, at its first position.
func reconcile(network, local []models.Audiobook) reconciliation {
	localByID := make(map[int]models.Audiobook, len(local))
	for _, book := range local {
		localByID[book.ID] = book
	}

	var res reconciliation
	seen := make(map[int]struct{}, len(network))
	res.books = make([]models.Audiobook, 0, len(network))
	for _, book := range network {
		if _, dup := seen[book.ID]; dup {
			continue
		}
		seen[book.ID] = struct{}{}

		if existing, ok := localByID[book.ID]; ok {
			res.books = append(res.books, models.MergeAudiobooks(book, existing))
			res.merged++
		} else {
			res.books = append(res.books, book)
			res.added++
		}
	}

	for _, book := range local {
		if _, ok := seen[book.ID]; !ok {
			res.removedIDs = append(res.removedIDs, book.ID)
		}
	}
	return res
}
