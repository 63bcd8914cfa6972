package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// TrackError reports that the tracks of a book could not be fetched from the
// server
type TrackError struct {
	BookID int
	Err    error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("failed to load tracks for audiobook %d: %v", e.BookID, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

// IsTrackError reports whether err carries a *TrackError
func IsTrackError(err error) bool {
	var trackErr *TrackError
	return errors.As(err, &trackErr)
}

// LoadTracks fetches the tracks of a book from the server
func (r *BookRepository) LoadTracks(ctx context.Context, bookID int) ([]models.MediaItemTrack, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) ([]models.MediaItemTrack, error) {
		return r.media.FetchTracks(ctx, bookID)
	})
}

// LoadChapterData fetches the chapter markers of every track, one track at a
// time, and stores them on the book. A track whose fetch fails counts as
// having no chapters. When no track has chapters the book gets one chapter
// per track instead. It reports whether real chapter markers were found.
func (r *BookRepository) LoadChapterData(ctx context.Context, book models.Audiobook, tracks []models.MediaItemTrack) (bool, error) {
	var chapters []models.Chapter
	for _, track := range tracks {
		found, err := dispatch(ctx, r.io, func(ctx context.Context) ([]models.Chapter, error) {
			return r.media.FetchChapters(ctx, track.ID)
		})
		if err != nil {
			r.logger.Warn("Failed to fetch chapters for track", map[string]interface{}{
				"book_id":  book.ID,
				"track_id": track.ID,
				"error":    err.Error(),
			})
			continue
		}
		chapters = append(chapters, found...)
	}

	loaded := len(chapters) > 0
	if loaded {
		book.Chapters = chapters
	} else {
		book.Chapters = models.ChaptersFromTracks(tracks)
	}

	if err := r.Update(ctx, book); err != nil {
		return false, fmt.Errorf("failed to save chapters for audiobook %d: %w", book.ID, err)
	}

	r.logger.Debug("Loaded chapter data", map[string]interface{}{
		"book_id":  book.ID,
		"tracks":   len(tracks),
		"chapters": len(book.Chapters),
		"markers":  loaded,
	})
	return loaded, nil
}

// BookDetails is a book with its tracks, as returned by LoadBookDetails
type BookDetails struct {
	Book           models.Audiobook        `json:"book"`
	Tracks         []models.MediaItemTrack `json:"tracks"`
	ChapterMarkers bool                    `json:"chapter_markers"`
}

// LoadBookDetails fetches a stored book's tracks, stores the progress and
// duration they add up to and loads its chapters. It returns nil when the
// book is not stored. A failed track fetch returns a *TrackError; store
// failures are returned as ordinary errors.
func (r *BookRepository) LoadBookDetails(ctx context.Context, id int) (*BookDetails, error) {
	book, err := r.GetAudiobookAsync(ctx, id)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, nil
	}

	tracks, err := r.LoadTracks(ctx, id)
	if err != nil {
		return nil, &TrackError{BookID: id, Err: err}
	}

	book.Progress = models.TracksProgress(tracks)
	book.Duration = models.TracksDuration(tracks)
	book.LeafCount = len(tracks)
	if err := r.UpdateTrackData(ctx, id, book.Progress, book.Duration, book.LeafCount); err != nil {
		return nil, err
	}

	markers, err := r.LoadChapterData(ctx, *book, tracks)
	if err != nil {
		return nil, err
	}

	updated, err := r.GetAudiobookAsync(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		book = updated
	}
	return &BookDetails{Book: *book, Tracks: tracks, ChapterMarkers: markers}, nil
}
