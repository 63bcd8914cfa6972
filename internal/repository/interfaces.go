package repository

import (
	"context"
	"time"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// BookStore is the local audiobook store. Query methods taking an offline
// flag only see cached books when it is set.
type BookStore interface {
	Count(ctx context.Context) (int64, error)
	GetAll(ctx context.Context, offline bool) ([]models.Audiobook, error)
	GetByID(ctx context.Context, id int, offline bool) (*models.Audiobook, error)
	GetRecentlyAdded(ctx context.Context, limit int, offline bool) ([]models.Audiobook, error)
	GetRecentlyListened(ctx context.Context, limit int, offline bool) ([]models.Audiobook, error)
	GetMostRecent(ctx context.Context, offline bool) (*models.Audiobook, error)
	GetCached(ctx context.Context) ([]models.Audiobook, error)
	Search(ctx context.Context, query string, offline bool) ([]models.Audiobook, error)
	GetRandom(ctx context.Context, offline bool) (*models.Audiobook, error)

	InsertAll(ctx context.Context, books []models.Audiobook) error
	RemoveAll(ctx context.Context, ids []int) error
	Update(ctx context.Context, book models.Audiobook) error
	UpdateTrackData(ctx context.Context, id int, progress, duration int64, leafCount int) error
	UpdateProgress(ctx context.Context, id int, lastViewedAt, progress int64) error
	UpdateCached(ctx context.Context, id int, cached bool) error
	UncacheAll(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// Preferences are the application preferences the repository reads and stamps
type Preferences interface {
	OfflineMode() bool
	LastRefresh() time.Time
	SetLastRefresh(t time.Time) error
}

// PlexPreferences names the library section books are read from
type PlexPreferences interface {
	LibraryID() string
}

// MediaService is the remote source of truth
type MediaService interface {
	FetchAudiobooks(ctx context.Context, libraryID string) ([]models.Audiobook, error)
	FetchTracks(ctx context.Context, bookID int) ([]models.MediaItemTrack, error)
	FetchChapters(ctx context.Context, trackID int) ([]models.Chapter, error)
}
