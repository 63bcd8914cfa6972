// Package repository serves audiobooks from the local store and keeps the
// store in step with the Plex server.
package repository

import (
	"context"

	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// Limit caps the recently added and recently listened lists
const Limit = 25

// BookRepository is the query and reconciliation facade over the local
// store and the remote media service.
type BookRepository struct {
	store     BookStore
	prefs     Preferences
	plexPrefs PlexPreferences
	media     MediaService
	notifier  *live.Notifier
	io        *Dispatcher
	logger    *logger.Logger
}

// Option configures a BookRepository
type Option func(*BookRepository)

// WithDispatcher replaces the default I/O dispatcher
func WithDispatcher(d *Dispatcher) Option {
	return func(r *BookRepository) {
		r.io = d
	}
}

// NewBookRepository wires the repository to its collaborators. notifier
// drives the observable queries and should be the one the store and
// preferences emit to.
func NewBookRepository(
	store BookStore,
	prefs Preferences,
	plexPrefs PlexPreferences,
	media MediaService,
	notifier *live.Notifier,
	log *logger.Logger,
	opts ...Option,
) *BookRepository {
	r := &BookRepository{
		store:     store,
		prefs:     prefs,
		plexPrefs: plexPrefs,
		media:     media,
		notifier:  notifier,
		io:        NewDispatcher(DefaultIOSlots),
		logger:    log.WithComponent("repository"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *BookRepository) offline() bool {
	return r.prefs.OfflineMode()
}

func observe[T any](r *BookRepository, fetch live.FetchFunc[T]) *live.Query[T] {
	return live.NewQuery(r.notifier, fetch, r.logger, live.TopicAudiobooks, live.TopicPreferences)
}

// GetAllBooks observes every visible book
func (r *BookRepository) GetAllBooks() *live.Query[[]models.Audiobook] {
	return observe(r, r.GetAllBooksAsync)
}

// GetAllBooksAsync returns every visible book
func (r *BookRepository) GetAllBooksAsync(ctx context.Context) ([]models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) ([]models.Audiobook, error) {
		return r.store.GetAll(ctx, r.offline())
	})
}

// GetAudiobook observes a single book, which is nil while absent
func (r *BookRepository) GetAudiobook(id int) *live.Query[*models.Audiobook] {
	return observe(r, func(ctx context.Context) (*models.Audiobook, error) {
		return r.GetAudiobookAsync(ctx, id)
	})
}

// GetAudiobookAsync returns the book with id, or nil
func (r *BookRepository) GetAudiobookAsync(ctx context.Context, id int) (*models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) (*models.Audiobook, error) {
		return r.store.GetByID(ctx, id, r.offline())
	})
}

// GetRecentlyAdded observes the Limit most recently added books
func (r *BookRepository) GetRecentlyAdded() *live.Query[[]models.Audiobook] {
	return observe(r, r.GetRecentlyAddedAsync)
}

// GetRecentlyAddedAsync returns the Limit most recently added books
func (r *BookRepository) GetRecentlyAddedAsync(ctx context.Context) ([]models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) ([]models.Audiobook, error) {
		return r.store.GetRecentlyAdded(ctx, Limit, r.offline())
	})
}

// GetRecentlyListened observes the Limit most recently played books
func (r *BookRepository) GetRecentlyListened() *live.Query[[]models.Audiobook] {
	return observe(r, r.GetRecentlyListenedAsync)
}

// GetRecentlyListenedAsync returns the Limit most recently played books
func (r *BookRepository) GetRecentlyListenedAsync(ctx context.Context) ([]models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) ([]models.Audiobook, error) {
		return r.store.GetRecentlyListened(ctx, Limit, r.offline())
	})
}

// GetMostRecentlyPlayed observes the book played last
func (r *BookRepository) GetMostRecentlyPlayed() *live.Query[*models.Audiobook] {
	return observe(r, r.GetMostRecentlyPlayedAsync)
}

// GetMostRecentlyPlayedAsync returns the book played last, or nil
func (r *BookRepository) GetMostRecentlyPlayedAsync(ctx context.Context) (*models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) (*models.Audiobook, error) {
		return r.store.GetMostRecent(ctx, r.offline())
	})
}

// GetCachedAudiobooks observes the downloaded books
func (r *BookRepository) GetCachedAudiobooks() *live.Query[[]models.Audiobook] {
	return observe(r, r.GetCachedAudiobooksAsync)
}

// GetCachedAudiobooksAsync returns the downloaded books
func (r *BookRepository) GetCachedAudiobooksAsync(ctx context.Context) ([]models.Audiobook, error) {
	return dispatch(ctx, r.io, r.store.GetCached)
}

// Search observes the books whose title or author contains query
func (r *BookRepository) Search(query string) *live.Query[[]models.Audiobook] {
	return observe(r, func(ctx context.Context) ([]models.Audiobook, error) {
		return r.SearchAsync(ctx, query)
	})
}

// SearchAsync returns the books whose title or author contains query
func (r *BookRepository) SearchAsync(ctx context.Context, query string) ([]models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) ([]models.Audiobook, error) {
		return r.store.Search(ctx, query, r.offline())
	})
}

// GetRandomBookAsync returns a random visible book, or nil
func (r *BookRepository) GetRandomBookAsync(ctx context.Context) (*models.Audiobook, error) {
	return dispatch(ctx, r.io, func(ctx context.Context) (*models.Audiobook, error) {
		return r.store.GetRandom(ctx, r.offline())
	})
}

// GetBookCountAsync returns the number of stored books
func (r *BookRepository) GetBookCountAsync(ctx context.Context) (int64, error) {
	return dispatch(ctx, r.io, r.store.Count)
}

// Update replaces a stored book
func (r *BookRepository) Update(ctx context.Context, book models.Audiobook) error {
	return r.io.Do(ctx, func(ctx context.Context) error {
		return r.store.Update(ctx, book)
	})
}

// UpdateTrackData stores the progress, duration and track count derived from a book's tracks
func (r *BookRepository) UpdateTrackData(ctx context.Context, id int, progress, duration int64, leafCount int) error {
	return r.io.Do(ctx, func(ctx context.Context) error {
		return r.store.UpdateTrackData(ctx, id, progress, duration, leafCount)
	})
}

// UpdateProgress stores a playback position
func (r *BookRepository) UpdateProgress(ctx context.Context, id int, lastViewedAt, progress int64) error {
	return r.io.Do(ctx, func(ctx context.Context) error {
		return r.store.UpdateProgress(ctx, id, lastViewedAt, progress)
	})
}

// UpdateCached marks a book as downloaded or not
func (r *BookRepository) UpdateCached(ctx context.Context, id int, cached bool) error {
	return r.io.Do(ctx, func(ctx context.Context) error {
		return r.store.UpdateCached(ctx, id, cached)
	})
}

// UncacheAll marks every book as not downloaded
func (r *BookRepository) UncacheAll(ctx context.Context) error {
	return r.io.Do(ctx, r.store.UncacheAll)
}

// Clear deletes every stored book
func (r *BookRepository) Clear(ctx context.Context) error {
	return r.io.Do(ctx, r.store.ClearAll)
}
