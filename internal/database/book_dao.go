package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// batchSize bounds the number of rows or ids sent in one statement
const batchSize = 200

// BookDAO is the local audiobook store. Every query takes an offline flag;
// when it is set only cached books are visible.
type BookDAO struct {
	db      *gorm.DB
	emitter live.Emitter
	logger  *logger.Logger
}

// NewBookDAO creates a DAO over db that reports writes to emitter
func NewBookDAO(db *Database, emitter live.Emitter, log *logger.Logger) *BookDAO {
	if emitter == nil {
		emitter = live.NoopEmitter{}
	}
	return &BookDAO{
		db:      db.GetDB(),
		emitter: emitter,
		logger:  log.WithComponent("book_dao"),
	}
}

func offlineScope(offline bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if offline {
			return db.Where("is_cached = ?", true)
		}
		return db
	}
}

func (d *BookDAO) books(ctx context.Context, offline bool) *gorm.DB {
	return d.db.WithContext(ctx).Model(&models.Audiobook{}).Scopes(offlineScope(offline))
}

func (d *BookDAO) changed() {
	d.emitter.Emit(live.TopicAudiobooks)
}

// Count returns the number of stored books
func (d *BookDAO) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Audiobook{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count audiobooks: %w", err)
	}
	return count, nil
}

// GetAll returns every visible book ordered by sort title
func (d *BookDAO) GetAll(ctx context.Context, offline bool) ([]models.Audiobook, error) {
	var books []models.Audiobook
	if err := d.books(ctx, offline).Order("title_sort").Order("title").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to get audiobooks: %w", err)
	}
	return books, nil
}

// GetByID returns the book with id, or nil if it is absent or hidden
func (d *BookDAO) GetByID(ctx context.Context, id int, offline bool) (*models.Audiobook, error) {
	return d.first(d.books(ctx, offline).Where("id = ?", id), "get audiobook")
}

// GetRecentlyAdded returns up to limit books, newest first
func (d *BookDAO) GetRecentlyAdded(ctx context.Context, limit int, offline bool) ([]models.Audiobook, error) {
	var books []models.Audiobook
	err := d.books(ctx, offline).Order("added_at DESC").Limit(limit).Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recently added audiobooks: %w", err)
	}
	return books, nil
}

// GetRecentlyListened returns up to limit books that have been played, most recent first
func (d *BookDAO) GetRecentlyListened(ctx context.Context, limit int, offline bool) ([]models.Audiobook, error) {
	var books []models.Audiobook
	err := d.books(ctx, offline).
		Where("last_viewed_at > ?", 0).
		Order("last_viewed_at DESC").
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recently listened audiobooks: %w", err)
	}
	return books, nil
}

// GetMostRecent returns the most recently played book, or nil if none has been played
func (d *BookDAO) GetMostRecent(ctx context.Context, offline bool) (*models.Audiobook, error) {
	q := d.books(ctx, offline).Where("last_viewed_at > ?", 0).Order("last_viewed_at DESC")
	return d.first(q, "get most recent audiobook")
}

// GetCached returns every book downloaded for offline use
func (d *BookDAO) GetCached(ctx context.Context) ([]models.Audiobook, error) {
	var books []models.Audiobook
	if err := d.books(ctx, true).Order("title_sort").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to get cached audiobooks: %w", err)
	}
	return books, nil
}

// Search returns books whose title or author contains query
func (d *BookDAO) Search(ctx context.Context, query string, offline bool) ([]models.Audiobook, error) {
	pattern := "%" + query + "%"
	var books []models.Audiobook
	err := d.books(ctx, offline).
		Where("(title LIKE ? OR author LIKE ?)", pattern, pattern).
		Order("title_sort").
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search audiobooks: %w", err)
	}
	return books, nil
}

// GetRandom returns one random visible book, or nil if there are none
func (d *BookDAO) GetRandom(ctx context.Context, offline bool) (*models.Audiobook, error) {
	random := "RANDOM()"
	if d.db.Dialector.Name() == "mysql" {
		random = "RAND()"
	}
	return d.first(d.books(ctx, offline).Order(random), "get random audiobook")
}

func (d *BookDAO) first(q *gorm.DB, op string) (*models.Audiobook, error) {
	var books []models.Audiobook
	if err := q.Limit(1).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	if len(books) == 0 {
		return nil, nil
	}
	return &books[0], nil
}

// InsertAll upserts books, replacing every column of existing rows
func (d *BookDAO) InsertAll(ctx context.Context, books []models.Audiobook) error {
	if len(books) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&books, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to insert audiobooks: %w", err)
	}

	d.logger.Debug("Inserted audiobooks", map[string]interface{}{"count": len(books)})
	d.changed()
	return nil
}

// RemoveAll deletes the books with the given ids
func (d *BookDAO) RemoveAll(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += batchSize {
			end := min(start+batchSize, len(ids))
			if err := tx.Where("id IN ?", ids[start:end]).Delete(&models.Audiobook{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove audiobooks: %w", err)
	}

	d.logger.Debug("Removed audiobooks", map[string]interface{}{"count": len(ids)})
	d.changed()
	return nil
}

// Update writes every column of book
func (d *BookDAO) Update(ctx context.Context, book models.Audiobook) error {
	if err := d.db.WithContext(ctx).Save(&book).Error; err != nil {
		return fmt.Errorf("failed to update audiobook %d: %w", book.ID, err)
	}
	d.changed()
	return nil
}

// UpdateTrackData stores values derived from the book's tracks
func (d *BookDAO) UpdateTrackData(ctx context.Context, id int, progress, duration int64, leafCount int) error {
	return d.updateColumns(ctx, id, "update track data", map[string]interface{}{
		"progress":   progress,
		"duration":   duration,
		"leaf_count": leafCount,
	})
}

// UpdateProgress stores the playback position and when it was recorded
func (d *BookDAO) UpdateProgress(ctx context.Context, id int, lastViewedAt, progress int64) error {
	return d.updateColumns(ctx, id, "update progress", map[string]interface{}{
		"last_viewed_at": lastViewedAt,
		"progress":       progress,
	})
}

// UpdateCached sets the downloaded flag of one book
func (d *BookDAO) UpdateCached(ctx context.Context, id int, cached bool) error {
	return d.updateColumns(ctx, id, "update cached flag", map[string]interface{}{
		"is_cached": cached,
	})
}

func (d *BookDAO) updateColumns(ctx context.Context, id int, op string, values map[string]interface{}) error {
	err := d.db.WithContext(ctx).Model(&models.Audiobook{}).Where("id = ?", id).Updates(values).Error
	if err != nil {
		return fmt.Errorf("failed to %s for audiobook %d: %w", op, id, err)
	}
	d.changed()
	return nil
}

// UncacheAll clears the downloaded flag on every book
func (d *BookDAO) UncacheAll(ctx context.Context) error {
	err := d.db.WithContext(ctx).
		Model(&models.Audiobook{}).
		Where("is_cached = ?", true).
		Update("is_cached", false).Error
	if err != nil {
		return fmt.Errorf("failed to uncache audiobooks: %w", err)
	}
	d.changed()
	return nil
}

// ClearAll deletes every book
func (d *BookDAO) ClearAll(ctx context.Context) error {
	err := d.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Audiobook{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear audiobooks: %w", err)
	}
	d.logger.Info("Cleared all audiobooks")
	d.changed()
	return nil
}
