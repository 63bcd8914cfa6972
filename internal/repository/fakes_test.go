package repository

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/drallgood/plex-audiobook-cache/internal/live"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// memStore is an in-memory BookStore that counts writes
type memStore struct {
	mu      sync.Mutex
	books   map[int]models.Audiobook
	writes  int
	failOn  map[string]error
	emitter live.Emitter
}

func newMemStore(emitter live.Emitter, books ...models.Audiobook) *memStore {
	if emitter == nil {
		emitter = live.NoopEmitter{}
	}
	s := &memStore{books: make(map[int]models.Audiobook), failOn: make(map[string]error), emitter: emitter}
	for _, b := range books {
		s.books[b.ID] = b
	}
	return s
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) snapshot() map[int]models.Audiobook {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]models.Audiobook, len(s.books))
	for id, b := range s.books {
		out[id] = b
	}
	return out
}

func (s *memStore) visible(offline bool) []models.Audiobook {
	var out []models.Audiobook
	for _, b := range s.books {
		if offline && !b.IsCached {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) write(op string, fn func()) error {
	s.mu.Lock()
	if err := s.failOn[op]; err != nil {
		s.mu.Unlock()
		return err
	}
	fn()
	s.writes++
	s.mu.Unlock()
	s.emitter.Emit(live.TopicAudiobooks)
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.books)), nil
}

func (s *memStore) GetAll(_ context.Context, offline bool) ([]models.Audiobook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["GetAll"]; err != nil {
		return nil, err
	}
	return s.visible(offline), nil
}

func (s *memStore) GetByID(_ context.Context, id int, offline bool) (*models.Audiobook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok || (offline && !b.IsCached) {
		return nil, nil
	}
	return &b, nil
}

func (s *memStore) sorted(offline bool, less func(a, b models.Audiobook) bool, keep func(models.Audiobook) bool, limit int) []models.Audiobook {
	var out []models.Audiobook
	for _, b := range s.visible(offline) {
		if keep == nil || keep(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) GetRecentlyAdded(_ context.Context, limit int, offline bool) ([]models.Audiobook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(offline, func(a, b models.Audiobook) bool { return a.AddedAt > b.AddedAt }, nil, limit), nil
}

func (s *memStore) GetRecentlyListened(_ context.Context, limit int, offline bool) ([]models.Audiobook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(offline,
		func(a, b models.Audiobook) bool { return a.LastViewedAt > b.LastViewedAt },
		func(b models.Audiobook) bool { return b.LastViewedAt > 0 },
		limit), nil
}

func (s *memStore) GetMostRecent(ctx context.Context, offline bool) (*models.Audiobook, error) {
	books, _ := s.GetRecentlyListened(ctx, 1, offline)
	if len(books) == 0 {
		return nil, nil
	}
	return &books[0], nil
}

func (s *memStore) GetCached(ctx context.Context) ([]models.Audiobook, error) {
	return s.GetAll(ctx, true)
}

func (s *memStore) Search(_ context.Context, query string, offline bool) ([]models.Audiobook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Audiobook
	for _, b := range s.visible(offline) {
		if strings.Contains(b.Title, query) || strings.Contains(b.Author, query) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) GetRandom(_ context.Context, offline bool) (*models.Audiobook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	books := s.visible(offline)
	if len(books) == 0 {
		return nil, nil
	}
	b := books[rand.Intn(len(books))]
	return &b, nil
}

func (s *memStore) InsertAll(_ context.Context, books []models.Audiobook) error {
	return s.write("InsertAll", func() {
		for _, b := range books {
			s.books[b.ID] = b
		}
	})
}

func (s *memStore) RemoveAll(_ context.Context, ids []int) error {
	return s.write("RemoveAll", func() {
		for _, id := range ids {
			delete(s.books, id)
		}
	})
}

func (s *memStore) Update(_ context.Context, book models.Audiobook) error {
	return s.write("Update", func() { s.books[book.ID] = book })
}

func (s *memStore) modify(op string, id int, fn func(*models.Audiobook)) error {
	return s.write(op, func() {
		if b, ok := s.books[id]; ok {
			fn(&b)
			s.books[id] = b
		}
	})
}

func (s *memStore) UpdateTrackData(_ context.Context, id int, progress, duration int64, leafCount int) error {
	return s.modify("UpdateTrackData", id, func(b *models.Audiobook) {
		b.Progress, b.Duration, b.LeafCount = progress, duration, leafCount
	})
}

func (s *memStore) UpdateProgress(_ context.Context, id int, lastViewedAt, progress int64) error {
	return s.modify("UpdateProgress", id, func(b *models.Audiobook) {
		b.LastViewedAt, b.Progress = lastViewedAt, progress
	})
}

func (s *memStore) UpdateCached(_ context.Context, id int, cached bool) error {
	return s.modify("UpdateCached", id, func(b *models.Audiobook) { b.IsCached = cached })
}

func (s *memStore) UncacheAll(context.Context) error {
	return s.write("UncacheAll", func() {
		for id, b := range s.books {
			b.IsCached = false
			s.books[id] = b
		}
	})
}

func (s *memStore) ClearAll(context.Context) error {
	return s.write("ClearAll", func() { s.books = make(map[int]models.Audiobook) })
}

// fakePrefs implements Preferences and PlexPreferences
type fakePrefs struct {
	mu          sync.Mutex
	offline     bool
	lastRefresh time.Time
	libraryID   string
	setErr      error
}

func (p *fakePrefs) OfflineMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offline
}

func (p *fakePrefs) setOffline(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = v
}

func (p *fakePrefs) LastRefresh() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefresh
}

func (p *fakePrefs) SetLastRefresh(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return p.setErr
	}
	p.lastRefresh = t
	return nil
}

func (p *fakePrefs) LibraryID() string {
	return p.libraryID
}

// mockMediaService is a testify mock of MediaService
type mockMediaService struct {
	mock.Mock
}

func (m *mockMediaService) FetchAudiobooks(ctx context.Context, libraryID string) ([]models.Audiobook, error) {
	args := m.Called(ctx, libraryID)
	books, _ := args.Get(0).([]models.Audiobook)
	return books, args.Error(1)
}

func (m *mockMediaService) FetchTracks(ctx context.Context, bookID int) ([]models.MediaItemTrack, error) {
	args := m.Called(ctx, bookID)
	tracks, _ := args.Get(0).([]models.MediaItemTrack)
	return tracks, args.Error(1)
}

func (m *mockMediaService) FetchChapters(ctx context.Context, trackID int) ([]models.Chapter, error) {
	args := m.Called(ctx, trackID)
	chapters, _ := args.Get(0).([]models.Chapter)
	return chapters, args.Error(1)
}
