// Package refresh runs the library reconciliation periodically.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/repository"
)

// ErrInProgress is returned by RunOnce while another refresh is running
var ErrInProgress = errors.New("refresh already in progress")

// Refresher performs one reconciliation
type Refresher interface {
	RefreshData(ctx context.Context) (*repository.RefreshResult, error)
}

// LastRefresher reports when the last reconciliation succeeded
type LastRefresher interface {
	LastRefresh() time.Time
}

// Scheduler runs a Refresher at start-up and then on every interval tick.
// Runs never overlap.
type Scheduler struct {
	refresher Refresher
	last      LastRefresher
	interval  time.Duration
	running   sync.Mutex
	logger    *logger.Logger
}

// NewScheduler creates a scheduler. An interval <= 0 disables periodic runs;
// RunOnce still works.
func NewScheduler(refresher Refresher, last LastRefresher, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		last:      last,
		interval:  interval,
		logger:    log.WithComponent("refresh"),
	}
}

// Interval returns the configured interval
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Due reports whether a full interval has passed since the last refresh
func (s *Scheduler) Due(now time.Time) bool {
	last := s.last.LastRefresh()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= s.interval
}

// RunOnce refreshes immediately unless a refresh is already running
func (s *Scheduler) RunOnce(ctx context.Context) (*repository.RefreshResult, error) {
	if !s.running.TryLock() {
		return nil, ErrInProgress
	}
	defer s.running.Unlock()

	return s.refresher.RefreshData(ctx)
}

// Run blocks until ctx is done, refreshing at start (when due) and on every tick
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Periodic refresh is disabled (set REFRESH_INTERVAL to enable)")
		return
	}

	s.logger.Info("Starting periodic refresh", map[string]interface{}{
		"interval": s.interval.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.Due(time.Now()) {
		s.run(ctx, "Initial refresh")
	} else {
		s.logger.Info("Skipping initial refresh, library is fresh", map[string]interface{}{
			"last_refresh": s.last.LastRefresh().Format(time.RFC3339),
		})
	}

	for {
		select {
		case <-ticker.C:
			s.run(ctx, "Periodic refresh")
		case <-ctx.Done():
			s.logger.Info("Periodic refresh stopped")
			return
		}
	}
}

// Start runs Run on a new goroutine. The returned channel is closed when it returns.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}

func (s *Scheduler) run(ctx context.Context, label string) {
	result, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrInProgress):
		s.logger.Debug(label+" skipped, refresh already running")
	case repository.IsRefreshError(err):
		s.logger.Warn(label+" aborted", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.logger.Error(label+" failed", map[string]interface{}{
			"error": err.Error(),
		})
	case result.Status == repository.RefreshSkippedOffline:
		s.logger.Debug(label + " skipped, offline mode enabled")
	default:
		s.logger.Info(label+" completed", map[string]interface{}{
			"books":   len(result.Books),
			"added":   result.Added,
			"merged":  result.Merged,
			"removed": result.Removed,
		})
	}
}
