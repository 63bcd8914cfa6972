package plex

import (
	"context"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// ClientInterface defines the interface for the Plex API client
// This allows for mocking in tests
type ClientInterface interface {
	GetLibraries(ctx context.Context) ([]Library, error)
	FetchAudiobooks(ctx context.Context, libraryID string) ([]models.Audiobook, error)
	FetchTracks(ctx context.Context, bookID int) ([]models.MediaItemTrack, error)
	FetchChapters(ctx context.Context, trackID int) ([]models.Chapter, error)
}

// Ensure that the Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)
