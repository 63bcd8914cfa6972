package plex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// Library is a library section on the Plex server
type Library struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Agent string `json:"agent,omitempty"`
}

type tag struct {
	Tag string `json:"tag"`
}

type part struct {
	Key      string `json:"key"`
	Duration int64  `json:"duration"`
}

type media struct {
	Part []part `json:"Part"`
}

type chapter struct {
	ID              int64  `json:"id"`
	Tag             string `json:"tag"`
	Index           int64  `json:"index"`
	StartTimeOffset int64  `json:"startTimeOffset"`
	EndTimeOffset   int64  `json:"endTimeOffset"`
}

// metadata covers the fields of album, track and chapter responses we use.
// Plex encodes rating keys as strings.
type metadata struct {
	RatingKey        string    `json:"ratingKey"`
	ParentRatingKey  string    `json:"parentRatingKey"`
	Title            string    `json:"title"`
	TitleSort        string    `json:"titleSort"`
	ParentTitle      string    `json:"parentTitle"`
	GrandparentTitle string    `json:"grandparentTitle"`
	Thumb            string    `json:"thumb"`
	Summary          string    `json:"summary"`
	Year             int       `json:"year"`
	Index            int       `json:"index"`
	ParentIndex      int       `json:"parentIndex"`
	AddedAt          int64     `json:"addedAt"`
	UpdatedAt        int64     `json:"updatedAt"`
	LastViewedAt     int64     `json:"lastViewedAt"`
	ViewOffset       int64     `json:"viewOffset"`
	Duration         int64     `json:"duration"`
	ViewCount        int       `json:"viewCount"`
	LeafCount        int       `json:"leafCount"`
	ViewedLeafCount  int       `json:"viewedLeafCount"`
	Genre            []tag     `json:"Genre"`
	Media            []media   `json:"Media"`
	Chapter          []chapter `json:"Chapter"`
}

type mediaContainer struct {
	MediaContainer struct {
		Size      int        `json:"size"`
		Metadata  []metadata `json:"Metadata"`
		Directory []Library  `json:"Directory"`
	} `json:"MediaContainer"`
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

// ratingKey parses the item's own rating key, which must be a positive integer
func (m metadata) ratingKey() (int, error) {
	id, err := strconv.Atoi(m.RatingKey)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rating key %q", m.RatingKey)
	}
	return id, nil
}

func (m metadata) toAudiobook(source int64) (models.Audiobook, error) {
	id, err := m.ratingKey()
	if err != nil {
		return models.Audiobook{}, err
	}

	genres := make([]string, 0, len(m.Genre))
	for _, g := range m.Genre {
		genres = append(genres, g.Tag)
	}

	return models.Audiobook{
		ID:              id,
		Source:          source,
		Title:           m.Title,
		TitleSort:       stringOr(m.TitleSort, m.Title),
		Author:          m.ParentTitle,
		Thumb:           m.Thumb,
		ParentID:        atoi(m.ParentRatingKey),
		Genre:           strings.Join(genres, ", "),
		Summary:         m.Summary,
		Year:            m.Year,
		AddedAt:         m.AddedAt,
		UpdatedAt:       m.UpdatedAt,
		LastViewedAt:    m.LastViewedAt,
		Duration:        m.Duration,
		Progress:        m.ViewOffset,
		ViewedLeafCount: m.ViewedLeafCount,
		LeafCount:       m.LeafCount,
		ViewCount:       m.ViewCount,
	}, nil
}

func (m metadata) toTrack() (models.MediaItemTrack, error) {
	id, err := m.ratingKey()
	if err != nil {
		return models.MediaItemTrack{}, err
	}

	track := models.MediaItemTrack{
		ID:           id,
		ParentID:     atoi(m.ParentRatingKey),
		Title:        m.Title,
		Index:        m.Index,
		DiscNumber:   m.ParentIndex,
		Duration:     m.Duration,
		Progress:     m.ViewOffset,
		Album:        m.ParentTitle,
		Artist:       m.GrandparentTitle,
		LastViewedAt: m.LastViewedAt,
	}
	if len(m.Media) > 0 && len(m.Media[0].Part) > 0 {
		track.Media = m.Media[0].Part[0].Key
	}
	return track, nil
}

func (m metadata) toChapters() []models.Chapter {
	trackID := int64(atoi(m.RatingKey))
	bookID := atoi(m.ParentRatingKey)

	chapters := make([]models.Chapter, 0, len(m.Chapter))
	for _, c := range m.Chapter {
		chapters = append(chapters, models.Chapter{
			ID:              c.ID,
			Title:           c.Tag,
			Index:           c.Index,
			DiscNumber:      m.ParentIndex,
			StartTimeOffset: c.StartTimeOffset,
			EndTimeOffset:   c.EndTimeOffset,
			TrackID:         trackID,
			BookID:          bookID,
		})
	}
	return chapters
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
