package models

import "time"

// Audiobook is a book as cached locally. Times are unix seconds, durations
// and progress are milliseconds.
type Audiobook struct {
	ID              int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Source          int64     `json:"source"`
	Title           string    `gorm:"index" json:"title"`
	TitleSort       string    `gorm:"index" json:"title_sort"`
	Author          string    `gorm:"index" json:"author"`
	Thumb           string    `json:"thumb,omitempty"`
	ParentID        int       `json:"parent_id,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	Year            int       `json:"year,omitempty"`
	AddedAt         int64     `gorm:"index" json:"added_at"`
	UpdatedAt       int64     `gorm:"autoUpdateTime:false" json:"updated_at"`
	LastViewedAt    int64     `gorm:"index" json:"last_viewed_at"`
	Duration        int64     `json:"duration"`
	Progress        int64     `json:"progress"`
	IsCached        bool      `gorm:"index" json:"is_cached"`
	Favorited       bool      `json:"favorited"`
	ViewedLeafCount int       `json:"viewed_leaf_count"`
	LeafCount       int       `json:"leaf_count"`
	ViewCount       int       `json:"view_count"`
	Chapters        []Chapter `gorm:"serializer:json" json:"chapters"`
}

// TableName pins the table name regardless of naming strategy
func (Audiobook) TableName() string {
	return "audiobooks"
}

// LastViewed returns LastViewedAt as a time, zero if never viewed
func (a Audiobook) LastViewed() time.Time {
	if a.LastViewedAt == 0 {
		return time.Time{}
	}
	return time.Unix(a.LastViewedAt, 0)
}

// IsFinished reports whether progress has reached the end of the book
func (a Audiobook) IsFinished() bool {
	return a.Duration > 0 && a.Progress >= a.Duration
}

// ProgressRatio returns progress as a fraction of the duration in [0, 1]
func (a Audiobook) ProgressRatio() float64 {
	if a.Duration <= 0 {
		return 0
	}
	r := float64(a.Progress) / float64(a.Duration)
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

// IDs returns the ids of the given books in order
func IDs(books []Audiobook) []int {
	ids := make([]int, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids
}
