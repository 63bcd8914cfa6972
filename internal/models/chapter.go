package models

import "sort"

// Chapter is a named time range within a book. Offsets are milliseconds
// from the start of the track it belongs to.
type Chapter struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Index           int64  `json:"index"`
	DiscNumber      int    `json:"disc_number"`
	StartTimeOffset int64  `json:"start_time_offset"`
	EndTimeOffset   int64  `json:"end_time_offset"`
	Downloaded      bool   `json:"downloaded"`
	TrackID         int64  `json:"track_id"`
	BookID          int    `json:"book_id"`
}

// Duration returns the length of the chapter in milliseconds
func (c Chapter) Duration() int64 {
	if c.EndTimeOffset < c.StartTimeOffset {
		return 0
	}
	return c.EndTimeOffset - c.StartTimeOffset
}

// ChaptersFromTracks derives one chapter per track for books whose tracks carry
// no chapter markers. Tracks are ordered by disc then index; each chapter
// starts where the previous track ended.
func ChaptersFromTracks(tracks []MediaItemTrack) []Chapter {
	sorted := SortTracks(tracks)
	chapters := make([]Chapter, 0, len(sorted))

	var offset int64
	for i, track := range sorted {
		chapters = append(chapters, Chapter{
			ID:              int64(track.ID),
			Title:           track.Title,
			Index:           int64(i + 1),
			DiscNumber:      track.DiscNumber,
			StartTimeOffset: offset,
			EndTimeOffset:   offset + track.Duration,
			Downloaded:      track.Cached,
			TrackID:         int64(track.ID),
			BookID:          track.ParentID,
		})
		offset += track.Duration
	}
	return chapters
}

// SortTracks returns a copy of tracks ordered by disc number then index
func SortTracks(tracks []MediaItemTrack) []MediaItemTrack {
	sorted := make([]MediaItemTrack, len(tracks))
	copy(sorted, tracks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DiscNumber != sorted[j].DiscNumber {
			return sorted[i].DiscNumber < sorted[j].DiscNumber
		}
		return sorted[i].Index < sorted[j].Index
	})
	return sorted
}
