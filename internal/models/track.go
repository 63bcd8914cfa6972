package models

// MediaItemTrack is a playable segment of a book
type MediaItemTrack struct {
	ID           int    `json:"id"`
	ParentID     int    `json:"parent_id"`
	Title        string `json:"title"`
	Index        int    `json:"index"`
	DiscNumber   int    `json:"disc_number"`
	Duration     int64  `json:"duration"`
	Progress     int64  `json:"progress"`
	Media        string `json:"media,omitempty"`
	Album        string `json:"album,omitempty"`
	Artist       string `json:"artist,omitempty"`
	LastViewedAt int64  `json:"last_viewed_at"`
	Cached       bool   `json:"cached"`
}

// TracksDuration sums the duration of all tracks
func TracksDuration(tracks []MediaItemTrack) int64 {
	var total int64
	for _, t := range tracks {
		total += t.Duration
	}
	return total
}

// TracksProgress returns the elapsed time across the whole book: the full
// duration of every track before the most recently viewed one plus the
// progress into that track.
func TracksProgress(tracks []MediaItemTrack) int64 {
	sorted := SortTracks(tracks)

	current := -1
	for i, t := range sorted {
		if t.LastViewedAt > 0 && (current < 0 || t.LastViewedAt > sorted[current].LastViewedAt) {
			current = i
		}
	}
	if current < 0 {
		return 0
	}

	var elapsed int64
	for _, t := range sorted[:current] {
		elapsed += t.Duration
	}
	return elapsed + sorted[current].Progress
}
