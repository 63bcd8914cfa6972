package models

// MergeAudiobooks combines the network and local copies of the same book.
//
// When the network copy was viewed more recently it wins outright, except for
// the fields the server never reports (cache flag, favorite, chapters). When the
// local copy is at least as recent, the server still supplies metadata but the
// listening state (progress, last viewed, viewed leaves) is kept from local.
func MergeAudiobooks(network, local Audiobook) Audiobook {
	merged := network
	merged.IsCached = local.IsCached
	merged.Favorited = local.Favorited
	if len(network.Chapters) == 0 {
		merged.Chapters = local.Chapters
	}

	if network.LastViewedAt > local.LastViewedAt {
		return merged
	}

	merged.Progress = local.Progress
	merged.LastViewedAt = local.LastViewedAt
	merged.ViewedLeafCount = local.ViewedLeafCount
	if merged.Duration == 0 {
		merged.Duration = local.Duration
	}
	return merged
}
