package live

// Topics carried by change signals
const (
	// TopicAudiobooks is emitted after every write to the audiobook store
	TopicAudiobooks = "audiobooks"
	// TopicPreferences is emitted when a preference that filters query
	// results (offline mode) changes
	TopicPreferences = "preferences"
)
