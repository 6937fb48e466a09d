package models

// ChannelEntry is one channel parsed from an M3U playlist.
// Only URL is guaranteed; every other field is nil when the playlist
// did not provide it.
type ChannelEntry struct {
	ChannelID   *string  `json:"channelId,omitempty"`
	ChannelName *string  `json:"channelName,omitempty"`
	Logo        *string  `json:"logo,omitempty"`
	GroupTitle  *string  `json:"groupTitle,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	URL         string   `json:"url"`
}
