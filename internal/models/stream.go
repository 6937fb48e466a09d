package models

import "time"

// Stream is a named channel in the catalog. It owns one or more servers.
type Stream struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Description *string     `json:"description,omitempty"`
	Logo        *string     `json:"logo,omitempty"`
	Category    *string     `json:"category,omitempty"`
	ChannelID   *string     `json:"channel_id,omitempty"` // tvg-id, used for EPG matching
	Quality     QualityTier `json:"quality"`
	Featured    bool        `json:"featured"`
	Active      bool        `json:"active"`
	Servers     []Server    `json:"servers"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}
