package models

import "time"

// Server is a single playable URL (a mirror) of a Stream.
// Lower Priority values are tried first.
type Server struct {
	ID             string      `json:"id"`
	StreamID       string      `json:"stream_id"`
	Name           string      `json:"name"`
	URL            string      `json:"url"`
	Priority       int         `json:"priority"`
	Quality        QualityTier `json:"quality"`
	LastStatus     *string     `json:"last_status,omitempty"`
	LastStatusCode *int        `json:"last_status_code,omitempty"`
	LastCheckedAt  *time.Time  `json:"last_checked_at,omitempty"`
}
