package store

import (
	"context"
	"errors"

	"github.com/voyagen/tvdeck/internal/models"
)

var (
	// ErrNotFound is returned when a stream or server does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness rule
	// (duplicate slug, or a server URL already attached to the stream).
	ErrConflict = errors.New("conflict")
)

// Store defines persistence for streams and their servers.
type Store interface {
	// ListStreams returns streams matching the filter, servers included,
	// and the total count before limit/offset.
	ListStreams(ctx context.Context, filter StreamFilter) ([]models.Stream, int, error)
	// GetStream returns a single stream with its servers ordered by priority.
	GetStream(ctx context.Context, id string) (*models.Stream, error)
	// GetStreamBySlug looks a stream up by its unique slug.
	GetStreamBySlug(ctx context.Context, slug string) (*models.Stream, error)
	// CreateStream inserts the stream and its servers, assigning IDs to both.
	CreateStream(ctx context.Context, st *models.Stream) error
	// UpdateStream updates mutable fields of a stream.
	UpdateStream(ctx context.Context, id string, fields StreamUpdate) error
	// DeleteStream deletes a stream and its servers.
	DeleteStream(ctx context.Context, id string) error

	// AddServer attaches a server to a stream, assigning its ID.
	AddServer(ctx context.Context, streamID string, srv *models.Server) error
	// DeleteServer removes a single server.
	DeleteServer(ctx context.Context, serverID string) error

	// ListCheckTargets returns one target per server of the given streams,
	// or of every active stream when streamIDs is empty. Targets are
	// ordered by stream title, then server priority.
	ListCheckTargets(ctx context.Context, streamIDs []string) ([]models.CheckTarget, error)
	// RecordServerStatus stores the latest health result of each server.
	RecordServerStatus(ctx context.Context, results []models.HealthCheckResult) error

	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
}

// StreamFilter holds optional filters for listing streams.
type StreamFilter struct {
	Search   string // case-insensitive substring match on title
	Category *string
	Active   *bool
	Featured *bool
	Limit    int // <= 0 means no limit
	Offset   int
}

// StreamUpdate holds mutable fields for PATCH /streams/{id}.
// Pointer fields: nil = don't change, non-nil = set.
type StreamUpdate struct {
	Title       *string
	Description *string
	Logo        *string
	Category    *string
	ChannelID   *string
	Featured    *bool
	Active      *bool
}

// Empty reports whether the update changes nothing.
func (u StreamUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Logo == nil &&
		u.Category == nil && u.ChannelID == nil && u.Featured == nil && u.Active == nil
}
