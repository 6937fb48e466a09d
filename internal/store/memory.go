package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voyagen/tvdeck/internal/models"
)

// Memory is an in-process Store. It backs tests and the -memory dev mode;
// nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	streams map[string]*models.Stream
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{streams: make(map[string]*models.Stream), now: time.Now}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// ListStreams filters, sorts (featured first, then title) and pages.
func (m *Memory) ListStreams(_ context.Context, f StreamFilter) ([]models.Stream, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Stream
	search := strings.ToLower(f.Search)
	for _, st := range m.streams {
		if search != "" && !strings.Contains(strings.ToLower(st.Title), search) {
			continue
		}
		if f.Category != nil && (st.Category == nil || *st.Category != *f.Category) {
			continue
		}
		if f.Active != nil && st.Active != *f.Active {
			continue
		}
		if f.Featured != nil && st.Featured != *f.Featured {
			continue
		}
		out = append(out, cloneStream(st))
	}
	slices.SortFunc(out, func(a, b models.Stream) int {
		if a.Featured != b.Featured {
			if a.Featured {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
	})

	total := len(out)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return out[start:end], total, nil
}

// GetStream returns a copy of the stream.
func (m *Memory) GetStream(_ context.Context, id string) (*models.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneStream(st)
	return &c, nil
}

// GetStreamBySlug returns a copy of the stream with that slug.
func (m *Memory) GetStreamBySlug(_ context.Context, slug string) (*models.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.streams {
		if st.Slug == slug {
			c := cloneStream(st)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// CreateStream stores a copy of st after assigning IDs.
func (m *Memory) CreateStream(_ context.Context, st *models.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.streams {
		if existing.Slug == st.Slug {
			return ErrConflict
		}
	}
	seen := make(map[string]bool, len(st.Servers))
	for _, srv := range st.Servers {
		if seen[srv.URL] {
			return ErrConflict
		}
		seen[srv.URL] = true
	}

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Quality == "" {
		st.Quality = models.QualityUnknown
	}
	now := m.now()
	st.CreatedAt = &now
	st.UpdatedAt = &now
	for i := range st.Servers {
		prepareServer(st.ID, &st.Servers[i])
	}
	c := cloneStream(st)
	m.streams[st.ID] = &c
	return nil
}

// UpdateStream applies the non-nil fields.
func (m *Memory) UpdateStream(_ context.Context, id string, u StreamUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streams[id]
	if !ok {
		return ErrNotFound
	}
	if u.Title != nil {
		st.Title = *u.Title
	}
	if u.Description != nil {
		st.Description = ptr(*u.Description)
	}
	if u.Logo != nil {
		st.Logo = ptr(*u.Logo)
	}
	if u.Category != nil {
		st.Category = ptr(*u.Category)
	}
	if u.ChannelID != nil {
		st.ChannelID = ptr(*u.ChannelID)
	}
	if u.Featured != nil {
		st.Featured = *u.Featured
	}
	if u.Active != nil {
		st.Active = *u.Active
	}
	now := m.now()
	st.UpdatedAt = &now
	return nil
}

// DeleteStream removes the stream and its servers.
func (m *Memory) DeleteStream(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[id]; !ok {
		return ErrNotFound
	}
	delete(m.streams, id)
	return nil
}

// AddServer attaches a copy of srv to the stream.
func (m *Memory) AddServer(_ context.Context, streamID string, srv *models.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streams[streamID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range st.Servers {
		if existing.URL == srv.URL {
			return ErrConflict
		}
	}
	prepareServer(streamID, srv)
	st.Servers = append(st.Servers, *srv)
	sortServers(st.Servers)
	now := m.now()
	st.UpdatedAt = &now
	return nil
}

// DeleteServer removes one server from whichever stream owns it.
func (m *Memory) DeleteServer(_ context.Context, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.streams {
		for i, srv := range st.Servers {
			if srv.ID == serverID {
				st.Servers = slices.Delete(st.Servers, i, i+1)
				return nil
			}
		}
	}
	return ErrNotFound
}

// ListCheckTargets mirrors the Postgres ordering: title, then priority.
func (m *Memory) ListCheckTargets(_ context.Context, streamIDs []string) ([]models.CheckTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var selected []*models.Stream
	if len(streamIDs) > 0 {
		for _, id := range streamIDs {
			if st, ok := m.streams[id]; ok && !slices.Contains(selected, st) {
				selected = append(selected, st)
			}
		}
	} else {
		for _, st := range m.streams {
			if st.Active {
				selected = append(selected, st)
			}
		}
	}
	slices.SortFunc(selected, func(a, b *models.Stream) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
	})

	var targets []models.CheckTarget
	for _, st := range selected {
		for _, srv := range st.Servers {
			targets = append(targets, models.CheckTarget{
				StreamID:    st.ID,
				StreamTitle: st.Title,
				ServerID:    srv.ID,
				ServerName:  srv.Name,
				URL:         srv.URL,
			})
		}
	}
	return targets, nil
}

// RecordServerStatus copies each result onto its server.
func (m *Memory) RecordServerStatus(_ context.Context, results []models.HealthCheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byServer := make(map[string]models.HealthCheckResult, len(results))
	for _, r := range results {
		byServer[r.ServerID] = r
	}
	for _, st := range m.streams {
		for i := range st.Servers {
			r, ok := byServer[st.Servers[i].ID]
			if !ok {
				continue
			}
			checked, err := time.Parse(models.TimeLayout, r.CheckTime)
			if err != nil {
				checked = m.now()
			}
			st.Servers[i].LastStatus = ptr(r.Status)
			st.Servers[i].LastStatusCode = r.StatusCode
			st.Servers[i].LastCheckedAt = &checked
		}
	}
	return nil
}

func prepareServer(streamID string, srv *models.Server) {
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	if srv.Quality == "" {
		srv.Quality = models.QualityUnknown
	}
	srv.StreamID = streamID
}

func sortServers(servers []models.Server) {
	slices.SortStableFunc(servers, func(a, b models.Server) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
}

func cloneStream(st *models.Stream) models.Stream {
	c := *st
	c.Servers = slices.Clone(st.Servers)
	if c.Servers == nil {
		c.Servers = []models.Server{}
	}
	sortServers(c.Servers)
	return c
}

func ptr[T any](v T) *T { return &v }
