package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/voyagen/tvdeck/internal/fetcher"
	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/quality"
	"github.com/voyagen/tvdeck/internal/store"
)

// ErrEmptyPlaylist is returned when a playlist yields no channels.
var ErrEmptyPlaylist = errors.New("playlist contains no channels")

// ImportOptions tunes how parsed channels become streams.
type ImportOptions struct {
	// Category is used for channels without a group-title.
	Category string
	// Inactive creates new streams hidden from the catalog.
	Inactive bool
}

// ImportResult summarises one import.
type ImportResult struct {
	Parsed         int `json:"parsed"`
	StreamsCreated int `json:"streams_created"`
	StreamsUpdated int `json:"streams_updated"`
	ServersAdded   int `json:"servers_added"`
	Skipped        int `json:"skipped"`
}

// channelGroup collects the entries that share one display name.
type channelGroup struct {
	name    string
	slug    string
	entries []models.ChannelEntry
}

// ImportFromURL fetches a remote playlist and imports it.
func ImportFromURL(ctx context.Context, s store.Store, playlistURL, userAgent string, timeout time.Duration, opts ImportOptions) (ImportResult, error) {
	if playlistURL == "" {
		return ImportResult{}, fmt.Errorf("playlist URL is required")
	}
	entries, err := fetcher.FetchM3U(ctx, playlistURL, userAgent, timeout)
	if err != nil {
		return ImportResult{}, fmt.Errorf("fetch: %w", err)
	}
	return ImportPlaylist(ctx, s, entries, opts)
}

// ImportPlaylist stores parsed playlist entries. Entries with the same
// display name become servers of one stream, prioritised by playlist
// order. A stream whose slug already exists gains the server URLs it
// does not have yet; its other fields are left untouched.
func ImportPlaylist(ctx context.Context, s store.Store, entries []models.ChannelEntry, opts ImportOptions) (ImportResult, error) {
	res := ImportResult{Parsed: len(entries)}
	if len(entries) == 0 {
		return res, ErrEmptyPlaylist
	}

	for _, g := range groupEntries(entries) {
		// Long imports must stop promptly on shutdown.
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import cancelled: %w", err)
		}

		existing, err := s.GetStreamBySlug(ctx, g.slug)
		switch {
		case errors.Is(err, store.ErrNotFound):
			st := newStreamFromGroup(g, opts)
			if err := s.CreateStream(ctx, st); err != nil {
				return res, fmt.Errorf("CreateStream %q: %w", g.slug, err)
			}
			res.StreamsCreated++
			res.ServersAdded += len(st.Servers)
			res.Skipped += len(g.entries) - len(st.Servers)
		case err != nil:
			return res, fmt.Errorf("GetStreamBySlug %q: %w", g.slug, err)
		default:
			added, skipped, err := mergeServers(ctx, s, existing, g)
			if err != nil {
				return res, err
			}
			if added > 0 {
				res.StreamsUpdated++
			}
			res.ServersAdded += added
			res.Skipped += skipped
		}
	}
	return res, nil
}

// groupEntries groups entries by slug, in order of first appearance.
func groupEntries(entries []models.ChannelEntry) []*channelGroup {
	var groups []*channelGroup
	bySlug := make(map[string]*channelGroup)
	for i, e := range entries {
		name := displayName(e, i)
		slug := Slugify(name)
		if slug == "" {
			slug = fmt.Sprintf("channel-%d", i+1)
		}
		g, ok := bySlug[slug]
		if !ok {
			g = &channelGroup{name: name, slug: slug}
			bySlug[slug] = g
			groups = append(groups, g)
		}
		g.entries = append(g.entries, e)
	}
	return groups
}

// displayName falls back to the last URL path segment, then to a
// positional name, for entries without a name.
func displayName(e models.ChannelEntry, index int) string {
	if e.ChannelName != nil && *e.ChannelName != "" {
		return *e.ChannelName
	}
	if u, err := url.Parse(e.URL); err == nil {
		base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
		if base != "" && base != "." && base != "/" {
			return base
		}
	}
	return fmt.Sprintf("Channel %d", index+1)
}

func newStreamFromGroup(g *channelGroup, opts ImportOptions) *models.Stream {
	st := &models.Stream{
		Title:  g.name,
		Slug:   g.slug,
		Active: !opts.Inactive,
	}
	if opts.Category != "" {
		st.Category = &opts.Category
	}

	texts := []string{g.name}
	seen := make(map[string]bool)
	for _, e := range g.entries {
		if st.Logo == nil {
			st.Logo = e.Logo
		}
		if st.ChannelID == nil {
			st.ChannelID = e.ChannelID
		}
		if e.GroupTitle != nil && (st.Category == nil || *st.Category == opts.Category) {
			st.Category = e.GroupTitle
		}
		if seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		st.Servers = append(st.Servers, newServer(g.name, e.URL, len(st.Servers)))
		texts = append(texts, e.URL)
	}
	st.Quality = quality.Classify(texts...)
	return st
}

func mergeServers(ctx context.Context, s store.Store, st *models.Stream, g *channelGroup) (added, skipped int, err error) {
	have := make(map[string]bool, len(st.Servers))
	next := 0
	for _, srv := range st.Servers {
		have[srv.URL] = true
		next = max(next, srv.Priority+1)
	}
	for _, e := range g.entries {
		if have[e.URL] {
			skipped++
			continue
		}
		srv := newServer(st.Title, e.URL, next)
		if err := s.AddServer(ctx, st.ID, &srv); err != nil {
			return added, skipped, fmt.Errorf("AddServer %q: %w", st.Slug, err)
		}
		have[e.URL] = true
		next++
		added++
	}
	return added, skipped, nil
}

func newServer(title, rawURL string, priority int) models.Server {
	return models.Server{
		Name:     fmt.Sprintf("Server %d", priority+1),
		URL:      rawURL,
		Priority: priority,
		Quality:  quality.Classify(rawURL, title),
	}
}

// Slugify lowercases s and joins its letter/digit runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
