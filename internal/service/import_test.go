package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/tvdeck/internal/fetcher"
	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/store"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="news.1" tvg-logo="http://l/news.png" group-title="News",News HD
http://a/news/720p.m3u8
#EXTINF:-1 tvg-id="news.1" group-title="News",News HD
http://b/news/index.m3u8
#EXTINF:-1 group-title="Sports",Sport 4K
http://a/sport/2160p.m3u8
#EXTINF:-1,News HD
http://a/news/720p.m3u8
http://c/bare/kids.ts
`

func TestImportPlaylistGroupsByName(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	res, err := ImportPlaylist(ctx, s, fetcher.Parse(samplePlaylist), ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, ImportResult{Parsed: 5, StreamsCreated: 3, ServersAdded: 4, Skipped: 1}, res)

	news, err := s.GetStreamBySlug(ctx, "news-hd")
	require.NoError(t, err)
	assert.Equal(t, "News HD", news.Title)
	assert.Equal(t, "news.1", *news.ChannelID)
	assert.Equal(t, "http://l/news.png", *news.Logo)
	assert.Equal(t, "News", *news.Category)
	assert.Equal(t, models.QualityHD, news.Quality)
	assert.True(t, news.Active)
	require.Len(t, news.Servers, 2)
	assert.Equal(t, "http://a/news/720p.m3u8", news.Servers[0].URL)
	assert.Equal(t, 0, news.Servers[0].Priority)
	assert.Equal(t, "http://b/news/index.m3u8", news.Servers[1].URL)

	sport, err := s.GetStreamBySlug(ctx, "sport-4k")
	require.NoError(t, err)
	assert.Equal(t, models.Quality4K, sport.Quality)

	kids, err := s.GetStreamBySlug(ctx, "kids")
	require.NoError(t, err)
	assert.Equal(t, "kids", kids.Title)
	assert.Nil(t, kids.Category)
}

func TestImportPlaylistMergesIntoExisting(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := ImportPlaylist(ctx, s, fetcher.Parse("#EXTINF:-1,News\nhttp://a/1\n"), ImportOptions{})
	require.NoError(t, err)

	res, err := ImportPlaylist(ctx, s, fetcher.Parse("#EXTINF:-1,News\nhttp://a/1\n#EXTINF:-1,News\nhttp://a/2\n"), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Parsed: 2, StreamsUpdated: 1, ServersAdded: 1, Skipped: 1}, res)

	st, err := s.GetStreamBySlug(ctx, "news")
	require.NoError(t, err)
	require.Len(t, st.Servers, 2)
	assert.Equal(t, 1, st.Servers[1].Priority)
}

func TestImportPlaylistOptions(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := ImportPlaylist(ctx, s, fetcher.Parse("#EXTINF:-1,Movie\nhttp://a/1\n"), ImportOptions{Category: "Imported", Inactive: true})
	require.NoError(t, err)

	st, err := s.GetStreamBySlug(ctx, "movie")
	require.NoError(t, err)
	assert.Equal(t, "Imported", *st.Category)
	assert.False(t, st.Active)
}

func TestImportPlaylistEmpty(t *testing.T) {
	_, err := ImportPlaylist(context.Background(), store.NewMemory(), fetcher.Parse("#EXTM3U\n"), ImportOptions{})
	assert.ErrorIs(t, err, ErrEmptyPlaylist)
}

func TestImportPlaylistCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ImportPlaylist(ctx, store.NewMemory(), fetcher.Parse("http://a/1\n"), ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePlaylist))
	}))
	defer srv.Close()

	res, err := ImportFromURL(context.Background(), store.NewMemory(), srv.URL, "", 5*time.Second, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.StreamsCreated)

	_, err = ImportFromURL(context.Background(), store.NewMemory(), "", "", time.Second, ImportOptions{})
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"News HD":          "news-hd",
		"  BBC  One (UK) ": "bbc-one-uk",
		"Ünïcode Kanal":    "ünïcode-kanal",
		"---":              "",
		"A&B":              "a-b",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}
