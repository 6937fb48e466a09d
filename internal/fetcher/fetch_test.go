package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchM3U(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:-1,One\nhttp://x/1\n"))
	}))
	defer srv.Close()

	entries, err := FetchM3U(context.Background(), srv.URL, "tvdeck-test", 5*time.Second)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "One", *entries[0].ChannelName)
	assert.Equal(t, "tvdeck-test", gotUA)
}

func TestFetchPlaylistRejectsNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := FetchPlaylist(context.Background(), srv.URL, "", 5*time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestFetchPlaylistInvalidURL(t *testing.T) {
	_, err := FetchPlaylist(context.Background(), "://bad", "", time.Second)
	assert.Error(t, err)
}
