package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyagen/tvdeck/internal/models"
)

// MaxPlaylistBytes caps how much of a remote playlist is read.
const MaxPlaylistBytes = 32 << 20

// FetchPlaylist downloads the playlist at url and returns its text.
// userAgent is optional. Only HTTP 200 is accepted.
func FetchPlaylist(ctx context.Context, url string, userAgent string, timeout time.Duration) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("NewRequest: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPlaylistBytes+1))
	if err != nil {
		return "", fmt.Errorf("ReadAll: %w", err)
	}
	if len(body) > MaxPlaylistBytes {
		return "", fmt.Errorf("playlist exceeds %d bytes", MaxPlaylistBytes)
	}
	return string(body), nil
}

// FetchM3U fetches the playlist at url and parses it.
func FetchM3U(ctx context.Context, url string, userAgent string, timeout time.Duration) ([]models.ChannelEntry, error) {
	text, err := FetchPlaylist(ctx, url, userAgent, timeout)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}
