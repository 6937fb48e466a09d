package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/tvdeck/internal/config"
	"github.com/voyagen/tvdeck/internal/health"
	"github.com/voyagen/tvdeck/internal/logging"
	"github.com/voyagen/tvdeck/internal/metrics"
	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/service"
	"github.com/voyagen/tvdeck/internal/store"
)

// okUnlessBroken reports every URL containing "broken" as a 404.
func okUnlessBroken(_ context.Context, url string) health.Outcome {
	code := http.StatusOK
	status := models.StatusWorking
	if strings.Contains(url, "broken") {
		code = http.StatusNotFound
		status = models.StatusBroken
	}
	return health.Outcome{Status: status, StatusCode: &code}
}

type testEnv struct {
	handler http.Handler
	store   *store.Memory
	runner  *service.CheckRunner
}

func newTestEnv(t *testing.T, probe health.ProbeFunc) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	log := logging.Discard()
	runner := service.NewCheckRunner(mem, health.New(health.Options{Probe: probe}), nil, nil, log)
	cfg := &config.Config{ServerPort: "0", UserAgent: "tvdeck-test", Timeout: config.DefaultFetchTimeout}
	srv := New(mem, cfg, runner, metrics.New(), log)
	return &testEnv{handler: srv.Handler(), store: mem, runner: runner}
}

func (e *testEnv) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createStream(t *testing.T, body string) models.Stream {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/streams", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Stream](t, rec)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)
	rec := env.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStreamLifecycle(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)

	st := env.createStream(t, `{"title":"News 1080p","category":"News","servers":[{"url":"http://a/news.m3u8"}]}`)
	assert.Equal(t, "news-1080p", st.Slug)
	assert.Equal(t, models.QualityFHD, st.Quality)
	assert.True(t, st.Active)
	require.Len(t, st.Servers, 1)
	assert.Equal(t, "Server 1", st.Servers[0].Name)

	rec := env.do(t, http.MethodGet, "/api/streams/"+st.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/streams/"+st.ID, "application/json", `{"featured":true,"title":"World News"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Stream](t, rec)
	assert.True(t, updated.Featured)
	assert.Equal(t, "World News", updated.Title)

	rec = env.do(t, http.MethodPost, "/api/streams/"+st.ID+"/servers", "application/json", `{"name":"Backup","url":"http://b/news.m3u8"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	srv := decode[models.Server](t, rec)
	assert.Equal(t, 1, srv.Priority)
	assert.NotEmpty(t, srv.ID)

	rec = env.do(t, http.MethodPost, "/api/streams/"+st.ID+"/servers", "application/json", `{"url":"http://b/news.m3u8"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/streams?search=world", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Streams []models.Stream `json:"streams"`
		Total   int             `json:"total"`
		Limit   int             `json:"limit"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 50, list.Limit)
	require.Len(t, list.Streams[0].Servers, 2)

	rec = env.do(t, http.MethodDelete, "/api/servers/"+srv.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/streams/"+st.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/streams/"+st.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	apiErr := decode[APIError](t, rec)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.Error)
}

func TestStreamValidation(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"bad id", http.MethodGet, "/api/streams/42", "", http.StatusBadRequest},
		{"missing title", http.MethodPost, "/api/streams", `{"servers":[]}`, http.StatusBadRequest},
		{"bad server url", http.MethodPost, "/api/streams", `{"title":"X","servers":[{"url":"ftp://x"}]}`, http.StatusBadRequest},
		{"bad quality", http.MethodPost, "/api/streams", `{"title":"X","quality":"8K"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/streams", `{`, http.StatusBadRequest},
		{"bad bool", http.MethodGet, "/api/streams?active=maybe", "", http.StatusBadRequest},
		{"unknown stream", http.MethodDelete, "/api/streams/6f1c2c9e-8a7c-4d4f-9a51-0d6a4f3c2b11", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, "application/json", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	env.createStream(t, `{"title":"Dup"}`)
	rec := env.do(t, http.MethodPost, "/api/streams", "application/json", `{"title":"Dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	st := env.createStream(t, `{"title":"Patch me"}`)
	rec = env.do(t, http.MethodPatch, "/api/streams/"+st.ID, "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAllSync(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)
	env.createStream(t, `{"title":"A","servers":[{"url":"http://a/ok"},{"url":"http://a/broken"}]}`)
	b := env.createStream(t, `{"title":"B","servers":[{"url":"http://b/ok"}]}`)

	rec := env.do(t, http.MethodGet, "/api/streams/check-all/latest", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/streams/check-all", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "results")
	assert.Contains(t, raw, "stats")
	assert.Contains(t, raw, "summary")

	report := decode[models.CheckReport](t, rec)
	assert.Equal(t, models.HealthStats{Total: 3, Working: 2, Broken: 1, WorkingRate: "66.7"}, report.Stats)
	assert.Equal(t, 2, report.Summary.TotalStreams)
	assert.Equal(t, 3, report.Summary.TotalServers)

	rec = env.do(t, http.MethodPost, "/api/streams/check-all", "application/json", `{"streamIds":["`+b.ID+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.CheckReport](t, rec).Stats.Total)

	rec = env.do(t, http.MethodGet, "/api/streams/check-all/latest", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.CheckReport](t, rec).Summary.TotalServers)

	rec = env.do(t, http.MethodGet, "/api/streams/"+b.ID, "", "")
	st := decode[models.Stream](t, rec)
	require.NotNil(t, st.Servers[0].LastStatus)
	assert.Equal(t, models.StatusWorking, *st.Servers[0].LastStatus)

	rec = env.do(t, http.MethodPost, "/api/streams/check-all", "application/json", `{"streamIds":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAllAsync(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)
	env.createStream(t, `{"title":"A","servers":[{"url":"http://a/ok"}]}`)

	rec := env.do(t, http.MethodPost, "/api/streams/check-all?async=true", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.NotEmpty(t, body["jobId"])

	env.runner.Wait()
	rec = env.do(t, http.MethodGet, "/api/streams/check-all/latest", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100.0", decode[models.CheckReport](t, rec).Stats.WorkingRate)
}

func TestCheckAllConflict(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	env := newTestEnv(t, func(ctx context.Context, url string) health.Outcome {
		entered <- struct{}{}
		<-release
		return okUnlessBroken(ctx, url)
	})
	env.createStream(t, `{"title":"A","servers":[{"url":"http://a/ok"}]}`)

	done := make(chan int, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/api/streams/check-all", "", "").Code
	}()
	<-entered

	rec := env.do(t, http.MethodPost, "/api/streams/check-all", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/streams/check-all?async=true", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

const playlist = `#EXTM3U
#EXTINF:-1 tvg-id="one" group-title="News",One HD
http://up/one/720p.m3u8
#EXTINF:-1,Two
http://up/two.ts
`

func TestImportRawPlaylist(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)

	rec := env.do(t, http.MethodPost, "/api/playlists/import?category=Imported", "audio/x-mpegurl", playlist)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.ImportResult](t, rec)
	assert.Equal(t, service.ImportResult{Parsed: 2, StreamsCreated: 2, ServersAdded: 2}, res)

	two, err := env.store.GetStreamBySlug(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "Imported", *two.Category)

	rec = env.do(t, http.MethodPost, "/api/playlists/import", "text/plain", "#EXTM3U\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestImportRemotePlaylist(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list.m3u" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "tvdeck-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, playlist)
	}))
	defer upstream.Close()

	env := newTestEnv(t, okUnlessBroken)

	rec := env.do(t, http.MethodPost, "/api/playlists/import", "application/json", `{"url":"`+upstream.URL+`/list.m3u","inactive":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[service.ImportResult](t, rec).StreamsCreated)

	one, err := env.store.GetStreamBySlug(context.Background(), "one-hd")
	require.NoError(t, err)
	assert.False(t, one.Active)

	rec = env.do(t, http.MethodPost, "/api/playlists/import", "application/json", `{"url":"`+upstream.URL+`/missing"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/playlists/import", "application/json", `{"url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportPlaylist(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)
	env.createStream(t, `{"title":"Live","servers":[{"url":"http://a/broken"},{"url":"http://a/ok"}]}`)
	env.createStream(t, `{"title":"Hidden","active":false,"servers":[{"url":"http://h/ok"}]}`)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/streams/check-all", "", "").Code)

	rec := env.do(t, http.MethodGet, "/api/playlist.m3u", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/x-mpegurl", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U\n"))
	assert.Contains(t, body, "http://a/broken")
	assert.Contains(t, body, "http://a/ok")
	assert.NotContains(t, body, "http://h/ok")

	rec = env.do(t, http.MethodGet, "/api/playlist.m3u?skip_broken=true", "", "")
	assert.NotContains(t, rec.Body.String(), "http://a/broken")
	assert.Contains(t, rec.Body.String(), "http://a/ok")
}

func TestMetricsAndDocs(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)
	env.do(t, http.MethodGet, "/api/health", "", "")

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tvdeck_http_requests_total{method="GET",path="GET /api/health",status="200"} 1`)

	rec = env.do(t, http.MethodGet, "/api/docs", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/docs/openapi.yaml", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, okUnlessBroken)
	rec := env.do(t, http.MethodOptions, "/api/streams", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
