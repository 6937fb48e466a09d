package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/voyagen/tvdeck/internal/fetcher"
	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/service"
	"github.com/voyagen/tvdeck/internal/store"
)

type importRequest struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Inactive bool   `json:"inactive"`
}

// handleImportPlaylist accepts either a JSON body naming a remote playlist
// or the playlist text itself (text/plain, audio/x-mpegurl, ...). For raw
// bodies the options come from the category and inactive query params.
func (s *Server) handleImportPlaylist(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		entries []models.ChannelEntry
		opts    service.ImportOptions
	)
	if mediaType == "application/json" {
		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
		if err := validateStreamURL(req.URL); err != nil {
			s.writeErr(w, http.StatusBadRequest, err)
			return
		}
		opts = service.ImportOptions{Category: req.Category, Inactive: req.Inactive}

		var err error
		entries, err = fetcher.FetchM3U(r.Context(), req.URL, s.cfg.UserAgent, s.cfg.Timeout)
		if err != nil {
			s.countImport("error")
			s.writeErr(w, http.StatusBadGateway, fmt.Errorf("fetch playlist: %w", err))
			return
		}
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, fetcher.MaxPlaylistBytes))
		if err != nil {
			s.writeErr(w, http.StatusRequestEntityTooLarge, fmt.Errorf("read playlist: %w", err))
			return
		}
		q := r.URL.Query()
		inactive, err := parseBoolParam(q.Get("inactive"), "inactive")
		if err != nil {
			s.writeErr(w, http.StatusBadRequest, err)
			return
		}
		opts = service.ImportOptions{Category: q.Get("category"), Inactive: inactive != nil && *inactive}
		entries = fetcher.Parse(string(body))
	}

	res, err := service.ImportPlaylist(r.Context(), s.store, entries, opts)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPlaylist) {
			s.countImport("empty")
			s.writeErr(w, http.StatusUnprocessableEntity, err)
			return
		}
		s.countImport("error")
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.countImport("ok")

	s.log.WithField("parsed", res.Parsed).
		WithField("created", res.StreamsCreated).
		WithField("servers_added", res.ServersAdded).
		Info("playlist imported")
	writeJSON(w, http.StatusOK, res)
}

// handleExportPlaylist writes every active stream as an M3U playlist.
// skip_broken=true drops servers whose last check failed; primary_only=true
// keeps one server per stream.
func (s *Server) handleExportPlaylist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skipBroken, err := parseBoolParam(q.Get("skip_broken"), "skip_broken")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	primaryOnly, err := parseBoolParam(q.Get("primary_only"), "primary_only")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}

	active := true
	filter := store.StreamFilter{Active: &active}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	streams, _, err := s.store.ListStreams(r.Context(), filter)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}

	playlist := service.BuildPlaylist(streams, service.ExportOptions{
		SkipBroken:  skipBroken != nil && *skipBroken,
		PrimaryOnly: primaryOnly != nil && *primaryOnly,
	})
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", `inline; filename="tvdeck.m3u"`)
	if err := service.WritePlaylist(w, playlist); err != nil {
		s.log.WithError(err).Warn("write playlist")
	}
}

func (s *Server) countImport(result string) {
	if s.metrics != nil {
		s.metrics.IncImport(result)
	}
}
