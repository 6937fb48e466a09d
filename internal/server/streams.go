package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/quality"
	"github.com/voyagen/tvdeck/internal/service"
	"github.com/voyagen/tvdeck/internal/store"
)

// --- stream handlers ---

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.StreamFilter{
		Search: q.Get("search"),
	}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	var err error
	if filter.Active, err = parseBoolParam(q.Get("active"), "active"); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if filter.Featured, err = parseBoolParam(q.Get("featured"), "featured"); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", v))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid offset: %s", v))
			return
		}
		filter.Offset = n
	}

	// Apply defaults so the response reflects actual values used.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	streams, total, err := s.store.ListStreams(r.Context(), filter)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if streams == nil {
		streams = []models.Stream{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"streams": streams,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

type serverRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Priority *int   `json:"priority"`
	Quality  string `json:"quality"`
}

type createStreamRequest struct {
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description *string         `json:"description"`
	Logo        *string         `json:"logo"`
	Category    *string         `json:"category"`
	ChannelID   *string         `json:"channel_id"`
	Quality     string          `json:"quality"`
	Featured    bool            `json:"featured"`
	Active      *bool           `json:"active"`
	Servers     []serverRequest `json:"servers"`
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	if req.Slug == "" {
		req.Slug = service.Slugify(req.Title)
	}
	if req.Slug == "" || req.Slug != service.Slugify(req.Slug) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid slug: %q", req.Slug))
		return
	}

	st := &models.Stream{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Logo:        req.Logo,
		Category:    req.Category,
		ChannelID:   req.ChannelID,
		Featured:    req.Featured,
		Active:      req.Active == nil || *req.Active,
	}
	texts := []string{req.Title}
	for i, sr := range req.Servers {
		srv, err := newServer(sr, i, req.Title)
		if err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("servers[%d]: %w", i, err))
			return
		}
		st.Servers = append(st.Servers, srv)
		texts = append(texts, srv.URL)
	}
	st.Quality = models.QualityTier(req.Quality)
	if req.Quality == "" {
		st.Quality = quality.Classify(texts...)
	} else if !validQuality(st.Quality) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid quality: %s", req.Quality))
		return
	}

	if err := s.store.CreateStream(r.Context(), st); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.writeErr(w, http.StatusConflict, fmt.Errorf("stream %q or one of its server URLs already exists", st.Slug))
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}

	created, err := s.store.GetStream(r.Context(), st.ID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}

	st, err := s.store.GetStream(r.Context(), id)
	if err != nil {
		s.writeStoreErr(w, err, "stream", id)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type updateStreamRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Logo        *string `json:"logo"`
	Category    *string `json:"category"`
	ChannelID   *string `json:"channel_id"`
	Featured    *bool   `json:"featured"`
	Active      *bool   `json:"active"`
}

func (s *Server) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}

	var req updateStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("title cannot be empty"))
		return
	}

	fields := store.StreamUpdate{
		Title:       req.Title,
		Description: req.Description,
		Logo:        req.Logo,
		Category:    req.Category,
		ChannelID:   req.ChannelID,
		Featured:    req.Featured,
		Active:      req.Active,
	}
	if fields.Empty() {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("no fields to update"))
		return
	}

	if err := s.store.UpdateStream(r.Context(), id, fields); err != nil {
		s.writeStoreErr(w, err, "stream", id)
		return
	}

	// Return the updated stream.
	st, err := s.store.GetStream(r.Context(), id)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteStream(r.Context(), id); err != nil {
		s.writeStoreErr(w, err, "stream", id)
		return
	}
	writeNoContent(w)
}

// --- server handlers ---

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	streamID, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}

	var req serverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	st, err := s.store.GetStream(r.Context(), streamID)
	if err != nil {
		s.writeStoreErr(w, err, "stream", streamID)
		return
	}
	next := 0
	for _, existing := range st.Servers {
		next = max(next, existing.Priority+1)
	}
	srv, err := newServer(req, next, st.Title)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.AddServer(r.Context(), streamID, &srv); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.writeErr(w, http.StatusConflict, fmt.Errorf("stream %s already has server %s", streamID, srv.URL))
			return
		}
		s.writeStoreErr(w, err, "stream", streamID)
		return
	}
	writeJSON(w, http.StatusCreated, srv)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteServer(r.Context(), id); err != nil {
		s.writeStoreErr(w, err, "server", id)
		return
	}
	writeNoContent(w)
}

// newServer validates a server request. defaultPriority is used when the
// request does not set one.
func newServer(req serverRequest, defaultPriority int, title string) (models.Server, error) {
	if err := validateStreamURL(req.URL); err != nil {
		return models.Server{}, err
	}
	srv := models.Server{
		Name:     strings.TrimSpace(req.Name),
		URL:      req.URL,
		Priority: defaultPriority,
		Quality:  models.QualityTier(req.Quality),
	}
	if req.Priority != nil {
		if *req.Priority < 0 {
			return models.Server{}, fmt.Errorf("priority must not be negative")
		}
		srv.Priority = *req.Priority
	}
	if srv.Name == "" {
		srv.Name = fmt.Sprintf("Server %d", srv.Priority+1)
	}
	if req.Quality == "" {
		srv.Quality = quality.Classify(req.URL, title)
	} else if !validQuality(srv.Quality) {
		return models.Server{}, fmt.Errorf("invalid quality: %s", req.Quality)
	}
	return srv, nil
}

func validateStreamURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	if u, err := url.ParseRequestURI(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be a valid http or https URL")
	}
	return nil
}

func validQuality(q models.QualityTier) bool {
	return q == models.QualityUnknown || q.Rank() > 0
}

// parseID extracts a path parameter by name and checks that it is a UUID.
func parseID(r *http.Request, param string) (string, error) {
	v := r.PathValue(param)
	if _, err := uuid.Parse(v); err != nil {
		return "", fmt.Errorf("invalid %s: %s", param, v)
	}
	return v, nil
}

// parseBoolParam parses an optional boolean query parameter.
func parseBoolParam(v, name string) (*bool, error) {
	switch v {
	case "":
		return nil, nil
	case "true", "1":
		b := true
		return &b, nil
	case "false", "0":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid %s: %s (use true or false)", name, v)
	}
}

// writeStoreErr maps store sentinels to HTTP statuses.
func (s *Server) writeStoreErr(w http.ResponseWriter, err error, kind, id string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("%s %s not found", kind, id))
	case errors.Is(err, store.ErrConflict):
		s.writeErr(w, http.StatusConflict, err)
	default:
		s.writeErr(w, http.StatusInternalServerError, err)
	}
}
