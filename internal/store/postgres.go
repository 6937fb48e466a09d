package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagen/tvdeck/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const streamColumns = `id, title, slug, description, logo, category, channel_id,
	quality, featured, active, created_at, updated_at`

const serverColumns = `id, stream_id, name, url, priority, quality,
	last_status, last_status_code, last_checked_at`

func scanStream(row pgx.Row) (*models.Stream, error) {
	var st models.Stream
	var quality string
	var created, updated time.Time
	err := row.Scan(&st.ID, &st.Title, &st.Slug, &st.Description, &st.Logo, &st.Category,
		&st.ChannelID, &quality, &st.Featured, &st.Active, &created, &updated)
	if err != nil {
		return nil, err
	}
	st.Quality = models.QualityTier(quality)
	st.CreatedAt = &created
	st.UpdatedAt = &updated
	st.Servers = []models.Server{}
	return &st, nil
}

func scanServer(row pgx.Row) (models.Server, error) {
	var srv models.Server
	var quality string
	err := row.Scan(&srv.ID, &srv.StreamID, &srv.Name, &srv.URL, &srv.Priority, &quality,
		&srv.LastStatus, &srv.LastStatusCode, &srv.LastCheckedAt)
	srv.Quality = models.QualityTier(quality)
	return srv, err
}

// ListStreams returns streams matching filter with their servers.
func (p *Postgres) ListStreams(ctx context.Context, filter StreamFilter) ([]models.Stream, int, error) {
	where, args := streamWhere(filter)

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM streams`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListStreams count: %w", err)
	}

	query := `SELECT ` + streamColumns + ` FROM streams` + where + ` ORDER BY featured DESC, title, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListStreams: %w", err)
	}
	defer rows.Close()

	var streams []models.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListStreams scan: %w", err)
		}
		streams = append(streams, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListStreams rows: %w", err)
	}

	if err := p.attachServers(ctx, streams); err != nil {
		return nil, 0, err
	}
	return streams, total, nil
}

// streamWhere builds the WHERE clause shared by the list and count queries.
func streamWhere(f StreamFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if f.Category != nil {
		args = append(args, *f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("active = $%d", len(args)))
	}
	if f.Featured != nil {
		args = append(args, *f.Featured)
		conds = append(conds, fmt.Sprintf("featured = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// attachServers loads the servers of all streams in one query.
func (p *Postgres) attachServers(ctx context.Context, streams []models.Stream) error {
	if len(streams) == 0 {
		return nil
	}
	ids := make([]string, len(streams))
	index := make(map[string]int, len(streams))
	for i, st := range streams {
		ids[i] = st.ID
		index[st.ID] = i
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE stream_id = ANY($1) ORDER BY priority, name, id`, ids)
	if err != nil {
		return fmt.Errorf("attachServers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return fmt.Errorf("attachServers scan: %w", err)
		}
		i := index[srv.StreamID]
		streams[i].Servers = append(streams[i].Servers, srv)
	}
	return rows.Err()
}

// GetStream returns one stream with servers.
func (p *Postgres) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	return p.getStream(ctx, "id", id)
}

// GetStreamBySlug returns one stream with servers.
func (p *Postgres) GetStreamBySlug(ctx context.Context, slug string) (*models.Stream, error) {
	return p.getStream(ctx, "slug", slug)
}

func (p *Postgres) getStream(ctx context.Context, column, value string) (*models.Stream, error) {
	st, err := scanStream(p.pool.QueryRow(ctx,
		`SELECT `+streamColumns+` FROM streams WHERE `+column+` = $1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetStream: %w", err)
	}
	streams := []models.Stream{*st}
	if err := p.attachServers(ctx, streams); err != nil {
		return nil, err
	}
	return &streams[0], nil
}

// CreateStream inserts a stream and its servers in one transaction.
func (p *Postgres) CreateStream(ctx context.Context, st *models.Stream) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Quality == "" {
		st.Quality = models.QualityUnknown
	}
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var created, updated time.Time
		err := tx.QueryRow(ctx,
			`INSERT INTO streams (id, title, slug, description, logo, category, channel_id, quality, featured, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING created_at, updated_at`,
			st.ID, st.Title, st.Slug, st.Description, st.Logo, st.Category, st.ChannelID,
			string(st.Quality), st.Featured, st.Active,
		).Scan(&created, &updated)
		if err != nil {
			return err
		}
		st.CreatedAt = &created
		st.UpdatedAt = &updated
		for i := range st.Servers {
			if err := insertServer(ctx, tx, st.ID, &st.Servers[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("CreateStream: %w", mapPgError(err))
	}
	return nil
}

func insertServer(ctx context.Context, tx pgx.Tx, streamID string, srv *models.Server) error {
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	if srv.Quality == "" {
		srv.Quality = models.QualityUnknown
	}
	srv.StreamID = streamID
	_, err := tx.Exec(ctx,
		`INSERT INTO servers (id, stream_id, name, url, priority, quality)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		srv.ID, streamID, srv.Name, srv.URL, srv.Priority, string(srv.Quality),
	)
	return err
}

// UpdateStream applies the non-nil fields of fields.
func (p *Postgres) UpdateStream(ctx context.Context, id string, fields StreamUpdate) error {
	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.Title != nil {
		add("title", *fields.Title)
	}
	if fields.Description != nil {
		add("description", *fields.Description)
	}
	if fields.Logo != nil {
		add("logo", *fields.Logo)
	}
	if fields.Category != nil {
		add("category", *fields.Category)
	}
	if fields.ChannelID != nil {
		add("channel_id", *fields.ChannelID)
	}
	if fields.Featured != nil {
		add("featured", *fields.Featured)
	}
	if fields.Active != nil {
		add("active", *fields.Active)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE streams SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("UpdateStream: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStream deletes a stream; servers go with it (ON DELETE CASCADE).
func (p *Postgres) DeleteStream(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM streams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteStream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddServer attaches srv to the stream.
func (p *Postgres) AddServer(ctx context.Context, streamID string, srv *models.Server) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM streams WHERE id = $1)`, streamID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if err := insertServer(ctx, tx, streamID, srv); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE streams SET updated_at = NOW() WHERE id = $1`, streamID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("AddServer: %w", mapPgError(err))
	}
	return nil
}

// DeleteServer removes one server.
func (p *Postgres) DeleteServer(ctx context.Context, serverID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM servers WHERE id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("DeleteServer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCheckTargets returns the servers to probe.
func (p *Postgres) ListCheckTargets(ctx context.Context, streamIDs []string) ([]models.CheckTarget, error) {
	query := `SELECT st.id, st.title, sv.id, sv.name, sv.url
		FROM servers sv JOIN streams st ON st.id = sv.stream_id`
	var args []any
	if len(streamIDs) > 0 {
		query += ` WHERE st.id = ANY($1)`
		args = append(args, streamIDs)
	} else {
		query += ` WHERE st.active`
	}
	query += ` ORDER BY st.title, st.id, sv.priority, sv.id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListCheckTargets: %w", err)
	}
	defer rows.Close()

	var targets []models.CheckTarget
	for rows.Next() {
		var t models.CheckTarget
		if err := rows.Scan(&t.StreamID, &t.StreamTitle, &t.ServerID, &t.ServerName, &t.URL); err != nil {
			return nil, fmt.Errorf("ListCheckTargets scan: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// RecordServerStatus writes each result onto its server row in one batch.
func (p *Postgres) RecordServerStatus(ctx context.Context, results []models.HealthCheckResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		checked, err := time.Parse(models.TimeLayout, r.CheckTime)
		if err != nil {
			checked = time.Now()
		}
		batch.Queue(
			`UPDATE servers SET last_status = $1, last_status_code = $2, last_checked_at = $3 WHERE id = $4`,
			r.Status, r.StatusCode, checked, r.ServerID,
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("RecordServerStatus: %w", err)
	}
	return nil
}

// mapPgError turns a unique violation into ErrConflict.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
