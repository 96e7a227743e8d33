// Package postgres persists crawl runs, posts, and comments in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	RunsTable       string
	PostsTable      string
	CommentsTable   string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PostStore writes crawl runs and their post records into Postgres.
type PostStore struct {
	pool     pool
	runs     string
	posts    string
	comments string
}

// New creates a PostStore over a fresh pgx pool.
func New(ctx context.Context, cfg Config) (*PostStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, cfg Config) (*PostStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	s := &PostStore{
		pool:     p,
		runs:     orDefault(cfg.RunsTable, "crawl_runs"),
		posts:    orDefault(cfg.PostsTable, "posts"),
		comments: orDefault(cfg.CommentsTable, "post_comments"),
	}
	for _, table := range []string{s.runs, s.posts, s.comments} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return s, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status      TEXT NOT NULL,
	profiles    TEXT[] NOT NULL,
	window_start DATE NOT NULL,
	window_end   DATE NOT NULL,
	error_text  TEXT
)`, s.runs),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT NOT NULL,
	profile     TEXT NOT NULL,
	post_index  INTEGER NOT NULL,
	url         TEXT NOT NULL,
	posted_at   TIMESTAMPTZ,
	likes       BIGINT,
	likes_state TEXT NOT NULL,
	caption     TEXT,
	in_window   BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, profile, post_index)
)`, s.posts),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id     TEXT NOT NULL,
	profile    TEXT NOT NULL,
	post_index INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (run_id, profile, post_index, position)
)`, s.comments),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// StartRun inserts or resets a run row in running state.
func (s *PostStore) StartRun(ctx context.Context, runID string, startedAt time.Time, profiles []string, window crawler.Window) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, status, profiles, window_start, window_end)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id) DO UPDATE
SET started_at = EXCLUDED.started_at, status = EXCLUDED.status, finished_at = NULL, error_text = NULL`, s.runs)
	_, err := s.pool.Exec(ctx, query,
		runID,
		startedAt.UTC(),
		"running",
		profiles,
		window.Start.In(time.UTC),
		window.End.In(time.UTC),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// CompleteRun records the final status of a run. errText may be empty.
func (s *PostStore) CompleteRun(ctx context.Context, runID string, finishedAt time.Time, status string, errText string) error {
	var errArg *string
	if errText != "" {
		errArg = &errText
	}
	query := fmt.Sprintf(`UPDATE %s SET finished_at = $2, status = $3, error_text = $4 WHERE run_id = $1`, s.runs)
	tag, err := s.pool.Exec(ctx, query, runID, finishedAt.UTC(), status, errArg)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run: run %s not found", runID)
	}
	return nil
}

// Append implements crawler.RecordSink. The post row and its comments are
// written in one transaction.
func (s *PostStore) Append(ctx context.Context, rec crawler.PostRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("post store is not configured")
	}
	if rec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin post tx: %w", err)
	}
	if err := s.insertPost(ctx, tx, rec); err != nil {
		return rollback(ctx, tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit post: %w", err)
	}
	return nil
}

func (s *PostStore) insertPost(ctx context.Context, tx pgx.Tx, rec crawler.PostRecord) error {
	postQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	profile,
	post_index,
	url,
	posted_at,
	likes,
	likes_state,
	caption,
	in_window
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.posts)
	args := []any{
		rec.RunID,
		rec.Profile,
		rec.Index,
		rec.URL,
		postedAt(rec.PostedAt),
		likes(rec.Likes),
		likesState(rec.Likes),
		rec.Caption,
		rec.InWindow,
	}
	if _, err := tx.Exec(ctx, postQuery, args...); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	commentQuery := fmt.Sprintf(`INSERT INTO %s (run_id, profile, post_index, position, body) VALUES ($1,$2,$3,$4,$5)`, s.comments)
	for i, body := range rec.Comments {
		if _, err := tx.Exec(ctx, commentQuery, rec.RunID, rec.Profile, rec.Index, i, body); err != nil {
			return fmt.Errorf("insert comment %d: %w", i, err)
		}
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}

func postedAt(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func likes(l crawler.LikeCount) any {
	if !l.IsKnown() {
		return nil
	}
	return int64(l.Value)
}

func likesState(l crawler.LikeCount) string {
	switch l.State {
	case crawler.LikesKnown:
		return "known"
	case crawler.LikesHidden:
		return "hidden"
	default:
		return "unknown"
	}
}
