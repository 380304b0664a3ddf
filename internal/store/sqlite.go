// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/InsiderP/video-streaming/internal/media"
)

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended SQLite configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id                TEXT PRIMARY KEY,
	source_path       TEXT NOT NULL,
	status            TEXT NOT NULL,
	processing_job_id TEXT NOT NULL DEFAULT '',
	duration_seconds  REAL NOT NULL DEFAULT 0,
	thumbnail_path    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS renditions (
	id            TEXT PRIMARY KEY,
	video_id      TEXT NOT NULL REFERENCES videos(id),
	quality       TEXT NOT NULL,
	bitrate_kbps  INTEGER NOT NULL,
	width         INTEGER NOT NULL,
	height        INTEGER NOT NULL,
	playlist_path TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	UNIQUE (video_id, quality)
);
`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs and
// applies the schema. WAL mode and busy_timeout apply to every pooled
// connection because they are carried in the DSN.
func Open(dbPath string, cfg Config) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema failed: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateVideo inserts a new video row.
func (s *SQLiteStore) CreateVideo(ctx context.Context, v *media.Video) error {
	if v.Status == "" {
		v.Status = media.StatusUploading
	}
	if !v.Status.IsValid() {
		return fmt.Errorf("store: invalid status %q", v.Status)
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, source_path, status, processing_job_id, duration_seconds, thumbnail_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SourcePath, string(v.Status), v.ProcessingJobID, v.DurationSeconds, v.ThumbnailPath, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create video: %w", err)
	}
	return nil
}

// GetVideo fetches one video row by id.
func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (*media.Video, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_path, status, processing_job_id, duration_seconds, thumbnail_path, created_at, updated_at
		FROM videos WHERE id = ?`, id)

	var v media.Video
	var status string
	err := row.Scan(&v.ID, &v.SourcePath, &status, &v.ProcessingJobID, &v.DurationSeconds, &v.ThumbnailPath, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get video: %w", err)
	}
	v.Status = media.Status(status)
	return &v, nil
}

// UpdateStatus applies a state machine transition inside one transaction.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, next media.Status) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE videos SET status = ?, updated_at = ? WHERE id = ?`,
			string(next), time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: update status: %w", err)
		}
		return nil
	})
}

// SetProcessingJobID records the cloud job id. Rejected on deleted videos.
func (s *SQLiteStore) SetProcessingJobID(ctx context.Context, id, jobID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == media.StatusDeleted {
			return fmt.Errorf("%w: video deleted", ErrInvalidTransition)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE videos SET processing_job_id = ?, updated_at = ? WHERE id = ?`,
			jobID, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: set job id: %w", err)
		}
		return nil
	})
}

// SetMediaInfo records probed duration and thumbnail location.
func (s *SQLiteStore) SetMediaInfo(ctx context.Context, id string, durationSeconds float64, thumbnailPath string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == media.StatusDeleted {
			return fmt.Errorf("%w: video deleted", ErrInvalidTransition)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE videos SET duration_seconds = ?, thumbnail_path = ?, updated_at = ? WHERE id = ?`,
			durationSeconds, thumbnailPath, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: set media info: %w", err)
		}
		return nil
	})
}

// InsertRendition persists one completed quality rung.
func (s *SQLiteStore) InsertRendition(ctx context.Context, r *media.Rendition) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentStatus(ctx, tx, r.VideoID)
		if err != nil {
			return err
		}
		if current == media.StatusDeleted {
			return fmt.Errorf("%w: video deleted", ErrInvalidTransition)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO renditions (id, video_id, quality, bitrate_kbps, width, height, playlist_path, size_bytes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.VideoID, r.Quality, r.BitrateKbps, r.Width, r.Height, r.PlaylistPath, r.SizeBytes, r.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s/%s", ErrDuplicateRendition, r.VideoID, r.Quality)
			}
			return fmt.Errorf("store: insert rendition: %w", err)
		}
		return nil
	})
}

// UpdateRenditionLocation repoints an existing rendition's playlist.
func (s *SQLiteStore) UpdateRenditionLocation(ctx context.Context, videoID, quality, playlistPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE renditions SET playlist_path = ? WHERE video_id = ? AND quality = ?`,
		playlistPath, videoID, quality)
	if err != nil {
		return fmt.Errorf("store: update rendition location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update rendition location: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRenditions returns all renditions for a video, highest bitrate first.
func (s *SQLiteStore) ListRenditions(ctx context.Context, videoID string) ([]media.Rendition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_id, quality, bitrate_kbps, width, height, playlist_path, size_bytes, created_at
		FROM renditions WHERE video_id = ? ORDER BY bitrate_kbps DESC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("store: list renditions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []media.Rendition
	for rows.Next() {
		var r media.Rendition
		if err := rows.Scan(&r.ID, &r.VideoID, &r.Quality, &r.BitrateKbps, &r.Width, &r.Height, &r.PlaylistPath, &r.SizeBytes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan rendition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRendition fetches one rendition by (video, quality).
func (s *SQLiteStore) GetRendition(ctx context.Context, videoID, quality string) (*media.Rendition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, video_id, quality, bitrate_kbps, width, height, playlist_path, size_bytes, created_at
		FROM renditions WHERE video_id = ? AND quality = ?`, videoID, quality)

	var r media.Rendition
	err := row.Scan(&r.ID, &r.VideoID, &r.Quality, &r.BitrateKbps, &r.Width, &r.Height, &r.PlaylistPath, &r.SizeBytes, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get rendition: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func currentStatus(ctx context.Context, tx *sql.Tx, id string) (media.Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM videos WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: read status: %w", err)
	}
	return media.Status(status), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
