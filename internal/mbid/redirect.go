package mbid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Redirect maps an obsolete MBID to its current one. Forced rows are
// operator-created and are never overwritten by automatic discovery.
type Redirect struct {
	ObsoleteMBID string    `json:"obsolete_mbid"`
	CurrentMBID  string    `json:"current_mbid"`
	Forced       bool      `json:"forced"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service persists and consults the redirect table.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewService creates a redirect service.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With(slog.String("component", "redirects")),
	}
}

// Resolve returns the current MBID for id, or id unchanged when no redirect
// exists. Called before every local or remote lookup by possibly-obsolete id.
func (s *Service) Resolve(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT current_mbid FROM mbid_redirects WHERE obsolete_mbid = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving redirect: %w", err)
	}
	return current, nil
}

// Record stores an automatically discovered redirect. It is idempotent and
// never downgrades a forced row.
func (s *Service) Record(ctx context.Context, obsolete, current string) error {
	return s.record(ctx, obsolete, current, false)
}

// RecordForced stores an operator-created redirect, overwriting any existing
// row for the obsolete id.
func (s *Service) RecordForced(ctx context.Context, obsolete, current string) error {
	return s.record(ctx, obsolete, current, true)
}

func (s *Service) record(ctx context.Context, obsolete, current string, forced bool) error {
	if obsolete == "" || current == "" || obsolete == current {
		return nil
	}

	var err error
	if forced {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO mbid_redirects (obsolete_mbid, current_mbid, forced, created_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT (obsolete_mbid) DO UPDATE SET current_mbid = excluded.current_mbid, forced = 1
		`, obsolete, current, time.Now().UTC().Format(time.RFC3339))
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO mbid_redirects (obsolete_mbid, current_mbid, forced, created_at)
			VALUES (?, ?, 0, ?)
			ON CONFLICT (obsolete_mbid) DO UPDATE SET current_mbid = excluded.current_mbid
				WHERE mbid_redirects.forced = 0
		`, obsolete, current, time.Now().UTC().Format(time.RFC3339))
	}
	if err != nil {
		return fmt.Errorf("recording redirect: %w", err)
	}

	s.logger.Info("recorded redirect",
		slog.String("obsolete", obsolete),
		slog.String("current", current),
		slog.Bool("forced", forced))
	return nil
}

// List returns all known redirects.
func (s *Service) List(ctx context.Context) ([]Redirect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT obsolete_mbid, current_mbid, forced, created_at
		FROM mbid_redirects ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing redirects: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var redirects []Redirect
	for rows.Next() {
		var r Redirect
		var forced int
		var createdAt string
		if err := rows.Scan(&r.ObsoleteMBID, &r.CurrentMBID, &forced, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning redirect: %w", err)
		}
		r.Forced = forced == 1
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		redirects = append(redirects, r)
	}
	return redirects, rows.Err()
}

// entityCopies moves catalog rows under their current id before any
// reference is repointed, so repointed foreign keys always have a parent.
// A row that already exists under the current id is left alone; the
// obsolete one is dropped afterwards and its remaining links cascade away.
var entityCopies = []string{
	`INSERT OR IGNORE INTO artists (mbid, name, created_at)
		SELECT r.current_mbid, a.name, a.created_at
		FROM artists a JOIN mbid_redirects r ON a.mbid = r.obsolete_mbid`,
	`INSERT OR IGNORE INTO albums (mbid, title, type, created_at)
		SELECT r.current_mbid, a.title, a.type, a.created_at
		FROM albums a JOIN mbid_redirects r ON a.mbid = r.obsolete_mbid`,
	`INSERT OR IGNORE INTO releases (mbid, album_mbid, created_at)
		SELECT r.current_mbid, rel.album_mbid, rel.created_at
		FROM releases rel JOIN mbid_redirects r ON rel.mbid = r.obsolete_mbid`,
	`INSERT OR IGNORE INTO songs (mbid, title, duration_ms, created_at)
		SELECT r.current_mbid, s.title, s.duration_ms, s.created_at
		FROM songs s JOIN mbid_redirects r ON s.mbid = r.obsolete_mbid`,
}

// rewriteTargets lists every reference column that may hold a redirected id.
// Link tables carry a composite primary key, so their rewrite skips rows
// that would collide with an existing link under the current id.
var rewriteTargets = []struct {
	table, column string
	orIgnore      bool
}{
	{"scrobbles", "song_mbid", false},
	{"scrobbles", "album_mbid", false},
	{"scrobbles", "artist_mbid", false},
	{"artist_aliases", "artist_mbid", false},
	{"releases", "album_mbid", false},
	{"album_artists", "album_mbid", true},
	{"album_artists", "artist_mbid", true},
	{"song_artists", "song_mbid", true},
	{"song_artists", "artist_mbid", true},
	{"song_releases", "song_mbid", true},
	{"song_releases", "release_mbid", true},
}

// RewriteAll repoints every stored reference that still uses an obsolete
// MBID at its current one: scrobble columns, entity link rows, alias
// ownership, and release parents. Obsolete entity rows are dropped once
// nothing points at them. Returns the number of reference rows updated.
func (s *Service) RewriteAll(ctx context.Context) (int64, error) {
	for _, query := range entityCopies {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return 0, fmt.Errorf("copying entity rows: %w", err)
		}
	}

	var total int64
	for _, t := range rewriteTargets {
		verb := "UPDATE"
		if t.orIgnore {
			verb = "UPDATE OR IGNORE"
		}
		query := fmt.Sprintf(`
			%[1]s %[2]s SET %[3]s = (
				SELECT current_mbid FROM mbid_redirects WHERE obsolete_mbid = %[2]s.%[3]s
			)
			WHERE %[3]s IN (SELECT obsolete_mbid FROM mbid_redirects)
		`, verb, t.table, t.column) //nolint:gosec // G201: table and column names are a static list
		result, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return total, fmt.Errorf("rewriting %s.%s: %w", t.table, t.column, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}

	// Dropping the obsolete entity rows cascades away any link row that
	// collided during the rewrite and still points at an obsolete id.
	for _, table := range []string{"songs", "releases", "albums", "artists"} {
		query := fmt.Sprintf(
			`DELETE FROM %s WHERE mbid IN (SELECT obsolete_mbid FROM mbid_redirects)`,
			table) //nolint:gosec // G201: table names are a static list
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return total, fmt.Errorf("dropping obsolete %s rows: %w", table, err)
		}
	}

	if total > 0 {
		s.logger.Info("rewrote obsolete ids", slog.Int64("rows", total))
	}
	return total, nil
}
