package scrobble

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store persists scrobbles. played_at is the natural key: the history
// service never reports two plays at the same second, so inserts that
// collide on it are duplicates from an overlapping fetch and are dropped.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a scrobble store.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "scrobbles")),
	}
}

const scrobbleColumns = `id, played_at, song_title, album_title, artist_name,
	song_mbid, album_mbid, artist_mbid, resolved, repair_attempts, raw_payload, created_at`

func scanScrobble(row interface{ Scan(...any) error }) (*Scrobble, error) {
	var s Scrobble
	var playedAt, createdAt string
	var resolved int
	var raw sql.NullString
	err := row.Scan(&s.ID, &playedAt, &s.SongTitle, &s.AlbumTitle, &s.ArtistName,
		&s.SongMBID, &s.AlbumMBID, &s.ArtistMBID, &resolved, &s.RepairAttempts, &raw, &createdAt)
	if err != nil {
		return nil, err
	}
	s.PlayedAt, _ = time.Parse(time.RFC3339, playedAt)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.Resolved = resolved == 1
	if raw.Valid {
		s.RawPayload = []byte(raw.String)
	}
	return &s, nil
}

// Insert stores one scrobble, ignoring it when a play at the same instant
// already exists. Returns true when a row was written.
func (s *Store) Insert(ctx context.Context, sc *Scrobble) (bool, error) {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	var raw any
	if len(sc.RawPayload) > 0 {
		raw = string(sc.RawPayload)
	}
	resolved := 0
	if sc.Resolved {
		resolved = 1
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrobbles (`+scrobbleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (played_at) DO NOTHING
	`, sc.ID, sc.PlayedAt.UTC().Format(time.RFC3339), sc.SongTitle, sc.AlbumTitle, sc.ArtistName,
		sc.SongMBID, sc.AlbumMBID, sc.ArtistMBID, resolved, sc.RepairAttempts, raw,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("inserting scrobble: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// BulkInsert stores a batch of scrobbles and returns how many rows were
// actually written. Duplicate play times are silently dropped, which makes
// re-running a fetch over the same window a no-op.
func (s *Store) BulkInsert(ctx context.Context, scrobbles []*Scrobble) (int, error) {
	inserted := 0
	for _, sc := range scrobbles {
		ok, err := s.Insert(ctx, sc)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// Earliest returns the oldest stored play time, or the zero time when the
// table is empty.
func (s *Store) Earliest(ctx context.Context) (time.Time, error) {
	var playedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT played_at FROM scrobbles ORDER BY played_at ASC LIMIT 1`).Scan(&playedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("finding earliest scrobble: %w", err)
	}
	t, err := time.Parse(time.RFC3339, playedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing earliest played_at: %w", err)
	}
	return t, nil
}

// List returns one page of scrobbles, newest first. page starts at 1.
func (s *Store) List(ctx context.Context, page, pageSize int) ([]*Scrobble, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scrobbleColumns+` FROM scrobbles
		ORDER BY played_at DESC LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("listing scrobbles: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return collectScrobbles(rows)
}

// ByPlayedAt returns the scrobble played at the given instant, or nil.
func (s *Store) ByPlayedAt(ctx context.Context, playedAt time.Time) (*Scrobble, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scrobbleColumns+` FROM scrobbles WHERE played_at = ?`,
		playedAt.UTC().Format(time.RFC3339))
	sc, err := scanScrobble(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding scrobble by played_at: %w", err)
	}
	return sc, nil
}

// ByID returns the scrobble with the given id, or nil.
func (s *Store) ByID(ctx context.Context, id string) (*Scrobble, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scrobbleColumns+` FROM scrobbles WHERE id = ?`, id)
	sc, err := scanScrobble(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding scrobble by id: %w", err)
	}
	return sc, nil
}

// UpdateIDs overwrites the resolved ids on one record.
func (s *Store) UpdateIDs(ctx context.Context, id, songMBID, albumMBID, artistMBID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrobbles SET song_mbid = ?, album_mbid = ?, artist_mbid = ? WHERE id = ?
	`, songMBID, albumMBID, artistMBID, id)
	if err != nil {
		return fmt.Errorf("updating scrobble ids: %w", err)
	}
	return s.markResolved(ctx)
}

// Count returns the total number of stored scrobbles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrobbles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting scrobbles: %w", err)
	}
	return n, nil
}

// UnresolvedSongs returns records whose album is known but whose song is not,
// least-retried first so new failures don't starve the queue.
func (s *Store) UnresolvedSongs(ctx context.Context, limit int) ([]*Scrobble, error) {
	return s.unresolved(ctx, `song_mbid = '' AND album_mbid != '' AND song_title != ''`, limit)
}

// UnresolvedArtists returns records with a raw artist name but no artist id.
func (s *Store) UnresolvedArtists(ctx context.Context, limit int) ([]*Scrobble, error) {
	return s.unresolved(ctx, `artist_mbid = '' AND artist_name != ''`, limit)
}

// UnresolvedAlbums returns records whose artist is known and that carry an
// album title, but no album id.
func (s *Store) UnresolvedAlbums(ctx context.Context, limit int) ([]*Scrobble, error) {
	return s.unresolved(ctx, `album_mbid = '' AND artist_mbid != '' AND album_title != ''`, limit)
}

func (s *Store) unresolved(ctx context.Context, where string, limit int) ([]*Scrobble, error) {
	if limit < 1 {
		limit = 100
	}
	query := `SELECT ` + scrobbleColumns + ` FROM scrobbles WHERE ` + where +
		` ORDER BY repair_attempts ASC, played_at ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved scrobbles: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return collectScrobbles(rows)
}

// OutstandingCounts reports how many records each repair pass still has.
func (s *Store) OutstandingCounts(ctx context.Context) (Outstanding, error) {
	var out Outstanding
	queries := []struct {
		where string
		dst   *int
	}{
		{`song_mbid = '' AND album_mbid != '' AND song_title != ''`, &out.Songs},
		{`artist_mbid = '' AND artist_name != ''`, &out.Artists},
		{`album_mbid = '' AND artist_mbid != '' AND album_title != ''`, &out.Albums},
	}
	for _, q := range queries {
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM scrobbles WHERE `+q.where).Scan(q.dst)
		if err != nil {
			return out, fmt.Errorf("counting outstanding scrobbles: %w", err)
		}
	}
	return out, nil
}

// PropagateSong sets the song id on every record sharing the raw title and
// album id, so one successful match fixes all duplicates at once. Records
// with all three ids set are marked resolved.
func (s *Store) PropagateSong(ctx context.Context, songTitle, albumMBID, songMBID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scrobbles SET song_mbid = ?
		WHERE song_title = ? AND album_mbid = ? AND song_mbid = ''
	`, songMBID, songTitle, albumMBID)
	if err != nil {
		return 0, fmt.Errorf("propagating song id: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := s.markResolved(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// PropagateArtist sets the artist id on every record sharing the raw name.
func (s *Store) PropagateArtist(ctx context.Context, artistName, artistMBID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scrobbles SET artist_mbid = ?
		WHERE artist_name = ? AND artist_mbid = ''
	`, artistMBID, artistName)
	if err != nil {
		return 0, fmt.Errorf("propagating artist id: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := s.markResolved(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// PropagateAlbum sets the album id on every record sharing the raw album
// title and artist id.
func (s *Store) PropagateAlbum(ctx context.Context, albumTitle, artistMBID, albumMBID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scrobbles SET album_mbid = ?
		WHERE album_title = ? AND artist_mbid = ? AND album_mbid = ''
	`, albumMBID, albumTitle, artistMBID)
	if err != nil {
		return 0, fmt.Errorf("propagating album id: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := s.markResolved(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// SetSongID overwrites the song id on records matching the raw title, scoped
// to an album or an artist. Manual override for records the automatic passes
// keep getting wrong.
func (s *Store) SetSongID(ctx context.Context, songTitle, albumMBID, artistMBID, songMBID string) (int64, error) {
	var result sql.Result
	var err error
	switch {
	case albumMBID != "":
		result, err = s.db.ExecContext(ctx, `
			UPDATE scrobbles SET song_mbid = ? WHERE song_title = ? AND album_mbid = ?
		`, songMBID, songTitle, albumMBID)
	case artistMBID != "":
		result, err = s.db.ExecContext(ctx, `
			UPDATE scrobbles SET song_mbid = ? WHERE song_title = ? AND artist_mbid = ?
		`, songMBID, songTitle, artistMBID)
	default:
		return 0, fmt.Errorf("setting song id: album or artist scope required")
	}
	if err != nil {
		return 0, fmt.Errorf("setting song id: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := s.markResolved(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// markResolved flips the resolved flag on records that now carry all three
// ids.
func (s *Store) markResolved(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrobbles SET resolved = 1
		WHERE resolved = 0 AND song_mbid != '' AND album_mbid != '' AND artist_mbid != ''
	`)
	if err != nil {
		return fmt.Errorf("marking resolved: %w", err)
	}
	return nil
}

// BumpRepairAttempts records one more failed repair attempt.
func (s *Store) BumpRepairAttempts(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrobbles SET repair_attempts = repair_attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("bumping repair attempts: %w", err)
	}
	return nil
}

func collectScrobbles(rows *sql.Rows) ([]*Scrobble, error) {
	var scrobbles []*Scrobble
	for rows.Next() {
		sc, err := scanScrobble(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scrobble: %w", err)
		}
		scrobbles = append(scrobbles, sc)
	}
	return scrobbles, rows.Err()
}
