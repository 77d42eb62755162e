package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store persists catalog entities. All entity writes are find-or-create keyed
// by MBID so repeated hydration of the same entity never duplicates rows.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a catalog store.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "catalog")),
	}
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// FindArtist returns the artist with the given MBID, or nil when absent.
func (s *Store) FindArtist(ctx context.Context, mbid string) (*Artist, error) {
	var a Artist
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT mbid, name, created_at FROM artists WHERE mbid = ?`, mbid).
		Scan(&a.MBID, &a.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding artist: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT alias FROM artist_aliases WHERE artist_mbid = ? ORDER BY alias`, mbid)
	if err != nil {
		return nil, fmt.Errorf("loading aliases: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		a.Aliases = append(a.Aliases, alias)
	}
	return &a, rows.Err()
}

// CreateArtist inserts an artist and its aliases. Idempotent per MBID; a
// re-create refreshes the name and adds any aliases not yet stored.
func (s *Store) CreateArtist(ctx context.Context, artist *Artist) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (mbid, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (mbid) DO UPDATE SET name = excluded.name
	`, artist.MBID, artist.Name, nowString())
	if err != nil {
		return fmt.Errorf("creating artist: %w", err)
	}

	for _, alias := range artist.Aliases {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM artist_aliases WHERE artist_mbid = ? AND alias = ? COLLATE NOCASE`,
			artist.MBID, alias).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking alias: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO artist_aliases (id, artist_mbid, alias, created_at) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), artist.MBID, alias, nowString())
		if err != nil {
			return fmt.Errorf("creating alias: %w", err)
		}
	}

	s.logger.Debug("stored artist", slog.String("mbid", artist.MBID), slog.String("name", artist.Name))
	return nil
}

// ArtistByName returns the artist whose name matches exactly
// (case-insensitive), or nil when absent.
func (s *Store) ArtistByName(ctx context.Context, name string) (*Artist, error) {
	var mbid string
	err := s.db.QueryRowContext(ctx,
		`SELECT mbid FROM artists WHERE name = ? COLLATE NOCASE LIMIT 1`, name).Scan(&mbid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding artist by name: %w", err)
	}
	return s.FindArtist(ctx, mbid)
}

// ArtistByAlias returns the artist with a matching alias (case-insensitive),
// or nil when absent.
func (s *Store) ArtistByAlias(ctx context.Context, alias string) (*Artist, error) {
	var mbid string
	err := s.db.QueryRowContext(ctx,
		`SELECT artist_mbid FROM artist_aliases WHERE alias = ? COLLATE NOCASE LIMIT 1`,
		alias).Scan(&mbid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding artist by alias: %w", err)
	}
	return s.FindArtist(ctx, mbid)
}

// FindAlbum returns the album with the given MBID, or nil when absent.
func (s *Store) FindAlbum(ctx context.Context, mbid string) (*Album, error) {
	var a Album
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT mbid, title, type, created_at FROM albums WHERE mbid = ?`, mbid).
		Scan(&a.MBID, &a.Title, &a.Type, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding album: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	artists, err := s.albumArtists(ctx, mbid)
	if err != nil {
		return nil, err
	}
	a.Artists = artists
	return &a, nil
}

func (s *Store) albumArtists(ctx context.Context, albumMBID string) ([]Artist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.mbid, a.name FROM artists a
		JOIN album_artists aa ON aa.artist_mbid = a.mbid
		WHERE aa.album_mbid = ? ORDER BY a.name
	`, albumMBID)
	if err != nil {
		return nil, fmt.Errorf("loading album artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []Artist
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.MBID, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning album artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// CreateAlbum inserts an album and links its credited artists, which must
// already exist. Idempotent per MBID.
func (s *Store) CreateAlbum(ctx context.Context, album *Album) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO albums (mbid, title, type, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (mbid) DO UPDATE SET title = excluded.title, type = excluded.type
	`, album.MBID, album.Title, album.Type, nowString())
	if err != nil {
		return fmt.Errorf("creating album: %w", err)
	}

	for _, artist := range album.Artists {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO album_artists (album_mbid, artist_mbid) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, album.MBID, artist.MBID)
		if err != nil {
			return fmt.Errorf("linking album artist: %w", err)
		}
	}

	s.logger.Debug("stored album", slog.String("mbid", album.MBID), slog.String("title", album.Title))
	return nil
}

// AlbumsByArtist returns all albums credited to the artist.
func (s *Store) AlbumsByArtist(ctx context.Context, artistMBID string) ([]Album, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT al.mbid, al.title, al.type FROM albums al
		JOIN album_artists aa ON aa.album_mbid = al.mbid
		WHERE aa.artist_mbid = ? ORDER BY al.title
	`, artistMBID)
	if err != nil {
		return nil, fmt.Errorf("listing albums by artist: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.MBID, &a.Title, &a.Type); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// FindRelease returns the release with the given MBID, or nil when absent.
func (s *Store) FindRelease(ctx context.Context, mbid string) (*Release, error) {
	var r Release
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT mbid, album_mbid, created_at FROM releases WHERE mbid = ?`, mbid).
		Scan(&r.MBID, &r.AlbumMBID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding release: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// CreateRelease inserts a release. Its album must already exist.
func (s *Store) CreateRelease(ctx context.Context, release *Release) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO releases (mbid, album_mbid, created_at) VALUES (?, ?, ?)
		ON CONFLICT (mbid) DO UPDATE SET album_mbid = excluded.album_mbid
	`, release.MBID, release.AlbumMBID, nowString())
	if err != nil {
		return fmt.Errorf("creating release: %w", err)
	}
	return nil
}

// ReleasesOfAlbum returns all known releases of an album.
func (s *Store) ReleasesOfAlbum(ctx context.Context, albumMBID string) ([]Release, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mbid, album_mbid FROM releases WHERE album_mbid = ? ORDER BY mbid`, albumMBID)
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var releases []Release
	for rows.Next() {
		var r Release
		if err := rows.Scan(&r.MBID, &r.AlbumMBID); err != nil {
			return nil, fmt.Errorf("scanning release: %w", err)
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

// FindSong returns the song with the given MBID, or nil when absent.
func (s *Store) FindSong(ctx context.Context, mbid string) (*Song, error) {
	var song Song
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT mbid, title, duration_ms, created_at FROM songs WHERE mbid = ?`, mbid).
		Scan(&song.MBID, &song.Title, &song.DurationMS, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding song: %w", err)
	}
	song.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	artists, err := s.songArtists(ctx, mbid)
	if err != nil {
		return nil, err
	}
	song.Artists = artists
	return &song, nil
}

func (s *Store) songArtists(ctx context.Context, songMBID string) ([]Artist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.mbid, a.name FROM artists a
		JOIN song_artists sa ON sa.artist_mbid = a.mbid
		WHERE sa.song_mbid = ? ORDER BY a.name
	`, songMBID)
	if err != nil {
		return nil, fmt.Errorf("loading song artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []Artist
	for rows.Next() {
		var a Artist
		if err := rows.Scan(&a.MBID, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning song artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// FindOrCreateSong inserts a song if absent and links its artists and the
// release it appeared on. An existing song gains any missing links.
func (s *Store) FindOrCreateSong(ctx context.Context, song *Song, releaseMBID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO songs (mbid, title, duration_ms, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (mbid) DO NOTHING
	`, song.MBID, song.Title, song.DurationMS, nowString())
	if err != nil {
		return fmt.Errorf("creating song: %w", err)
	}

	for _, artist := range song.Artists {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO song_artists (song_mbid, artist_mbid) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, song.MBID, artist.MBID)
		if err != nil {
			return fmt.Errorf("linking song artist: %w", err)
		}
	}

	if releaseMBID != "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO song_releases (song_mbid, release_mbid) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, song.MBID, releaseMBID)
		if err != nil {
			return fmt.Errorf("linking song release: %w", err)
		}
	}
	return nil
}

// SongsOnRelease returns the songs linked to a release.
func (s *Store) SongsOnRelease(ctx context.Context, releaseMBID string) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT so.mbid, so.title, so.duration_ms FROM songs so
		JOIN song_releases sr ON sr.song_mbid = so.mbid
		WHERE sr.release_mbid = ? ORDER BY so.title
	`, releaseMBID)
	if err != nil {
		return nil, fmt.Errorf("listing songs on release: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var songs []Song
	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.MBID, &song.Title, &song.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// AlbumsOfSong returns the albums whose releases carry the song.
func (s *Store) AlbumsOfSong(ctx context.Context, songMBID string) ([]Album, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT al.mbid, al.title, al.type FROM albums al
		JOIN releases r ON r.album_mbid = al.mbid
		JOIN song_releases sr ON sr.release_mbid = r.mbid
		WHERE sr.song_mbid = ? ORDER BY al.title
	`, songMBID)
	if err != nil {
		return nil, fmt.Errorf("listing albums of song: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var albums []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.MBID, &a.Title, &a.Type); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// TotalListenedDuration sums the duration of every resolved scrobble whose
// song has a known length. Raw-query aggregate used by the stats endpoint.
func (s *Store) TotalListenedDuration(ctx context.Context) (time.Duration, error) {
	var totalMS sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(so.duration_ms) FROM scrobbles sc
		JOIN songs so ON so.mbid = sc.song_mbid
		WHERE sc.song_mbid != '' AND so.duration_ms > 0
	`).Scan(&totalMS)
	if err != nil {
		return 0, fmt.Errorf("summing listened duration: %w", err)
	}
	return time.Duration(totalMS.Int64) * time.Millisecond, nil
}
