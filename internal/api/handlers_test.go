package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/database"
	"github.com/ktrenholm/trackline/internal/scrobble"
)

const (
	idArtist  = "056e4f3e-d505-4dad-8ec1-d04f521cbb56"
	idAlbum   = "6e33b85b-ef4e-4a97-a0c4-3d26a2be8b32"
	idRelease = "79215cdf-4764-4dee-b0b9-fec1643df7c5"
	idSong    = "0b9e8065-4140-4e73-8c6c-bdbb5d0d49bb"
)

func setupServer(t *testing.T) (*httptest.Server, *scrobble.Store, *catalog.Store) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating database: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scrobbles := scrobble.NewStore(db, logger)
	cat := catalog.NewStore(db, logger)

	router := NewRouter(RouterDeps{
		Scrobbles: scrobbles,
		Catalog:   cat,
		Logger:    logger,
	})
	server := httptest.NewServer(router.Handler())
	t.Cleanup(server.Close)
	return server, scrobbles, cat
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // test server URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func seedCatalog(t *testing.T, cat *catalog.Store) {
	t.Helper()
	ctx := context.Background()

	artist := &catalog.Artist{MBID: idArtist, Name: "Daft Punk", Aliases: []string{"The Robots"}}
	if err := cat.CreateArtist(ctx, artist); err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	album := &catalog.Album{MBID: idAlbum, Title: "Random Access Memories", Type: "Album", Artists: []catalog.Artist{*artist}}
	if err := cat.CreateAlbum(ctx, album); err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if err := cat.CreateRelease(ctx, &catalog.Release{MBID: idRelease, AlbumMBID: idAlbum}); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	song := &catalog.Song{MBID: idSong, Title: "Get Lucky", DurationMS: 369000, Artists: []catalog.Artist{*artist}}
	if err := cat.FindOrCreateSong(ctx, song, idRelease); err != nil {
		t.Fatalf("FindOrCreateSong: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server, _, _ := setupServer(t)

	body := getJSON(t, server.URL+"/api/v1/health", http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestListScrobbles(t *testing.T) {
	server, scrobbles, _ := setupServer(t)
	ctx := context.Background()

	for hour := 10; hour < 15; hour++ {
		sc := &scrobble.Scrobble{
			PlayedAt:   time.Date(2023, 6, 1, hour, 0, 0, 0, time.UTC),
			SongTitle:  "Get Lucky",
			ArtistName: "Daft Punk",
		}
		if _, err := scrobbles.Insert(ctx, sc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	body := getJSON(t, server.URL+"/api/v1/scrobbles?page=1&page_size=3", http.StatusOK)
	if total := body["total"].(float64); total != 5 {
		t.Errorf("total = %v, want 5", total)
	}
	items := body["scrobbles"].([]any)
	if len(items) != 3 {
		t.Fatalf("len(scrobbles) = %d, want 3", len(items))
	}
	// Newest first.
	first := items[0].(map[string]any)
	if first["played_at"] != "2023-06-01T14:00:00Z" {
		t.Errorf("first played_at = %v", first["played_at"])
	}
}

func TestGetScrobble_ExpandsRelations(t *testing.T) {
	server, scrobbles, cat := setupServer(t)
	seedCatalog(t, cat)

	playedAt := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	sc := &scrobble.Scrobble{
		PlayedAt:   playedAt,
		SongTitle:  "Get Lucky",
		AlbumTitle: "Random Access Memories",
		ArtistName: "Daft Punk",
		SongMBID:   idSong,
		AlbumMBID:  idRelease,
		ArtistMBID: idArtist,
	}
	if _, err := scrobbles.Insert(context.Background(), sc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	body := getJSON(t, server.URL+"/api/v1/scrobbles/2023-06-01T10:00:00Z", http.StatusOK)
	song := body["song"].(map[string]any)
	if song["title"] != "Get Lucky" {
		t.Errorf("song title = %v", song["title"])
	}
	album := body["album"].(map[string]any)
	if album["mbid"] != idAlbum {
		t.Errorf("album mbid = %v, want %s", album["mbid"], idAlbum)
	}
	artist := body["artist"].(map[string]any)
	if artist["name"] != "Daft Punk" {
		t.Errorf("artist name = %v", artist["name"])
	}

	// Epoch form addresses the same record.
	epoch := getJSON(t, server.URL+"/api/v1/scrobbles/1685613600", http.StatusOK)
	if epoch["scrobble"] == nil {
		t.Error("epoch lookup returned no scrobble")
	}
}

func TestGetScrobble_NotFound(t *testing.T) {
	server, _, _ := setupServer(t)
	getJSON(t, server.URL+"/api/v1/scrobbles/2020-01-01T00:00:00Z", http.StatusNotFound)
	getJSON(t, server.URL+"/api/v1/scrobbles/not-a-time", http.StatusBadRequest)
}

func TestGetArtistSongRelease(t *testing.T) {
	server, _, cat := setupServer(t)
	seedCatalog(t, cat)

	artist := getJSON(t, server.URL+"/api/v1/artists/"+idArtist, http.StatusOK)
	if albums := artist["albums"].([]any); len(albums) != 1 {
		t.Errorf("artist albums = %d, want 1", len(albums))
	}

	song := getJSON(t, server.URL+"/api/v1/songs/"+idSong, http.StatusOK)
	if albums := song["albums"].([]any); len(albums) != 1 {
		t.Errorf("song albums = %d, want 1", len(albums))
	}

	release := getJSON(t, server.URL+"/api/v1/releases/"+idRelease, http.StatusOK)
	if songs := release["songs"].([]any); len(songs) != 1 {
		t.Errorf("release songs = %d, want 1", len(songs))
	}

	getJSON(t, server.URL+"/api/v1/artists/00000000-0000-0000-0000-000000000000", http.StatusNotFound)
}

func TestStats(t *testing.T) {
	server, scrobbles, cat := setupServer(t)
	seedCatalog(t, cat)

	sc := &scrobble.Scrobble{
		PlayedAt:   time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC),
		SongTitle:  "Get Lucky",
		SongMBID:   idSong,
		AlbumMBID:  idRelease,
		ArtistMBID: idArtist,
		Resolved:   true,
	}
	if _, err := scrobbles.Insert(context.Background(), sc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	body := getJSON(t, server.URL+"/api/v1/stats", http.StatusOK)
	if body["scrobbles"].(float64) != 1 {
		t.Errorf("scrobbles = %v, want 1", body["scrobbles"])
	}
	if ms := body["listened_duration_ms"].(float64); ms != 369000 {
		t.Errorf("listened_duration_ms = %v, want 369000", ms)
	}
}
