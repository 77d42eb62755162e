package lastfm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ktrenholm/trackline/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimiter() *provider.RateLimiterMap {
	return provider.NewRateLimiterMap(map[provider.ServiceName]time.Duration{
		provider.NameLastFM:      time.Millisecond,
		provider.NameMusicBrainz: time.Millisecond,
	})
}

const recentTracksBody = `{
  "recenttracks": {
    "track": [
      {
        "name": "Get Lucky",
        "mbid": "0b9e8065-4140-4e73-8c6c-bdbb5d0d49bb",
        "artist": {"#text": "Daft Punk", "mbid": "056e4f3e-d505-4dad-8ec1-d04f521cbb56"},
        "album": {"#text": "Random Access Memories", "mbid": "6e33b85b-ef4e-4a97-a0c4-3d26a2be8b32"},
        "@attr": {"nowplaying": "true"}
      },
      {
        "name": "Instant Crush",
        "mbid": "",
        "artist": {"#text": "Daft Punk", "mbid": "056e4f3e-d505-4dad-8ec1-d04f521cbb56"},
        "album": {"#text": "Random Access Memories", "mbid": ""},
        "date": {"uts": "1686000000", "#text": "05 Jun 2023, 21:20"}
      }
    ],
    "@attr": {"user": "listener", "page": "1", "perPage": "200", "totalPages": "42", "total": "8321"}
  }
}`

func TestRecentTracks(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"method":  q.Get("method"),
			"user":    q.Get("user"),
			"api_key": q.Get("api_key"),
			"to":      q.Get("to"),
			"limit":   q.Get("limit"),
			"page":    q.Get("page"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(recentTracksBody))
	}))
	defer server.Close()

	client := NewWithBaseURL(testLimiter(), "test-key", testLogger(), server.URL)
	page, err := client.RecentTracks(context.Background(), RecentTracksParams{
		User:  "listener",
		To:    time.Unix(1700000000, 0),
		Limit: 200,
		Page:  3,
	})
	if err != nil {
		t.Fatalf("RecentTracks() error = %v", err)
	}

	if gotQuery["method"] != "user.getrecenttracks" {
		t.Errorf("method = %q, want user.getrecenttracks", gotQuery["method"])
	}
	if gotQuery["user"] != "listener" || gotQuery["api_key"] != "test-key" {
		t.Errorf("user/api_key = %q/%q", gotQuery["user"], gotQuery["api_key"])
	}
	if gotQuery["to"] != "1700000000" {
		t.Errorf("to = %q, want 1700000000", gotQuery["to"])
	}
	if gotQuery["page"] != "3" {
		t.Errorf("page = %q, want 3", gotQuery["page"])
	}

	if page.TotalPages != 42 {
		t.Errorf("TotalPages = %d, want 42", page.TotalPages)
	}
	if len(page.Tracks) != 2 {
		t.Fatalf("len(Tracks) = %d, want 2", len(page.Tracks))
	}

	now := page.Tracks[0]
	if !now.NowPlaying {
		t.Error("first track should be now-playing")
	}
	if !now.PlayedAt.IsZero() {
		t.Errorf("now-playing track PlayedAt = %v, want zero", now.PlayedAt)
	}
	if now.TitleMBID != "0b9e8065-4140-4e73-8c6c-bdbb5d0d49bb" {
		t.Errorf("TitleMBID = %q", now.TitleMBID)
	}

	played := page.Tracks[1]
	if played.NowPlaying {
		t.Error("second track should not be now-playing")
	}
	if got := played.PlayedAt.Unix(); got != 1686000000 {
		t.Errorf("PlayedAt = %d, want 1686000000", got)
	}
	if played.Artist != "Daft Punk" || played.Album != "Random Access Memories" {
		t.Errorf("Artist/Album = %q/%q", played.Artist, played.Album)
	}
	if played.AlbumMBID != "" {
		t.Errorf("AlbumMBID = %q, want empty", played.AlbumMBID)
	}
	if len(played.Raw) == 0 {
		t.Error("Raw payload should be preserved")
	}
}

func TestRecentTracks_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": 6, "message": "User not found"}`))
	}))
	defer server.Close()

	client := NewWithBaseURL(testLimiter(), "test-key", testLogger(), server.URL)
	_, err := client.RecentTracks(context.Background(), RecentTracksParams{User: "nobody"})
	if err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestRecentTracks_MissingAPIKey(t *testing.T) {
	client := NewWithBaseURL(testLimiter(), "", testLogger(), "http://unused.invalid")
	_, err := client.RecentTracks(context.Background(), RecentTracksParams{User: "listener"})
	if err == nil {
		t.Fatal("expected error when API key is not configured")
	}
}

func TestRecentTracks_ServiceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewWithBaseURL(testLimiter(), "test-key", testLogger(), server.URL)
	_, err := client.RecentTracks(context.Background(), RecentTracksParams{User: "listener"})

	var unavail *provider.ErrUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if unavail.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", unavail.RetryAfter)
	}
}
