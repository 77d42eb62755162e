// Package lastfm is the read-only adapter for the Last.fm history API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ktrenholm/trackline/internal/provider"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0"

// Track is one played track from the listening history.
type Track struct {
	Title      string
	TitleMBID  string
	Album      string
	AlbumMBID  string
	Artist     string
	ArtistMBID string
	PlayedAt   time.Time
	NowPlaying bool
	// Raw is the track's original JSON payload, kept so unresolved records
	// can be re-examined later without another API call.
	Raw json.RawMessage
}

// RecentTracksParams selects a page of listening history.
type RecentTracksParams struct {
	User string
	// To bounds the page to plays strictly older than this time (zero = now).
	To    time.Time
	Limit int
	Page  int
}

// RecentTracksPage is one page of history plus paging metadata.
type RecentTracksPage struct {
	Tracks     []Track
	TotalPages int
}

// Client calls the Last.fm history API through the shared rate limiter.
type Client struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
	apiKey  string
}

// New creates a Last.fm client with the default base URL.
func New(limiter *provider.RateLimiterMap, apiKey string, logger *slog.Logger) *Client {
	return NewWithBaseURL(limiter, apiKey, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Last.fm client with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, apiKey string, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "lastfm")),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// RecentTracks fetches one page of the user's listening history.
func (c *Client) RecentTracks(ctx context.Context, p RecentTracksParams) (*RecentTracksPage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("lastfm: API key not configured")
	}

	if err := c.limiter.Wait(ctx, provider.NameLastFM); err != nil {
		return nil, &provider.ErrUnavailable{
			Service: provider.NameLastFM,
			Cause:   fmt.Errorf("rate limiter: %w", err),
		}
	}

	params := url.Values{
		"method":  {"user.getrecenttracks"},
		"user":    {p.User},
		"api_key": {c.apiKey},
		"format":  {"json"},
	}
	if !p.To.IsZero() {
		params.Set("to", strconv.FormatInt(p.To.Unix(), 10))
	}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Page > 0 {
		params.Set("page", strconv.Itoa(p.Page))
	}
	reqURL := c.baseURL + "/?" + params.Encode()

	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp recentTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing recent tracks response: %w", err)
	}
	if resp.Error != 0 {
		return nil, fmt.Errorf("lastfm error %d: %s", resp.Error, resp.Message)
	}

	page := &RecentTracksPage{
		TotalPages: atoi(resp.RecentTracks.Attr.TotalPages),
	}
	for _, raw := range resp.RecentTracks.Track {
		t := Track{
			Title:      raw.Name,
			TitleMBID:  raw.MBID,
			Album:      raw.Album.Text,
			AlbumMBID:  raw.Album.MBID,
			Artist:     raw.Artist.Text,
			ArtistMBID: raw.Artist.MBID,
			NowPlaying: raw.Attr != nil && raw.Attr.NowPlaying == "true",
		}
		if raw.Date != nil {
			if uts, err := strconv.ParseInt(raw.Date.UTS, 10, 64); err == nil {
				t.PlayedAt = time.Unix(uts, 0).UTC()
			}
		}
		if payload, err := json.Marshal(raw); err == nil {
			t.Raw = payload
		}
		page.Tracks = append(page.Tracks, t)
	}
	return page, nil
}

func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "trackline/1.0")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := c.client.Do(req) //nolint:gosec // URL constructed from trusted base + API params
	if err != nil {
		return nil, &provider.ErrUnavailable{
			Service: provider.NameLastFM,
			Cause:   err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Service: provider.NameLastFM, ID: reqURL}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Service:    provider.NameLastFM,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: 2 * time.Second,
		}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Service: provider.NameLastFM,
			Cause:   fmt.Errorf("unexpected HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
}
