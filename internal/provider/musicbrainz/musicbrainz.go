// Package musicbrainz is the read-only adapter for the MusicBrainz ws/2 API.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/version"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

// Client calls the MusicBrainz catalog API through the shared rate limiter.
type Client struct {
	client  *http.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	baseURL string
}

// New creates a MusicBrainz client with the default base URL.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Client {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz client with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "musicbrainz")),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// LookupArtist fetches an artist with its aliases. The returned ID is the
// entity's current canonical id, which differs from mbid when the entity has
// been merged or renamed upstream.
func (c *Client) LookupArtist(ctx context.Context, mbid string) (*Artist, error) {
	body, err := c.lookup(ctx, "artist", mbid, "aliases")
	if err != nil {
		return nil, err
	}

	var artist Artist
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, fmt.Errorf("parsing artist response: %w", err)
	}
	return &artist, nil
}

// LookupReleaseGroup fetches a release group with its artist credits.
func (c *Client) LookupReleaseGroup(ctx context.Context, mbid string) (*ReleaseGroup, error) {
	body, err := c.lookup(ctx, "release-group", mbid, "artist-credits")
	if err != nil {
		return nil, err
	}

	var rg ReleaseGroup
	if err := json.Unmarshal(body, &rg); err != nil {
		return nil, fmt.Errorf("parsing release-group response: %w", err)
	}
	return &rg, nil
}

// LookupRelease fetches a release with its release group, recordings, and
// per-recording artist credits: one call brings down everything needed to
// import the full track listing.
func (c *Client) LookupRelease(ctx context.Context, mbid string) (*Release, error) {
	body, err := c.lookup(ctx, "release", mbid, "artist-credits", "release-groups", "recordings", "recording-level-rels")
	if err != nil {
		return nil, err
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("parsing release response: %w", err)
	}
	// Lookup responses use the singular release-group field.
	if release.ReleaseGroup != nil && len(release.ReleaseGroups) == 0 {
		release.ReleaseGroups = []ReleaseGroup{*release.ReleaseGroup}
	}
	return &release, nil
}

// LookupRecording fetches a recording with its artist credits.
func (c *Client) LookupRecording(ctx context.Context, mbid string) (*Recording, error) {
	body, err := c.lookup(ctx, "recording", mbid, "artist-credits")
	if err != nil {
		return nil, err
	}

	var rec Recording
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("parsing recording response: %w", err)
	}
	return &rec, nil
}

// BrowseReleases lists the releases belonging to a release group.
func (c *Client) BrowseReleases(ctx context.Context, releaseGroupMBID string) ([]Release, error) {
	params := url.Values{
		"release-group": {releaseGroupMBID},
		"fmt":           {"json"},
		"limit":         {"25"},
	}
	body, err := c.doRequest(ctx, c.baseURL+"/release?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp releaseBrowseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing release browse response: %w", err)
	}
	return resp.Releases, nil
}

// SearchArtists searches artists by name. Results carry a 0-100 score.
func (c *Client) SearchArtists(ctx context.Context, query string) ([]Artist, error) {
	body, err := c.search(ctx, "artist", luceneEscape(query))
	if err != nil {
		return nil, err
	}

	var resp artistSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist search response: %w", err)
	}
	return resp.Artists, nil
}

// SearchReleaseGroups searches release groups by title, optionally scoped to
// an artist id.
func (c *Client) SearchReleaseGroups(ctx context.Context, title, artistMBID string) ([]ReleaseGroup, error) {
	q := "releasegroup:" + quote(title)
	if artistMBID != "" {
		q += " AND arid:" + artistMBID
	}

	body, err := c.search(ctx, "release-group", q)
	if err != nil {
		return nil, err
	}

	var resp releaseGroupSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing release-group search response: %w", err)
	}
	return resp.ReleaseGroups, nil
}

// SearchRecordings searches recordings by title, optionally scoped to an
// artist id.
func (c *Client) SearchRecordings(ctx context.Context, title, artistMBID string) ([]Recording, error) {
	q := "recording:" + quote(title)
	if artistMBID != "" {
		q += " AND arid:" + artistMBID
	}

	body, err := c.search(ctx, "recording", q)
	if err != nil {
		return nil, err
	}

	var resp recordingSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing recording search response: %w", err)
	}
	return resp.Recordings, nil
}

func (c *Client) lookup(ctx context.Context, entity, mbid string, inc ...string) ([]byte, error) {
	params := url.Values{"fmt": {"json"}}
	if len(inc) > 0 {
		params.Set("inc", strings.Join(inc, "+"))
	}
	reqURL := c.baseURL + "/" + entity + "/" + url.PathEscape(mbid) + "?" + params.Encode()
	return c.doRequest(ctx, reqURL)
}

func (c *Client) search(ctx context.Context, entity, query string) ([]byte, error) {
	params := url.Values{
		"query": {query},
		"fmt":   {"json"},
		"limit": {"25"},
	}
	reqURL := c.baseURL + "/" + entity + "?" + params.Encode()
	return c.doRequest(ctx, reqURL)
}

// doRequest executes an HTTP GET with rate limiting and standard headers.
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, provider.NameMusicBrainz); err != nil {
		return nil, &provider.ErrUnavailable{
			Service: provider.NameMusicBrainz,
			Cause:   fmt.Errorf("rate limiter: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := c.client.Do(req) //nolint:gosec // URL constructed from trusted base + MBID
	if err != nil {
		return nil, &provider.ErrUnavailable{
			Service: provider.NameMusicBrainz,
			Cause:   err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Service: provider.NameMusicBrainz, ID: reqURL}
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Service:    provider.NameMusicBrainz,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: 2 * time.Second,
		}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Service: provider.NameMusicBrainz,
			Cause:   fmt.Errorf("unexpected HTTP %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
}

// quote wraps a Lucene term in double quotes, escaping embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// luceneEscape escapes Lucene query syntax characters in a bare query.
func luceneEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`+-&|!(){}[]^"~*?:\/`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func userAgent() string {
	return fmt.Sprintf("trackline/%s (https://github.com/ktrenholm/trackline)", version.Version)
}
