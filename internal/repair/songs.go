package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/mbid"
	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/scrobble"
	"github.com/ktrenholm/trackline/internal/textmatch"
)

// SongPass fills in song ids on records whose album is already known: it
// hydrates the album's release, then fuzzy-matches the raw title against the
// release's track listing. A match is only trusted when it is unique.
type SongPass struct {
	scrobbles *scrobble.Store
	resolver  *catalog.Resolver
	redirects *mbid.Service
	matcher   *textmatch.Matcher
	logger    *slog.Logger
}

// NewSongPass creates the song repair pass.
func NewSongPass(scrobbles *scrobble.Store, resolver *catalog.Resolver, redirects *mbid.Service, matcher *textmatch.Matcher, logger *slog.Logger) *SongPass {
	return &SongPass{
		scrobbles: scrobbles,
		resolver:  resolver,
		redirects: redirects,
		matcher:   matcher,
		logger:    logger.With(slog.String("pass", "songs")),
	}
}

// Name identifies the pass in logs.
func (p *SongPass) Name() string { return "songs" }

// Run repairs up to limit records, least-retried first.
func (p *SongPass) Run(ctx context.Context, limit int) (RunResult, error) {
	var result RunResult

	records, err := p.scrobbles.UnresolvedSongs(ctx, limit)
	if err != nil {
		return result, err
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		fixed, err := p.fix(ctx, rec)
		if err != nil {
			var integrity *provider.ErrIntegrity
			if errors.As(err, &integrity) {
				// Broken on the remote side; park the record and move on.
				p.logger.Warn("integrity failure", slog.String("id", rec.ID), slog.String("detail", integrity.Detail))
				if err := p.scrobbles.BumpRepairAttempts(ctx, rec.ID); err != nil {
					return result, err
				}
				continue
			}
			return result, err
		}
		if fixed {
			result.Fixed++
		}
	}
	return result, nil
}

func (p *SongPass) fix(ctx context.Context, rec *scrobble.Scrobble) (bool, error) {
	release, err := p.resolver.ResolveRelease(ctx, rec.AlbumMBID)
	if err != nil {
		return false, err
	}
	if release == nil {
		return false, p.scrobbles.BumpRepairAttempts(ctx, rec.ID)
	}

	songs, err := p.resolver.Store().SongsOnRelease(ctx, release.MBID)
	if err != nil {
		return false, err
	}

	var matches []catalog.Song
	for _, song := range songs {
		if p.matcher.Similar(rec.SongTitle, song.Title) {
			matches = append(matches, song)
		}
	}
	if len(matches) != 1 {
		p.logger.Debug("no unique title match",
			slog.String("title", rec.SongTitle),
			slog.Int("matches", len(matches)))
		return false, p.scrobbles.BumpRepairAttempts(ctx, rec.ID)
	}

	n, err := p.scrobbles.PropagateSong(ctx, rec.SongTitle, rec.AlbumMBID, matches[0].MBID)
	if err != nil {
		return false, err
	}
	p.logger.Info("repaired song",
		slog.String("title", rec.SongTitle),
		slog.String("mbid", matches[0].MBID),
		slog.Int64("records", n))
	return true, nil
}

// rawHistoryTrack is the slice of the stored raw payload RepairOne consumes.
type rawHistoryTrack struct {
	MBID   string `json:"mbid"`
	Artist struct {
		MBID string `json:"mbid"`
	} `json:"artist"`
	Album struct {
		MBID string `json:"mbid"`
	} `json:"album"`
}

// RepairOne re-derives one record's ids from its stored raw payload, passing
// them through the redirect table, then retries the title match. Useful when
// a redirect or catalog fix landed after the record was ingested.
func (p *SongPass) RepairOne(ctx context.Context, id string) error {
	rec, err := p.scrobbles.ByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("scrobble %s not found", id)
	}

	if len(rec.RawPayload) > 0 {
		var raw rawHistoryTrack
		if err := json.Unmarshal(rec.RawPayload, &raw); err != nil {
			return fmt.Errorf("parsing raw payload: %w", err)
		}

		songMBID, err := p.redirects.Resolve(ctx, raw.MBID)
		if err != nil {
			return err
		}
		albumMBID, err := p.redirects.Resolve(ctx, raw.Album.MBID)
		if err != nil {
			return err
		}
		artistMBID, err := p.redirects.Resolve(ctx, raw.Artist.MBID)
		if err != nil {
			return err
		}
		if err := p.scrobbles.UpdateIDs(ctx, rec.ID, songMBID, albumMBID, artistMBID); err != nil {
			return err
		}

		rec, err = p.scrobbles.ByID(ctx, id)
		if err != nil {
			return err
		}
	}

	if rec.SongMBID != "" || rec.AlbumMBID == "" {
		return nil
	}
	_, err = p.fix(ctx, rec)
	return err
}
