package scrobble

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ktrenholm/trackline/internal/mbid"
	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/provider/lastfm"
)

// HistoryAPI is the slice of the history client the pipeline consumes.
type HistoryAPI interface {
	RecentTracks(ctx context.Context, p lastfm.RecentTracksParams) (*lastfm.RecentTracksPage, error)
}

// Pipeline pulls listening history backwards in time, one page per call,
// until the remote archive is exhausted. Progress is tracked implicitly
// through the earliest stored play time, so an interrupted run resumes where
// it stopped.
type Pipeline struct {
	store     *Store
	history   HistoryAPI
	redirects *mbid.Service
	user      string
	logger    *slog.Logger
}

// NewPipeline creates a backfill pipeline for one history user.
func NewPipeline(store *Store, history HistoryAPI, redirects *mbid.Service, user string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		history:   history,
		redirects: redirects,
		user:      user,
		logger:    logger.With(slog.String("component", "backfill")),
	}
}

// Backfill fetches one page of history older than the earliest stored play
// and inserts it. Returns the number of rows written; 0 means the archive is
// drained. Now-playing items have no play time yet and are skipped; boundary
// overlap with an earlier run is absorbed by the unique play-time constraint.
func (p *Pipeline) Backfill(ctx context.Context, pageSize int) (int, error) {
	bound, err := p.store.Earliest(ctx)
	if err != nil {
		return 0, err
	}
	if bound.IsZero() {
		bound = time.Now().UTC()
	}

	page, err := p.history.RecentTracks(ctx, lastfm.RecentTracksParams{
		User:  p.user,
		To:    bound,
		Limit: pageSize,
	})
	if err != nil {
		return 0, err
	}

	var batch []*Scrobble
	for _, track := range page.Tracks {
		if track.NowPlaying || track.PlayedAt.IsZero() {
			continue
		}
		sc, err := p.toScrobble(ctx, track)
		if err != nil {
			return 0, err
		}
		batch = append(batch, sc)
	}

	inserted, err := p.store.BulkInsert(ctx, batch)
	if err != nil {
		return inserted, err
	}

	p.logger.Info("backfilled page",
		slog.Time("before", bound),
		slog.Int("fetched", len(batch)),
		slog.Int("inserted", inserted))
	return inserted, nil
}

// toScrobble maps a history item verbatim, passing any supplied ids through
// the redirect table so known-obsolete ids never enter the table.
func (p *Pipeline) toScrobble(ctx context.Context, track lastfm.Track) (*Scrobble, error) {
	songMBID, err := p.redirects.Resolve(ctx, track.TitleMBID)
	if err != nil {
		return nil, err
	}
	albumMBID, err := p.redirects.Resolve(ctx, track.AlbumMBID)
	if err != nil {
		return nil, err
	}
	artistMBID, err := p.redirects.Resolve(ctx, track.ArtistMBID)
	if err != nil {
		return nil, err
	}

	return &Scrobble{
		PlayedAt:   track.PlayedAt,
		SongTitle:  track.Title,
		AlbumTitle: track.Album,
		ArtistName: track.Artist,
		SongMBID:   songMBID,
		AlbumMBID:  albumMBID,
		ArtistMBID: artistMBID,
		RawPayload: track.Raw,
	}, nil
}

// Drain runs Backfill until a page inserts nothing, retrying transient remote
// failures with exponential backoff. Returns the total rows written.
func (p *Pipeline) Drain(ctx context.Context, pageSize int) (int, error) {
	total := 0
	for {
		var inserted int
		backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var err error
			inserted, err = p.Backfill(ctx, pageSize)
			var unavail *provider.ErrUnavailable
			if errors.As(err, &unavail) {
				if unavail.RetryAfter > 0 {
					select {
					case <-time.After(unavail.RetryAfter):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return retry.RetryableError(err)
			}
			return err
		})
		if err != nil {
			return total, err
		}
		if inserted == 0 {
			p.logger.Info("backfill drained", slog.Int("total", total))
			return total, nil
		}
		total += inserted
	}
}
