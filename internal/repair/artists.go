package repair

import (
	"context"
	"log/slog"

	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/scrobble"
	"github.com/ktrenholm/trackline/internal/textmatch"
)

// ArtistPass fills in artist ids from raw artist names. It tries the local
// catalog by exact name, then by alias, and only then searches the remote
// catalog, requiring a single perfect-score result. Names whose searches
// keep failing land on the blacklist so they stop consuming request budget.
type ArtistPass struct {
	scrobbles *scrobble.Store
	resolver  *catalog.Resolver
	remote    catalog.CatalogAPI
	blacklist *Blacklist
	logger    *slog.Logger
}

// NewArtistPass creates the artist repair pass.
func NewArtistPass(scrobbles *scrobble.Store, resolver *catalog.Resolver, remote catalog.CatalogAPI, blacklist *Blacklist, logger *slog.Logger) *ArtistPass {
	return &ArtistPass{
		scrobbles: scrobbles,
		resolver:  resolver,
		remote:    remote,
		blacklist: blacklist,
		logger:    logger.With(slog.String("pass", "artists")),
	}
}

// Name identifies the pass in logs.
func (p *ArtistPass) Name() string { return "artists" }

// Run repairs up to limit records, least-retried first. Propagation means
// every distinct raw name is worked at most once per run.
func (p *ArtistPass) Run(ctx context.Context, limit int) (RunResult, error) {
	var result RunResult

	records, err := p.scrobbles.UnresolvedArtists(ctx, limit)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if seen[rec.ArtistName] {
			continue
		}
		seen[rec.ArtistName] = true
		result.Processed++

		fixed, err := p.fix(ctx, rec)
		if err != nil {
			return result, err
		}
		if fixed {
			result.Fixed++
		}
	}
	return result, nil
}

func (p *ArtistPass) fix(ctx context.Context, rec *scrobble.Scrobble) (bool, error) {
	// Featured-artist suffixes name a guest, not the artist the record
	// belongs to.
	name := textmatch.StripFeat(rec.ArtistName)
	store := p.resolver.Store()

	artist, err := store.ArtistByName(ctx, name)
	if err != nil {
		return false, err
	}
	if artist == nil {
		artist, err = store.ArtistByAlias(ctx, name)
		if err != nil {
			return false, err
		}
	}

	if artist == nil {
		artist, err = p.searchRemote(ctx, name)
		if err != nil {
			return false, err
		}
	}
	if artist == nil {
		return false, p.scrobbles.BumpRepairAttempts(ctx, rec.ID)
	}

	n, err := p.scrobbles.PropagateArtist(ctx, rec.ArtistName, artist.MBID)
	if err != nil {
		return false, err
	}
	if err := p.blacklist.Clear(ctx, name); err != nil {
		return false, err
	}

	p.logger.Info("repaired artist",
		slog.String("name", rec.ArtistName),
		slog.String("mbid", artist.MBID),
		slog.Int64("records", n))
	return true, nil
}

// searchRemote looks the name up in the remote catalog, trusting only a
// single 100-score hit. Anything else counts against the blacklist.
func (p *ArtistPass) searchRemote(ctx context.Context, name string) (*catalog.Artist, error) {
	blacklisted, err := p.blacklist.Blacklisted(ctx, name)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		p.logger.Debug("search exhausted", slog.String("name", name))
		return nil, nil
	}

	results, err := p.remote.SearchArtists(ctx, name)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, p.blacklist.Bump(ctx, name)
		}
		return nil, err
	}

	var perfect []string
	for _, r := range results {
		if r.Score == 100 {
			perfect = append(perfect, r.ID)
		}
	}
	if len(perfect) != 1 {
		p.logger.Debug("no unique perfect match",
			slog.String("name", name),
			slog.Int("perfect", len(perfect)))
		return nil, p.blacklist.Bump(ctx, name)
	}

	artist, err := p.resolver.ResolveArtist(ctx, perfect[0])
	if err != nil {
		return nil, err
	}
	if artist == nil {
		return nil, p.blacklist.Bump(ctx, name)
	}
	return artist, nil
}
