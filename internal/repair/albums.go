package repair

import (
	"context"
	"log/slog"

	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/scrobble"
	"github.com/ktrenholm/trackline/internal/textmatch"
)

// searchCandidateCap bounds how many remote search hits get hydrated per
// record; hydration costs one rate-limited call each.
const searchCandidateCap = 5

// AlbumPass fills in album ids on records whose artist is already known. It
// matches the qualifier-stripped raw title against the artist's local albums
// first, then against remote release-group search results hydrated through
// the resolver. The propagated id is a concrete release of the matched
// album, the same shape trusted ids from the history service have.
type AlbumPass struct {
	scrobbles *scrobble.Store
	resolver  *catalog.Resolver
	remote    catalog.CatalogAPI
	matcher   *textmatch.Matcher
	logger    *slog.Logger
}

// NewAlbumPass creates the album repair pass.
func NewAlbumPass(scrobbles *scrobble.Store, resolver *catalog.Resolver, remote catalog.CatalogAPI, matcher *textmatch.Matcher, logger *slog.Logger) *AlbumPass {
	return &AlbumPass{
		scrobbles: scrobbles,
		resolver:  resolver,
		remote:    remote,
		matcher:   matcher,
		logger:    logger.With(slog.String("pass", "albums")),
	}
}

// Name identifies the pass in logs.
func (p *AlbumPass) Name() string { return "albums" }

// Run repairs up to limit records, least-retried first.
func (p *AlbumPass) Run(ctx context.Context, limit int) (RunResult, error) {
	var result RunResult

	records, err := p.scrobbles.UnresolvedAlbums(ctx, limit)
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
			return result, err
		}
		if fixed {
			result.Fixed++
		}
	}
	return result, nil
}

func (p *AlbumPass) fix(ctx context.Context, rec *scrobble.Scrobble) (bool, error) {
	title := textmatch.StripAlbumQualifiers(rec.AlbumTitle)

	album, err := p.findLocal(ctx, title, rec.ArtistMBID)
	if err != nil {
		return false, err
	}
	if album == nil {
		album, err = p.findRemote(ctx, title, rec.ArtistMBID)
		if err != nil {
			return false, err
		}
	}
	if album == nil {
		return false, p.scrobbles.BumpRepairAttempts(ctx, rec.ID)
	}

	release, err := p.releaseOf(ctx, album)
	if err != nil {
		return false, err
	}
	if release == nil {
		return false, p.scrobbles.BumpRepairAttempts(ctx, rec.ID)
	}

	n, err := p.scrobbles.PropagateAlbum(ctx, rec.AlbumTitle, rec.ArtistMBID, release.MBID)
	if err != nil {
		return false, err
	}
	p.logger.Info("repaired album",
		slog.String("title", rec.AlbumTitle),
		slog.String("album", album.MBID),
		slog.String("release", release.MBID),
		slog.Int64("records", n))
	return true, nil
}

// findLocal matches the title against the artist's stored albums.
func (p *AlbumPass) findLocal(ctx context.Context, title, artistMBID string) (*catalog.Album, error) {
	albums, err := p.resolver.Store().AlbumsByArtist(ctx, artistMBID)
	if err != nil {
		return nil, err
	}

	var matches []catalog.Album
	for _, album := range albums {
		if p.matcher.Similar(title, album.Title) {
			matches = append(matches, album)
		}
	}
	if len(matches) != 1 {
		return nil, nil
	}
	return &matches[0], nil
}

// findRemote searches release groups scoped to the artist, hydrates the top
// candidates, and re-checks the title against the stored form. Only a unique
// survivor is trusted.
func (p *AlbumPass) findRemote(ctx context.Context, title, artistMBID string) (*catalog.Album, error) {
	results, err := p.remote.SearchReleaseGroups(ctx, title, artistMBID)
	if err != nil {
		return nil, err
	}
	if len(results) > searchCandidateCap {
		results = results[:searchCandidateCap]
	}

	matches := make(map[string]*catalog.Album)
	for _, rg := range results {
		album, err := p.resolver.ResolveAlbum(ctx, rg.ID)
		if err != nil {
			return nil, err
		}
		if album == nil {
			continue
		}
		if p.matcher.Similar(title, album.Title) {
			matches[album.MBID] = album
		}
	}
	if len(matches) != 1 {
		return nil, nil
	}
	for _, album := range matches {
		return album, nil
	}
	return nil, nil
}

// releaseOf picks a stored release of the album, hydrating one from the
// remote catalog when none is known yet.
func (p *AlbumPass) releaseOf(ctx context.Context, album *catalog.Album) (*catalog.Release, error) {
	releases, err := p.resolver.Store().ReleasesOfAlbum(ctx, album.MBID)
	if err != nil {
		return nil, err
	}
	if len(releases) > 0 {
		return &releases[0], nil
	}

	remote, err := p.remote.BrowseReleases(ctx, album.MBID)
	if err != nil {
		return nil, err
	}
	if len(remote) == 0 {
		return nil, nil
	}
	return p.resolver.ResolveRelease(ctx, remote[0].ID)
}
