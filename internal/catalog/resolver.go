package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ktrenholm/trackline/internal/mbid"
	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/provider/musicbrainz"
)

// CatalogAPI is the slice of the remote catalog client the resolver and the
// repair passes consume.
type CatalogAPI interface {
	LookupArtist(ctx context.Context, mbid string) (*musicbrainz.Artist, error)
	LookupReleaseGroup(ctx context.Context, mbid string) (*musicbrainz.ReleaseGroup, error)
	LookupRelease(ctx context.Context, mbid string) (*musicbrainz.Release, error)
	LookupRecording(ctx context.Context, mbid string) (*musicbrainz.Recording, error)
	BrowseReleases(ctx context.Context, releaseGroupMBID string) ([]musicbrainz.Release, error)
	SearchArtists(ctx context.Context, query string) ([]musicbrainz.Artist, error)
	SearchReleaseGroups(ctx context.Context, title, artistMBID string) ([]musicbrainz.ReleaseGroup, error)
	SearchRecordings(ctx context.Context, title, artistMBID string) ([]musicbrainz.Recording, error)
}

// Resolver turns possibly-obsolete MBIDs into stored catalog entities. Every
// kind follows the same path: redirect-resolve the id, try the local store,
// fall back to the remote catalog, record any redirect the remote reveals,
// then hydrate relations and create the record.
//
// Absent entities (remote 404) come back as (nil, nil) so callers can treat
// them as a normal resolution outcome rather than a failure.
type Resolver struct {
	store     *Store
	remote    CatalogAPI
	redirects *mbid.Service
	logger    *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(store *Store, remote CatalogAPI, redirects *mbid.Service, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:     store,
		remote:    remote,
		redirects: redirects,
		logger:    logger.With(slog.String("component", "resolver")),
	}
}

// Store exposes the underlying store for read paths that bypass resolution.
func (r *Resolver) Store() *Store {
	return r.store
}

// ResolveArtist resolves an artist id to a stored artist.
func (r *Resolver) ResolveArtist(ctx context.Context, id string) (*Artist, error) {
	id, err := r.redirects.Resolve(ctx, id)
	if err != nil || id == "" {
		return nil, err
	}

	if local, err := r.store.FindArtist(ctx, id); err != nil || local != nil {
		return local, err
	}

	remote, err := r.remote.LookupArtist(ctx, id)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if remote.ID != id {
		if err := r.redirects.Record(ctx, id, remote.ID); err != nil {
			return nil, err
		}
		if local, err := r.store.FindArtist(ctx, remote.ID); err != nil || local != nil {
			return local, err
		}
	}

	artist := &Artist{
		MBID: remote.ID,
		Name: remote.Name,
	}
	for _, alias := range remote.Aliases {
		artist.Aliases = append(artist.Aliases, alias.Name)
	}
	if err := r.store.CreateArtist(ctx, artist); err != nil {
		return nil, err
	}

	r.logger.Info("resolved artist", slog.String("mbid", artist.MBID), slog.String("name", artist.Name))
	return artist, nil
}

// ResolveAlbum resolves a release-group id to a stored album, resolving its
// credited artists first. Compilations are stored without artist links.
func (r *Resolver) ResolveAlbum(ctx context.Context, id string) (*Album, error) {
	id, err := r.redirects.Resolve(ctx, id)
	if err != nil || id == "" {
		return nil, err
	}

	if local, err := r.store.FindAlbum(ctx, id); err != nil || local != nil {
		return local, err
	}

	remote, err := r.remote.LookupReleaseGroup(ctx, id)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if remote.ID != id {
		if err := r.redirects.Record(ctx, id, remote.ID); err != nil {
			return nil, err
		}
		if local, err := r.store.FindAlbum(ctx, remote.ID); err != nil || local != nil {
			return local, err
		}
	}

	album := &Album{
		MBID:  remote.ID,
		Title: remote.Title,
		Type:  albumType(remote),
	}

	if !album.IsCompilation() {
		for _, credit := range remote.ArtistCredits {
			artist, err := r.ResolveArtist(ctx, credit.Artist.ID)
			if err != nil {
				return nil, err
			}
			if artist == nil {
				// Absent relation: the album cannot be stored half-linked.
				return nil, nil
			}
			album.Artists = append(album.Artists, *artist)
		}
	}

	if err := r.store.CreateAlbum(ctx, album); err != nil {
		return nil, err
	}

	r.logger.Info("resolved album", slog.String("mbid", album.MBID), slog.String("title", album.Title))
	return album, nil
}

// ResolveRelease resolves a release id to a stored release, resolving its
// parent album first and importing the full track listing unless the album is
// a compilation.
func (r *Resolver) ResolveRelease(ctx context.Context, id string) (*Release, error) {
	id, err := r.redirects.Resolve(ctx, id)
	if err != nil || id == "" {
		return nil, err
	}

	if local, err := r.store.FindRelease(ctx, id); err != nil || local != nil {
		return local, err
	}

	remote, err := r.remote.LookupRelease(ctx, id)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if remote.ID != id {
		if err := r.redirects.Record(ctx, id, remote.ID); err != nil {
			return nil, err
		}
		if local, err := r.store.FindRelease(ctx, remote.ID); err != nil || local != nil {
			return local, err
		}
	}

	if len(remote.ReleaseGroups) != 1 {
		return nil, &provider.ErrIntegrity{
			Detail: fmt.Sprintf("release %s has %d release groups, want 1", remote.ID, len(remote.ReleaseGroups)),
		}
	}

	album, err := r.ResolveAlbum(ctx, remote.ReleaseGroups[0].ID)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, nil
	}

	release := &Release{MBID: remote.ID, AlbumMBID: album.MBID}
	if err := r.store.CreateRelease(ctx, release); err != nil {
		return nil, err
	}

	if !album.IsCompilation() {
		if err := r.importTracks(ctx, remote, release.MBID); err != nil {
			return nil, err
		}
	}

	r.logger.Info("resolved release",
		slog.String("mbid", release.MBID),
		slog.String("album", album.Title))
	return release, nil
}

// importTracks stores every recording on the release and links it to the
// release and its credited artists. A track whose credited artist is absent
// is not stored at all; songs are never half-linked.
func (r *Resolver) importTracks(ctx context.Context, release *musicbrainz.Release, releaseMBID string) error {
	for _, medium := range release.Media {
	tracks:
		for _, track := range medium.Tracks {
			rec := track.Recording
			if rec.ID == "" {
				continue
			}

			song := &Song{
				MBID:       rec.ID,
				Title:      rec.Title,
				DurationMS: durationMS(rec.Length),
			}
			for _, credit := range rec.ArtistCredits {
				artist, err := r.ResolveArtist(ctx, credit.Artist.ID)
				if err != nil {
					return err
				}
				if artist == nil {
					r.logger.Warn("skipping track with absent artist credit",
						slog.String("recording", rec.ID),
						slog.String("artist", credit.Artist.ID))
					continue tracks
				}
				song.Artists = append(song.Artists, *artist)
			}
			if err := r.store.FindOrCreateSong(ctx, song, releaseMBID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveSong resolves a recording id to a stored song.
func (r *Resolver) ResolveSong(ctx context.Context, id string) (*Song, error) {
	id, err := r.redirects.Resolve(ctx, id)
	if err != nil || id == "" {
		return nil, err
	}

	if local, err := r.store.FindSong(ctx, id); err != nil || local != nil {
		return local, err
	}

	remote, err := r.remote.LookupRecording(ctx, id)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if remote.ID != id {
		if err := r.redirects.Record(ctx, id, remote.ID); err != nil {
			return nil, err
		}
		if local, err := r.store.FindSong(ctx, remote.ID); err != nil || local != nil {
			return local, err
		}
	}

	song := &Song{
		MBID:       remote.ID,
		Title:      remote.Title,
		DurationMS: durationMS(remote.Length),
	}
	for _, credit := range remote.ArtistCredits {
		artist, err := r.ResolveArtist(ctx, credit.Artist.ID)
		if err != nil {
			return nil, err
		}
		if artist == nil {
			return nil, nil
		}
		song.Artists = append(song.Artists, *artist)
	}

	if err := r.store.FindOrCreateSong(ctx, song, ""); err != nil {
		return nil, err
	}

	r.logger.Info("resolved song", slog.String("mbid", song.MBID), slog.String("title", song.Title))
	return song, nil
}

// albumType picks the stored type for a release group. A Compilation
// secondary type wins over the primary type.
func albumType(rg *musicbrainz.ReleaseGroup) string {
	for _, t := range rg.SecondaryTypes {
		if t == AlbumTypeCompilation {
			return AlbumTypeCompilation
		}
	}
	return rg.PrimaryType
}

// durationMS maps the remote length (0 = unknown) to the stored value.
func durationMS(length int) int64 {
	if length <= 0 {
		return -1
	}
	return int64(length)
}
