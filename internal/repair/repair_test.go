package repair

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/database"
	"github.com/ktrenholm/trackline/internal/mbid"
	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/provider/musicbrainz"
	"github.com/ktrenholm/trackline/internal/scrobble"
	"github.com/ktrenholm/trackline/internal/textmatch"
)

const (
	idArtist  = "056e4f3e-d505-4dad-8ec1-d04f521cbb56"
	idAlbum   = "6e33b85b-ef4e-4a97-a0c4-3d26a2be8b32"
	idRelease = "79215cdf-4764-4dee-b0b9-fec1643df7c5"
	idSong    = "0b9e8065-4140-4e73-8c6c-bdbb5d0d49bb"
	idSong2   = "f0f968dc-bb97-4173-a056-f87cf1c955aa"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating database: %v", err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCatalog is an in-memory remote catalog double with call counting on
// the search paths the passes exercise.
type fakeCatalog struct {
	artists        map[string]*musicbrainz.Artist
	releaseGroups  map[string]*musicbrainz.ReleaseGroup
	releases       map[string]*musicbrainz.Release
	recordings     map[string]*musicbrainz.Recording
	artistSearch   map[string][]musicbrainz.Artist
	rgSearch       map[string][]musicbrainz.ReleaseGroup
	browse         map[string][]musicbrainz.Release
	artistSearches int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		artists:       map[string]*musicbrainz.Artist{},
		releaseGroups: map[string]*musicbrainz.ReleaseGroup{},
		releases:      map[string]*musicbrainz.Release{},
		recordings:    map[string]*musicbrainz.Recording{},
		artistSearch:  map[string][]musicbrainz.Artist{},
		rgSearch:      map[string][]musicbrainz.ReleaseGroup{},
		browse:        map[string][]musicbrainz.Release{},
	}
}

func (f *fakeCatalog) LookupArtist(_ context.Context, id string) (*musicbrainz.Artist, error) {
	if a, ok := f.artists[id]; ok {
		return a, nil
	}
	return nil, &provider.ErrNotFound{Service: provider.NameMusicBrainz, ID: id}
}

func (f *fakeCatalog) LookupReleaseGroup(_ context.Context, id string) (*musicbrainz.ReleaseGroup, error) {
	if rg, ok := f.releaseGroups[id]; ok {
		return rg, nil
	}
	return nil, &provider.ErrNotFound{Service: provider.NameMusicBrainz, ID: id}
}

func (f *fakeCatalog) LookupRelease(_ context.Context, id string) (*musicbrainz.Release, error) {
	if r, ok := f.releases[id]; ok {
		return r, nil
	}
	return nil, &provider.ErrNotFound{Service: provider.NameMusicBrainz, ID: id}
}

func (f *fakeCatalog) LookupRecording(_ context.Context, id string) (*musicbrainz.Recording, error) {
	if r, ok := f.recordings[id]; ok {
		return r, nil
	}
	return nil, &provider.ErrNotFound{Service: provider.NameMusicBrainz, ID: id}
}

func (f *fakeCatalog) BrowseReleases(_ context.Context, rgID string) ([]musicbrainz.Release, error) {
	return f.browse[rgID], nil
}

func (f *fakeCatalog) SearchArtists(_ context.Context, query string) ([]musicbrainz.Artist, error) {
	f.artistSearches++
	return f.artistSearch[query], nil
}

func (f *fakeCatalog) SearchReleaseGroups(_ context.Context, title, _ string) ([]musicbrainz.ReleaseGroup, error) {
	return f.rgSearch[title], nil
}

func (f *fakeCatalog) SearchRecordings(context.Context, string, string) ([]musicbrainz.Recording, error) {
	return nil, nil
}

type fixture struct {
	db        *sql.DB
	scrobbles *scrobble.Store
	catalog   *catalog.Store
	resolver  *catalog.Resolver
	redirects *mbid.Service
	remote    *fakeCatalog
	blacklist *Blacklist
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	remote := newFakeCatalog()
	store := catalog.NewStore(db, testLogger())
	redirects := mbid.NewService(db, testLogger())
	return &fixture{
		db:        db,
		scrobbles: scrobble.NewStore(db, testLogger()),
		catalog:   store,
		resolver:  catalog.NewResolver(store, remote, redirects, testLogger()),
		redirects: redirects,
		remote:    remote,
		blacklist: NewBlacklist(db, testLogger()),
	}
}

func insertScrobble(t *testing.T, f *fixture, sc *scrobble.Scrobble) {
	t.Helper()
	if _, err := f.scrobbles.Insert(context.Background(), sc); err != nil {
		t.Fatalf("inserting scrobble: %v", err)
	}
}

func atHour(hour int) time.Time {
	return time.Date(2023, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestBlacklist_SkipsAfterSixFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		blacklisted, err := f.blacklist.Blacklisted(ctx, "Unknown Artist")
		if err != nil {
			t.Fatalf("Blacklisted() error = %v", err)
		}
		if blacklisted {
			t.Fatalf("blacklisted after %d failures, want 6", i)
		}
		if err := f.blacklist.Bump(ctx, "Unknown Artist"); err != nil {
			t.Fatalf("Bump() error = %v", err)
		}
	}

	blacklisted, err := f.blacklist.Blacklisted(ctx, "Unknown Artist")
	if err != nil {
		t.Fatalf("Blacklisted() error = %v", err)
	}
	if !blacklisted {
		t.Error("not blacklisted after 6 failures")
	}

	// Spelling variants share the counter through normalization.
	blacklisted, err = f.blacklist.Blacklisted(ctx, "unknown  ARTIST!")
	if err != nil {
		t.Fatalf("Blacklisted() error = %v", err)
	}
	if !blacklisted {
		t.Error("normalized variant not blacklisted")
	}

	if err := f.blacklist.Clear(ctx, "Unknown Artist"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	blacklisted, err = f.blacklist.Blacklisted(ctx, "Unknown Artist")
	if err != nil {
		t.Fatalf("Blacklisted() error = %v", err)
	}
	if blacklisted {
		t.Error("still blacklisted after Clear()")
	}
}

func TestArtistPass_FeaturedGuestStripped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.catalog.CreateArtist(ctx, &catalog.Artist{MBID: idArtist, Name: "Daft Punk"}); err != nil {
		t.Fatalf("CreateArtist() error = %v", err)
	}
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10),
		SongTitle: "Get Lucky", ArtistName: "Daft Punk feat. Pharrell Williams",
	})
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-2", PlayedAt: atHour(11),
		SongTitle: "Get Lucky", ArtistName: "Daft Punk feat. Pharrell Williams",
	})

	pass := NewArtistPass(f.scrobbles, f.resolver, f.remote, f.blacklist, testLogger())
	result, err := pass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Errorf("Fixed = %d, want 1 (one distinct name)", result.Fixed)
	}
	if f.remote.artistSearches != 0 {
		t.Errorf("remote searched %d times, want 0 (local hit)", f.remote.artistSearches)
	}

	for _, id := range []string{"rec-1", "rec-2"} {
		rec, err := f.scrobbles.ByID(ctx, id)
		if err != nil {
			t.Fatalf("ByID() error = %v", err)
		}
		if rec.ArtistMBID != idArtist {
			t.Errorf("%s ArtistMBID = %q, want %s", id, rec.ArtistMBID, idArtist)
		}
	}
}

func TestArtistPass_AliasMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	artist := &catalog.Artist{MBID: idArtist, Name: "Daft Punk", Aliases: []string{"The Robots"}}
	if err := f.catalog.CreateArtist(ctx, artist); err != nil {
		t.Fatalf("CreateArtist() error = %v", err)
	}
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10), SongTitle: "Around the World", ArtistName: "The Robots",
	})

	pass := NewArtistPass(f.scrobbles, f.resolver, f.remote, f.blacklist, testLogger())
	result, err := pass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Errorf("Fixed = %d, want 1", result.Fixed)
	}
}

func TestArtistPass_RemoteSearchRequiresUniquePerfectScore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.remote.artists[idArtist] = &musicbrainz.Artist{ID: idArtist, Name: "Daft Punk"}
	f.remote.artistSearch["Daft Punk"] = []musicbrainz.Artist{
		{ID: idArtist, Name: "Daft Punk", Score: 100},
		{ID: "22222222-2222-3333-4444-555555555555", Name: "Daft Punks", Score: 87},
	}
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10), SongTitle: "Get Lucky", ArtistName: "Daft Punk",
	})

	pass := NewArtistPass(f.scrobbles, f.resolver, f.remote, f.blacklist, testLogger())
	result, err := pass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Fatalf("Fixed = %d, want 1", result.Fixed)
	}

	// The matched artist is now in the local catalog.
	stored, err := f.catalog.FindArtist(ctx, idArtist)
	if err != nil || stored == nil {
		t.Fatalf("FindArtist() = %v, %v", stored, err)
	}
}

func TestArtistPass_BlacklistStopsSearching(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Two ambiguous perfect scores: never trusted.
	f.remote.artistSearch["Mystery"] = []musicbrainz.Artist{
		{ID: idArtist, Score: 100},
		{ID: "22222222-2222-3333-4444-555555555555", Score: 100},
	}
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10), SongTitle: "x", ArtistName: "Mystery",
	})

	pass := NewArtistPass(f.scrobbles, f.resolver, f.remote, f.blacklist, testLogger())
	for i := 0; i < 6; i++ {
		if _, err := pass.Run(ctx, 50); err != nil {
			t.Fatalf("Run() %d error = %v", i, err)
		}
	}
	if f.remote.artistSearches != 6 {
		t.Fatalf("searches = %d, want 6", f.remote.artistSearches)
	}

	// Attempts are exhausted: the next run must not search again.
	if _, err := pass.Run(ctx, 50); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.remote.artistSearches != 6 {
		t.Errorf("searches = %d after blacklisting, want 6", f.remote.artistSearches)
	}
}

func TestSongPass_PropagatesAcrossDuplicates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.remote.artists[idArtist] = &musicbrainz.Artist{ID: idArtist, Name: "Daft Punk"}
	f.remote.releaseGroups[idAlbum] = &musicbrainz.ReleaseGroup{
		ID: idAlbum, Title: "Random Access Memories", PrimaryType: "Album",
		ArtistCredits: []musicbrainz.ArtistCredit{{Artist: musicbrainz.Artist{ID: idArtist}}},
	}
	f.remote.releases[idRelease] = &musicbrainz.Release{
		ID:            idRelease,
		ReleaseGroups: []musicbrainz.ReleaseGroup{{ID: idAlbum}},
		Media: []musicbrainz.Medium{{
			Tracks: []musicbrainz.Track{
				{Recording: musicbrainz.Recording{ID: idSong, Title: "Get Lucky", Length: 369000}},
				{Recording: musicbrainz.Recording{ID: idSong2, Title: "Instant Crush"}},
			},
		}},
	}

	for hour, id := range map[int]string{10: "rec-1", 11: "rec-2"} {
		insertScrobble(t, f, &scrobble.Scrobble{
			ID: id, PlayedAt: atHour(hour),
			SongTitle: "Get Lucky (Album Version)", AlbumMBID: idRelease, ArtistMBID: idArtist,
		})
	}

	pass := NewSongPass(f.scrobbles, f.resolver, f.redirects, textmatch.Fuzzy(0), testLogger())
	result, err := pass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed == 0 {
		t.Fatal("Fixed = 0, want at least 1")
	}

	for _, id := range []string{"rec-1", "rec-2"} {
		rec, err := f.scrobbles.ByID(ctx, id)
		if err != nil {
			t.Fatalf("ByID() error = %v", err)
		}
		if rec.SongMBID != idSong {
			t.Errorf("%s SongMBID = %q, want %s", id, rec.SongMBID, idSong)
		}
		if !rec.Resolved {
			t.Errorf("%s not marked resolved", id)
		}
	}

	queue, err := f.scrobbles.UnresolvedSongs(ctx, 10)
	if err != nil {
		t.Fatalf("UnresolvedSongs() error = %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("queue still has %d records", len(queue))
	}
}

func TestSongPass_AmbiguousTitleBumpsAttempts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.remote.artists[idArtist] = &musicbrainz.Artist{ID: idArtist, Name: "Daft Punk"}
	f.remote.releaseGroups[idAlbum] = &musicbrainz.ReleaseGroup{
		ID: idAlbum, Title: "Alive 2007", PrimaryType: "Album",
		ArtistCredits: []musicbrainz.ArtistCredit{{Artist: musicbrainz.Artist{ID: idArtist}}},
	}
	// Two near-identical titles on the same release.
	f.remote.releases[idRelease] = &musicbrainz.Release{
		ID:            idRelease,
		ReleaseGroups: []musicbrainz.ReleaseGroup{{ID: idAlbum}},
		Media: []musicbrainz.Medium{{
			Tracks: []musicbrainz.Track{
				{Recording: musicbrainz.Recording{ID: idSong, Title: "Aerodynamic"}},
				{Recording: musicbrainz.Recording{ID: idSong2, Title: "Aerodynamic Beats"}},
			},
		}},
	}
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10),
		SongTitle: "Aerodynamic", AlbumMBID: idRelease, ArtistMBID: idArtist,
	})

	pass := NewSongPass(f.scrobbles, f.resolver, f.redirects, textmatch.Fuzzy(0.70), testLogger())
	result, err := pass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed != 0 {
		t.Errorf("Fixed = %d, want 0 for ambiguous match", result.Fixed)
	}

	rec, err := f.scrobbles.ByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if rec.RepairAttempts != 1 {
		t.Errorf("RepairAttempts = %d, want 1", rec.RepairAttempts)
	}
	if rec.SongMBID != "" {
		t.Errorf("SongMBID = %q, want empty", rec.SongMBID)
	}
}

func TestAlbumPass_RemoteSearchHydratesAndPropagates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.remote.artists[idArtist] = &musicbrainz.Artist{ID: idArtist, Name: "Daft Punk"}
	if _, err := f.resolver.ResolveArtist(ctx, idArtist); err != nil {
		t.Fatalf("ResolveArtist() error = %v", err)
	}

	f.remote.releaseGroups[idAlbum] = &musicbrainz.ReleaseGroup{
		ID: idAlbum, Title: "Discovery", PrimaryType: "Album",
		ArtistCredits: []musicbrainz.ArtistCredit{{Artist: musicbrainz.Artist{ID: idArtist}}},
	}
	f.remote.rgSearch["Discovery"] = []musicbrainz.ReleaseGroup{{ID: idAlbum, Title: "Discovery", Score: 100}}
	f.remote.browse[idAlbum] = []musicbrainz.Release{{ID: idRelease}}
	f.remote.releases[idRelease] = &musicbrainz.Release{
		ID:            idRelease,
		ReleaseGroups: []musicbrainz.ReleaseGroup{{ID: idAlbum}},
		Media: []musicbrainz.Medium{{
			Tracks: []musicbrainz.Track{
				{Recording: musicbrainz.Recording{ID: idSong, Title: "One More Time", Length: 320000}},
			},
		}},
	}

	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10),
		SongTitle: "One More Time", AlbumTitle: "Discovery (Deluxe Edition)", ArtistMBID: idArtist,
	})

	pass := NewAlbumPass(f.scrobbles, f.resolver, f.remote, textmatch.Fuzzy(0), testLogger())
	result, err := pass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Fatalf("Fixed = %d, want 1", result.Fixed)
	}

	rec, err := f.scrobbles.ByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if rec.AlbumMBID != idRelease {
		t.Errorf("AlbumMBID = %q, want release id %s", rec.AlbumMBID, idRelease)
	}

	// Hydration should have imported the track listing, so the song pass
	// can now finish the record.
	songPass := NewSongPass(f.scrobbles, f.resolver, f.redirects, textmatch.Fuzzy(0), testLogger())
	songResult, err := songPass.Run(ctx, 50)
	if err != nil {
		t.Fatalf("song Run() error = %v", err)
	}
	if songResult.Fixed != 1 {
		t.Errorf("song Fixed = %d, want 1", songResult.Fixed)
	}
}

func TestRedirectPass_RewritesStaleReferences(t *testing.T) {
	const obsolete = "11111111-2222-3333-4444-555555555555"

	f := setup(t)
	ctx := context.Background()

	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10), SongTitle: "x", ArtistMBID: obsolete,
	})
	if err := f.redirects.Record(ctx, obsolete, idArtist); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	pass := NewRedirectPass(f.redirects, testLogger())
	result, err := pass.Run(ctx, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Errorf("Fixed = %d, want 1", result.Fixed)
	}

	rec, err := f.scrobbles.ByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if rec.ArtistMBID != idArtist {
		t.Errorf("ArtistMBID = %q, want %s", rec.ArtistMBID, idArtist)
	}
}

func TestScheduler_RunOnceCombinesPasses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.catalog.CreateArtist(ctx, &catalog.Artist{MBID: idArtist, Name: "Daft Punk"}); err != nil {
		t.Fatalf("CreateArtist() error = %v", err)
	}
	insertScrobble(t, f, &scrobble.Scrobble{
		ID: "rec-1", PlayedAt: atHour(10), SongTitle: "Get Lucky", ArtistName: "Daft Punk",
	})

	artistPass := NewArtistPass(f.scrobbles, f.resolver, f.remote, f.blacklist, testLogger())
	redirectPass := NewRedirectPass(f.redirects, testLogger())
	scheduler := NewScheduler(50, testLogger(), artistPass, redirectPass)

	result, err := scheduler.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Errorf("Fixed = %d, want 1", result.Fixed)
	}
}
