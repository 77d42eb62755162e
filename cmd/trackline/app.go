package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/config"
	"github.com/ktrenholm/trackline/internal/database"
	"github.com/ktrenholm/trackline/internal/logging"
	"github.com/ktrenholm/trackline/internal/mbid"
	"github.com/ktrenholm/trackline/internal/provider"
	"github.com/ktrenholm/trackline/internal/provider/lastfm"
	"github.com/ktrenholm/trackline/internal/provider/musicbrainz"
	"github.com/ktrenholm/trackline/internal/repair"
	"github.com/ktrenholm/trackline/internal/scrobble"
	"github.com/ktrenholm/trackline/internal/textmatch"
)

// app wires the full service graph every command runs against.
type app struct {
	cfg        *config.Config
	logManager *logging.Manager
	logger     *slog.Logger
	db         *sql.DB

	redirects *mbid.Service
	scrobbles *scrobble.Store
	catalog   *catalog.Store
	resolver  *catalog.Resolver
	remote    *musicbrainz.Client
	history   *lastfm.Client
	blacklist *repair.Blacklist
	fuzzy     *textmatch.Matcher
}

// newApp loads configuration, opens the database, runs migrations, and
// constructs every service.
func newApp(configPath string) (*app, error) {
	if configPath == "" {
		configPath = os.Getenv("TL_CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		_ = logManager.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		_ = logManager.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	limiters := provider.NewRateLimiterMap(map[provider.ServiceName]time.Duration{
		provider.NameMusicBrainz: cfg.Catalog.RequestInterval,
		provider.NameLastFM:      cfg.LastFM.RequestInterval,
	})
	remote := musicbrainz.New(limiters, logger)
	history := lastfm.New(limiters, cfg.LastFM.APIKey, logger)

	redirects := mbid.NewService(db, logger)
	catalogStore := catalog.NewStore(db, logger)

	return &app{
		cfg:        cfg,
		logManager: logManager,
		logger:     logger,
		db:         db,
		redirects:  redirects,
		scrobbles:  scrobble.NewStore(db, logger),
		catalog:    catalogStore,
		resolver:   catalog.NewResolver(catalogStore, remote, redirects, logger),
		remote:     remote,
		history:    history,
		blacklist:  repair.NewBlacklist(db, logger),
		fuzzy:      textmatch.Fuzzy(cfg.Matching.FuzzyThreshold),
	}, nil
}

// Close releases the database and the log writer.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", "error", err)
	}
	_ = a.logManager.Close()
}

func (a *app) pipeline() *scrobble.Pipeline {
	return scrobble.NewPipeline(a.scrobbles, a.history, a.redirects, a.cfg.LastFM.User, a.logger)
}

// passes returns the repair passes in dependency order: artists unlock
// albums, albums unlock songs, and redirect rewriting mops up afterwards.
func (a *app) passes() []repair.Pass {
	return []repair.Pass{
		repair.NewArtistPass(a.scrobbles, a.resolver, a.remote, a.blacklist, a.logger),
		repair.NewAlbumPass(a.scrobbles, a.resolver, a.remote, a.fuzzy, a.logger),
		repair.NewSongPass(a.scrobbles, a.resolver, a.redirects, a.fuzzy, a.logger),
		repair.NewRedirectPass(a.redirects, a.logger),
	}
}

func (a *app) songPass() *repair.SongPass {
	return repair.NewSongPass(a.scrobbles, a.resolver, a.redirects, a.fuzzy, a.logger)
}

func (a *app) scheduler() *repair.Scheduler {
	return repair.NewScheduler(a.cfg.Repair.BatchSize, a.logger, a.passes()...)
}
