// Package api exposes read-only HTTP projections of the scrobble history and
// the resolved catalog. No business logic lives here.
package api

import (
	"log/slog"
	"net/http"

	"github.com/ktrenholm/trackline/internal/api/middleware"
	"github.com/ktrenholm/trackline/internal/catalog"
	"github.com/ktrenholm/trackline/internal/scrobble"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Scrobbles *scrobble.Store
	Catalog   *catalog.Store
	Logger    *slog.Logger
	BasePath  string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	scrobbles *scrobble.Store
	catalog   *catalog.Store
	logger    *slog.Logger
	basePath  string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		scrobbles: deps.Scrobbles,
		catalog:   deps.Catalog,
		logger:    deps.Logger,
		basePath:  deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.HandleFunc("GET "+bp+"/api/v1/scrobbles", r.handleListScrobbles)
	mux.HandleFunc("GET "+bp+"/api/v1/scrobbles/{playedAt}", r.handleGetScrobble)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{mbid}", r.handleGetArtist)
	mux.HandleFunc("GET "+bp+"/api/v1/songs/{mbid}", r.handleGetSong)
	mux.HandleFunc("GET "+bp+"/api/v1/releases/{mbid}", r.handleGetRelease)
	mux.HandleFunc("GET "+bp+"/api/v1/stats", r.handleStats)

	return middleware.Logging(r.logger)(mux)
}
