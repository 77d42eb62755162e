package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ktrenholm/trackline/internal/version"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListScrobbles returns one page of scrobbles, newest first.
// GET /api/v1/scrobbles?page=&page_size=
func (r *Router) handleListScrobbles(w http.ResponseWriter, req *http.Request) {
	page := intQuery(req, "page", 1)
	pageSize := intQuery(req, "page_size", 50)
	if pageSize > 500 {
		pageSize = 500
	}

	scrobbles, err := r.scrobbles.List(req.Context(), page, pageSize)
	if err != nil {
		r.logger.Error("listing scrobbles", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	total, err := r.scrobbles.Count(req.Context())
	if err != nil {
		r.logger.Error("counting scrobbles", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scrobbles": scrobbles,
		"page":      page,
		"page_size": pageSize,
		"total":     total,
	})
}

// handleGetScrobble returns one scrobble with its resolved relations
// expanded. The path value is the play time, RFC3339 or epoch seconds.
// GET /api/v1/scrobbles/{playedAt}
func (r *Router) handleGetScrobble(w http.ResponseWriter, req *http.Request) {
	playedAt, ok := parsePlayedAt(req.PathValue("playedAt"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid played_at"})
		return
	}

	sc, err := r.scrobbles.ByPlayedAt(req.Context(), playedAt)
	if err != nil {
		r.logger.Error("finding scrobble", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if sc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "scrobble not found"})
		return
	}

	response := map[string]any{"scrobble": sc}
	ctx := req.Context()
	if sc.SongMBID != "" {
		if song, err := r.catalog.FindSong(ctx, sc.SongMBID); err == nil && song != nil {
			response["song"] = song
		}
	}
	if sc.AlbumMBID != "" {
		if release, err := r.catalog.FindRelease(ctx, sc.AlbumMBID); err == nil && release != nil {
			if album, err := r.catalog.FindAlbum(ctx, release.AlbumMBID); err == nil && album != nil {
				response["album"] = album
			}
		}
	}
	if sc.ArtistMBID != "" {
		if artist, err := r.catalog.FindArtist(ctx, sc.ArtistMBID); err == nil && artist != nil {
			response["artist"] = artist
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// handleGetArtist returns an artist with its albums.
// GET /api/v1/artists/{mbid}
func (r *Router) handleGetArtist(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("mbid")

	artist, err := r.catalog.FindArtist(req.Context(), id)
	if err != nil {
		r.logger.Error("finding artist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if artist == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "artist not found"})
		return
	}

	albums, err := r.catalog.AlbumsByArtist(req.Context(), id)
	if err != nil {
		r.logger.Error("listing albums", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artist": artist,
		"albums": albums,
	})
}

// handleGetSong returns a song with its artists and albums.
// GET /api/v1/songs/{mbid}
func (r *Router) handleGetSong(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("mbid")

	song, err := r.catalog.FindSong(req.Context(), id)
	if err != nil {
		r.logger.Error("finding song", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if song == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "song not found"})
		return
	}

	albums, err := r.catalog.AlbumsOfSong(req.Context(), id)
	if err != nil {
		r.logger.Error("listing albums of song", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"song":   song,
		"albums": albums,
	})
}

// handleGetRelease returns a release with its album and track listing.
// GET /api/v1/releases/{mbid}
func (r *Router) handleGetRelease(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("mbid")

	release, err := r.catalog.FindRelease(req.Context(), id)
	if err != nil {
		r.logger.Error("finding release", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if release == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "release not found"})
		return
	}

	album, err := r.catalog.FindAlbum(req.Context(), release.AlbumMBID)
	if err != nil {
		r.logger.Error("finding album", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	songs, err := r.catalog.SongsOnRelease(req.Context(), id)
	if err != nil {
		r.logger.Error("listing songs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"release": release,
		"album":   album,
		"songs":   songs,
	})
}

// handleStats returns aggregate listening statistics.
// GET /api/v1/stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	total, err := r.scrobbles.Count(ctx)
	if err != nil {
		r.logger.Error("counting scrobbles", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	outstanding, err := r.scrobbles.OutstandingCounts(ctx)
	if err != nil {
		r.logger.Error("counting outstanding", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	listened, err := r.catalog.TotalListenedDuration(ctx)
	if err != nil {
		r.logger.Error("summing listened duration", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scrobbles":                total,
		"outstanding":              outstanding,
		"listened_duration_ms":     listened.Milliseconds(),
		"listened_duration_pretty": listened.Round(time.Second).String(),
	})
}

// parsePlayedAt accepts RFC3339 or epoch seconds.
func parsePlayedAt(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), true
	}
	return time.Time{}, false
}

// intQuery extracts an integer query parameter with a default value.
func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
