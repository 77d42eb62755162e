// Package repair resolves scrobbles that arrived without trusted ids, one
// entity kind per pass, and reschedules the ones it cannot fix yet.
package repair

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ktrenholm/trackline/internal/textmatch"
)

// maxSearchAttempts caps how often a name is searched remotely before it is
// written off. Beyond this the search is near-certain to keep failing and
// only burns rate-limit budget.
const maxSearchAttempts = 5

// Blacklist tracks names whose remote searches keep failing. Names are
// stored normalized so spelling variants share one counter.
type Blacklist struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBlacklist creates a blacklist service.
func NewBlacklist(db *sql.DB, logger *slog.Logger) *Blacklist {
	return &Blacklist{
		db:     db,
		logger: logger.With(slog.String("component", "blacklist")),
	}
}

// Attempts returns how many failed searches are recorded for the name.
func (b *Blacklist) Attempts(ctx context.Context, name string) (int, error) {
	key := textmatch.Normalize(name)
	if key == "" {
		return 0, nil
	}
	var attempts int
	err := b.db.QueryRowContext(ctx,
		`SELECT attempts FROM search_blacklist WHERE name = ?`, key).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading blacklist: %w", err)
	}
	return attempts, nil
}

// Bump records one more failed search for the name.
func (b *Blacklist) Bump(ctx context.Context, name string) error {
	key := textmatch.Normalize(name)
	if key == "" {
		return nil
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO search_blacklist (name, attempts, updated_at) VALUES (?, 1, ?)
		ON CONFLICT (name) DO UPDATE SET attempts = attempts + 1, updated_at = excluded.updated_at
	`, key, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("bumping blacklist: %w", err)
	}
	return nil
}

// Clear removes the name's counter, re-enabling remote searches for it.
func (b *Blacklist) Clear(ctx context.Context, name string) error {
	key := textmatch.Normalize(name)
	if key == "" {
		return nil
	}
	_, err := b.db.ExecContext(ctx, `DELETE FROM search_blacklist WHERE name = ?`, key)
	if err != nil {
		return fmt.Errorf("clearing blacklist: %w", err)
	}
	return nil
}

// Blacklisted reports whether remote searches for the name are exhausted.
func (b *Blacklist) Blacklisted(ctx context.Context, name string) (bool, error) {
	attempts, err := b.Attempts(ctx, name)
	if err != nil {
		return false, err
	}
	return attempts > maxSearchAttempts, nil
}
