package repair

import (
	"context"
	"log/slog"

	"github.com/ktrenholm/trackline/internal/mbid"
)

// RedirectPass rewrites scrobble references that still point at obsolete
// ids. Redirects accumulate while the other passes run, so this pass goes
// last in a cycle.
type RedirectPass struct {
	redirects *mbid.Service
	logger    *slog.Logger
}

// NewRedirectPass creates the redirect rewrite pass.
func NewRedirectPass(redirects *mbid.Service, logger *slog.Logger) *RedirectPass {
	return &RedirectPass{
		redirects: redirects,
		logger:    logger.With(slog.String("pass", "redirects")),
	}
}

// Name identifies the pass in logs.
func (p *RedirectPass) Name() string { return "redirects" }

// Run rewrites every stale reference. The limit is ignored: rewriting is a
// single bulk statement per column.
func (p *RedirectPass) Run(ctx context.Context, _ int) (RunResult, error) {
	n, err := p.redirects.RewriteAll(ctx)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Processed: int(n), Fixed: int(n)}, nil
}
