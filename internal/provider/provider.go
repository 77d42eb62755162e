// Package provider holds the infrastructure shared by remote API adapters:
// the error taxonomy and the outbound rate limiters.
package provider

import (
	"errors"
	"fmt"
	"time"
)

// ServiceName uniquely identifies a remote service.
type ServiceName string

// Known remote services.
const (
	NameMusicBrainz ServiceName = "musicbrainz"
	NameLastFM      ServiceName = "lastfm"
)

// ErrNotFound indicates the remote service has no entity for the requested
// id or query. Recoverable: resolvers degrade it to "absent".
type ErrNotFound struct {
	Service ServiceName
	ID      string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s: %s not found", e.Service, e.ID)
}

// ErrUnavailable indicates a transient failure (rate-limited, timeout,
// server error). Callers retry with backoff, honoring RetryAfter when set.
type ErrUnavailable struct {
	Service    ServiceName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrAmbiguous indicates a search returned other than exactly one confident
// result. Recorded as a repair failure, never guessed at.
type ErrAmbiguous struct {
	Query string
	Count int
}

func (e *ErrAmbiguous) Error() string {
	return fmt.Sprintf("search %q: %d confident results, want exactly 1", e.Query, e.Count)
}

// ErrIntegrity indicates the remote catalog reported data that violates a
// local invariant (e.g. a release with more than one release group). Fatal
// for the record under construction; not retried.
type ErrIntegrity struct {
	Detail string
}

func (e *ErrIntegrity) Error() string {
	return "data integrity: " + e.Detail
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// IsUnavailable reports whether err is transient and worth retrying.
func IsUnavailable(err error) bool {
	var u *ErrUnavailable
	return errors.As(err, &u)
}
