package upstream

import (
	"errors"

	"github.com/robalyx/cotd/internal/style"
)

var (
	// ErrNotYetIndexed is returned when the tagging service has no data for the map yet.
	ErrNotYetIndexed = errors.New("map not yet indexed by tagging service")
	// ErrUpstreamUnavailable is returned on network failures, timeouts and unusable responses.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)

// IsFetchError reports whether err means the current map could not be fetched.
// Such errors skip the refresh cycle instead of failing it.
func IsFetchError(err error) bool {
	return errors.Is(err, ErrNotYetIndexed) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, style.ErrUnknownStyleCode)
}
