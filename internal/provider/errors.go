package provider

import "errors"

var (
	ErrRateLimit     = errors.New("provider: rate limited")
	ErrContextLength = errors.New("provider: prompt exceeds the model context window")
	ErrProviderDown  = errors.New("provider: unavailable")
	ErrEmptyResponse = errors.New("provider: empty completion")

	// ErrContentFiltered is returned when the upstream moderation layer
	// refuses the prompt or the completion. Another provider would refuse
	// it too, so it never triggers a fallback.
	ErrContentFiltered = errors.New("provider: content filtered")

	ErrAllProviders = errors.New("provider: every candidate failed")
	ErrNoProvider   = errors.New("provider: none configured")
)

// IsRetryable reports whether another provider, or the same one later,
// may succeed where this call failed.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimit), errors.Is(err, ErrProviderDown):
		return true
	default:
		return false
	}
}
