package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider-side failure modes, checked with errors.Is.
var (
	// ErrInvalidAPIKey indicates the key is missing, malformed, or unauthorized.
	ErrInvalidAPIKey = errors.New("llm: invalid API key")

	// ErrRateLimited indicates the vendor's rate limit has been exceeded.
	ErrRateLimited = errors.New("llm: rate limit exceeded")

	// ErrContentBlocked indicates the vendor refused to generate for this input.
	ErrContentBlocked = errors.New("llm: content blocked by provider")

	// ErrProviderUnavailable indicates the vendor service is down or unreachable.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
)

// ErrProhibitedContent is the distinguished content-block sub-case that
// warrants an admin-facing moderation notice. It wraps ErrContentBlocked so
// errors.Is(err, ErrContentBlocked) also holds.
var ErrProhibitedContent = fmt.Errorf("llm: prohibited content: %w", ErrContentBlocked)

// ProviderError wraps an error from the underlying vendor API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error is worth retrying at stream start.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}
