package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the text to embed is empty after trimming.
	ErrEmptyInput = errors.New("embedding input is empty")

	// ErrProviderUnavailable means the remote call could not be completed.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderResponseInvalid means the call succeeded but carried no usable data.
	ErrProviderResponseInvalid = errors.New("embedding provider returned no embedding data")

	// ErrDegradedProvider means the provider answered with an all-zero vector.
	ErrDegradedProvider = errors.New("embedding provider returned an all-zero vector")
)

// StatusError reports a non-success HTTP status from the provider. It unwraps to
// ErrProviderUnavailable.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrProviderUnavailable
}

// FailureKind maps a provider error onto a short label for logs and metrics
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDegradedProvider):
		return "degraded_provider"
	case errors.Is(err, ErrProviderResponseInvalid):
		return "provider_response_invalid"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}
