package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoAPIKey is returned by HTTP providers created without a key.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrInvalidConfig is returned for out of range provider settings.
	ErrInvalidConfig = errors.New("tts: invalid config")

	// ErrEmptyText is returned for a blank phrase.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrProviderUnavailable is returned when no provider can speak.
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// Error records which provider and operation failed.
type Error struct {
	Provider string
	Op       string // "synthesize" or "health"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tts %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: provider, Op: op, Err: err}
}

// APIError is a non-200 response from a speech API.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("tts %s: status %d", e.Provider, e.StatusCode)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return msg + ": " + e.Message
}

// IsUnauthorized reports a rejected key.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsRetryable reports throttling or a server failure.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
