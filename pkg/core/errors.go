package core

import (
	"errors"
	"fmt"
)

// Error is the error model shared by the gateway and the client runtime.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrTransport is a dropped or unreachable connection.
	ErrTransport ErrorType = "transport_error"
	// ErrProvider is a completion, synthesis or avatar API failure.
	ErrProvider ErrorType = "provider_error"
	// ErrPlayback is blocked or failed audio output.
	ErrPlayback ErrorType = "playback_error"
	// ErrConfig is missing or invalid process configuration.
	ErrConfig ErrorType = "config_error"

	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAPI            ErrorType = "api_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrOverloaded     ErrorType = "overloaded_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewConfigError creates a configuration error for the named setting.
func NewConfigError(param, message string) *Error {
	return &Error{
		Type:    ErrConfig,
		Message: message,
		Param:   param,
	}
}

// NewTransportError wraps a connection failure.
func NewTransportError(underlying error) *Error {
	return &Error{
		Type:          ErrTransport,
		Message:       underlying.Error(),
		ProviderError: underlying,
	}
}

// NewPlaybackError wraps an audio output failure.
func NewPlaybackError(underlying error) *Error {
	return &Error{
		Type:          ErrPlayback,
		Message:       underlying.Error(),
		ProviderError: underlying,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrProvider,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying,
	}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrTransport, ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}

// TypeOf reports the ErrorType of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ""
}
