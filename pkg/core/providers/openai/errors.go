package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// Error represents an API error from OpenAI.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	StatusCode    int       `json:"status_code,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("openai: %s: %s", e.Type, e.Message)
}

// IsRetryable returns true if the error is transient.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrAPI, ErrOverloaded:
		return true
	default:
		return false
	}
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param,omitempty"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var retryAfter *int
	if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			retryAfter = &n
		}
	}

	var openaiErr openaiError
	if err := json.Unmarshal(body, &openaiErr); err != nil || openaiErr.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{
			Type:       mapErrorType("", resp.StatusCode),
			Message:    msg,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
		}
	}

	return &Error{
		Type:          mapErrorType(openaiErr.Error.Type, resp.StatusCode),
		Message:       openaiErr.Error.Message,
		Code:          openaiErr.Error.Code,
		Param:         openaiErr.Error.Param,
		StatusCode:    resp.StatusCode,
		ProviderError: openaiErr.Error,
		RetryAfter:    retryAfter,
	}
}

func mapErrorType(upstream string, status int) ErrorType {
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	case http.StatusUnauthorized:
		return ErrAuthentication
	}
	switch upstream {
	case "invalid_request_error":
		return ErrInvalidRequest
	case "authentication_error":
		return ErrAuthentication
	case "permission_error", "insufficient_quota":
		return ErrPermission
	case "not_found_error":
		return ErrNotFound
	case "rate_limit_error":
		return ErrRateLimit
	case "server_error", "api_error":
		return ErrAPI
	case "overloaded_error", "service_unavailable":
		return ErrOverloaded
	}
	if status >= 500 {
		return ErrAPI
	}
	return ErrProvider
}
