package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorType categorizes provider errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// Error is an API error returned by OpenAI.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	StatusCode int       `json:"status_code"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai: %s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("openai: %s: %s", e.Type, e.Message)
}

// IsRetryable reports whether a later identical request may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Error.Message == "" {
		return &Error{Type: ErrProvider, Message: string(body), StatusCode: resp.StatusCode}
	}

	var typ ErrorType
	switch ae.Error.Type {
	case "invalid_request_error":
		typ = ErrInvalidRequest
	case "authentication_error":
		typ = ErrAuthentication
	case "permission_error", "insufficient_quota":
		typ = ErrPermission
	case "rate_limit_error":
		typ = ErrRateLimit
	case "server_error", "api_error":
		typ = ErrAPI
	default:
		typ = ErrProvider
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		typ = ErrAuthentication
	case http.StatusTooManyRequests:
		typ = ErrRateLimit
	case http.StatusServiceUnavailable:
		typ = ErrOverloaded
	}
	return &Error{Type: typ, Message: ae.Error.Message, Code: ae.Error.Code, StatusCode: resp.StatusCode}
}
