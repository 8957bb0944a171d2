package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Store-level sentinels. Expired and consumed codes deliberately surface as
// ErrCodeNotFound so the token endpoint cannot be used as an oracle.
var (
	ErrClientNotFound = errors.New("client not found")
	ErrClientExists   = errors.New("client already exists")
	ErrCodeNotFound   = errors.New("authorization code not found")
	ErrTokenNotFound  = errors.New("token not found")
)

// ErrorCode is an RFC 6749 error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "invalid_request"
	ErrInvalidClient        ErrorCode = "invalid_client"
	ErrInvalidGrant         ErrorCode = "invalid_grant"
	ErrUnauthorizedClient   ErrorCode = "unauthorized_client"
	ErrUnsupportedGrantType ErrorCode = "unsupported_grant_type"
	ErrUnsupportedResponse  ErrorCode = "unsupported_response_type"
	ErrInvalidScope         ErrorCode = "invalid_scope"
	ErrAccessDenied         ErrorCode = "access_denied"
	ErrInvalidToken         ErrorCode = "invalid_token"
	ErrServerError          ErrorCode = "server_error"
)

// Error is a protocol-level failure carrying the wire error code.
type Error struct {
	Code        ErrorCode
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func protocolError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// StatusCode maps the error code to the HTTP status used at the token
// endpoint and on direct authorization-endpoint errors.
func (e *Error) StatusCode() int {
	switch e.Code {
	case ErrInvalidClient, ErrInvalidToken, ErrAccessDenied:
		return http.StatusUnauthorized
	case ErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsError classifies any error as a protocol Error, wrapping store
// sentinels as invalid_grant and everything unknown as server_error.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return protocolError(ErrInvalidGrant, "authorization code is invalid")
	case errors.Is(err, ErrTokenNotFound):
		return protocolError(ErrInvalidGrant, "refresh token is invalid")
	case errors.Is(err, ErrClientNotFound):
		return protocolError(ErrInvalidClient, "client is unknown")
	default:
		return protocolError(ErrServerError, "internal error")
	}
}

// ErrorResponse is the JSON error body per OAuth2 convention.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
