package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds returned by the Whoop client. Use errors.Is to classify a failure.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrHTTP         = errors.New("http error")
	ErrTransport    = errors.New("transport error")
)

// APIError is a non-2xx response from the Whoop API.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
	Body       string

	kind error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Whoop API error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// TransportError means no HTTP response was received (connection failure, timeout).
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s failed: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// newAPIError maps a status code to its error kind. 401 is handled by the caller
// first since it may trigger a token refresh.
func newAPIError(statusCode int, path string, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode, Path: path, Body: string(body)}

	switch {
	case statusCode == http.StatusUnauthorized:
		e.kind = ErrUnauthorized
		e.Message = "Invalid or expired access token"
	case statusCode == http.StatusNotFound:
		e.kind = ErrNotFound
		e.Message = fmt.Sprintf("Resource not found: %s", path)
	case statusCode == http.StatusTooManyRequests:
		e.kind = ErrRateLimited
		e.Message = "Rate limit exceeded. Please retry later."
	case statusCode >= http.StatusInternalServerError:
		e.kind = ErrServer
		e.Message = "Whoop server error. Please retry."
	default:
		e.kind = ErrHTTP
		e.Message = fmt.Sprintf("unexpected status %d: %s", statusCode, string(body))
	}

	return e
}
