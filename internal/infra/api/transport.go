// Package api implements the transport boundary to the inventory backend.
//
// This package contains:
//   - Transport interface: the single method every layer above talks to
//   - Response, TransportError and StatusError: structured outcomes
//   - HTTPTransport: JSON over HTTP implementation with bearer credentials
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Code identifies a transport-level failure that produced no HTTP response.
type Code string

const (
	CodeConnectionRefused Code = "connection-refused"
	CodeNetwork           Code = "network-error"
	CodeTimeout           Code = "timeout"
)

// Transport issues a request to the backend.
// A non-2xx response is returned as a *StatusError, a failure without any
// response as a *TransportError.
type Transport interface {
	Request(ctx context.Context, method, path string, params url.Values) (*Response, error)
}

// TokenSource supplies the bearer credential attached to every request.
// An empty token means no Authorization header.
type TokenSource interface {
	Token() string
}

// Response is a settled 2xx backend response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// TransportError is a failure that never reached an HTTP status.
type TransportError struct {
	Code Code
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusError is a response with a non-2xx status code.
type StatusError struct {
	Status int
	Op     string
	Body   []byte
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	const maxBody = 200
	body := string(e.Body)
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, body)
}

// Idempotent reports whether requests with this method are read-only.
func Idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RequestID identifies identical requests: method plus endpoint with its
// canonical (sorted) query string.
func RequestID(method, path string, params url.Values) string {
	if len(params) == 0 {
		return method + " " + path
	}
	return method + " " + path + "?" + params.Encode()
}

// GetJSON issues a GET and decodes the JSON body into T.
func GetJSON[T any](ctx context.Context, t Transport, path string, params url.Values) (T, error) {
	var out T
	resp, err := t.Request(ctx, http.MethodGet, path, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}
