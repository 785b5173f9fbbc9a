package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrUnrecognizedEnvelope    = errors.New("unrecognized response envelope")
	ErrInvalidUploadDescriptor = errors.New("invalid upload descriptor")
	ErrFallbackDisabled        = errors.New("fallback disabled")
	ErrNoBaseURL               = errors.New("gateway base url is not configured")
)

const maxErrorBody = 512

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func newStatusError(method, url string, status int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Method: method, URL: url, StatusCode: status, Body: string(body)}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
