package backend

import (
	"errors"
	"fmt"
)

var (
	ErrTransport = errors.New("backend unavailable")
	ErrMalformed = errors.New("malformed backend response")
)

// APIError is a response the backend answered with success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend request failed (status %d)", e.Status)
	}
	return e.Message
}

// UserMessage picks the text a person should see for err. Server messages
// are passed through as-is; everything else collapses to fallback.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
