// Package loom provides a Go client for the Loom context graph API.
package loom

import (
	"errors"
	"fmt"
)

// Error represents an error from the Loom API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("loom: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsValidation returns true if the error is a 400.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsSuperseded returns true if a PreviewLive call was replaced by a newer
// one before it rendered.
func IsSuperseded(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409 && e.Code == "superseded"
	}
	return false
}
