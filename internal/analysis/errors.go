package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySubmission is returned when neither text nor a file was given.
	ErrEmptySubmission = errors.New("submission has neither text nor file")

	// ErrMalformedResponse marks a 2xx response whose body is not a usable result.
	ErrMalformedResponse = errors.New("malformed analysis response")
)

// RequestError describes a failed call to the analysis service: a transport
// failure (Status 0), a non-2xx status, or an unusable body.
type RequestError struct {
	Status        int
	ServerMessage string
	Cause         error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	switch {
	case e.ServerMessage != "":
		return fmt.Sprintf("analysis request failed (status %d): %s", e.Status, e.ServerMessage)
	case e.Cause != nil:
		return fmt.Sprintf("analysis request failed (status %d): %v", e.Status, e.Cause)
	default:
		return fmt.Sprintf("analysis request failed (status %d)", e.Status)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the server-provided message, or fallback when there is none.
func (e *RequestError) UserMessage(fallback string) string {
	if e.ServerMessage != "" {
		return e.ServerMessage
	}
	return fallback
}

// IsTransport reports whether no HTTP response was received.
func (e *RequestError) IsTransport() bool {
	return e.Status == 0
}
