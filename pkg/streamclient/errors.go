package streamclient

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect wraps every failure to establish a stream.
	ErrConnect = errors.New("stream connect failed")

	// ErrTransport wraps read failures after the stream was established.
	ErrTransport = errors.New("stream transport failed")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("stream closed")
)

// StatusError reports a non-200 response to a stream request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Is makes a StatusError match ErrConnect.
func (e *StatusError) Is(target error) bool {
	return target == ErrConnect
}
