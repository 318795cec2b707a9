package chat

import "errors"

var (
	ErrEmptyMessages     = errors.New("chat request has no messages")
	ErrMissingModel      = errors.New("chat request has no model")
	ErrEmptyContent      = errors.New("chat turn has no content")
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownPreference = errors.New("unknown preference")
	ErrMalformedPayload  = errors.New("malformed stream payload")
)

// ErrorResponse is the JSON body returned by typhoon HTTP handlers on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
