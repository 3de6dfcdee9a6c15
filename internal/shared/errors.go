package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Hosts map errors escaping a bridged handler through this type; anything
// else becomes a 500.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrInvalidKeyLen = &RequestError{Err: errors.New("invalid API key length"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrNotFound            = &RequestError{Err: errors.New("not found"), StatusCode: 404}
)

// Bridge errors. None of these are fatal to the legacy handler; they are
// returned so Go callers can tell why a call was inert.
var (
	// ErrResponseClosed is returned by writes issued after End or Send.
	ErrResponseClosed = errors.New("response already sent")
	// ErrDeferred is returned by writes issued after the handler delegated
	// to the next handler.
	ErrDeferred = errors.New("response deferred to next handler")
	// ErrStreamAborted is returned to writers once the body consumer went away.
	ErrStreamAborted = errors.New("response stream aborted")
	// ErrHandlerPanic wraps a value recovered from a legacy handler.
	ErrHandlerPanic = errors.New("legacy handler panicked")
)

// StatusFromError returns the status code a host should answer with when a
// bridged handler fails before producing a response.
func StatusFromError(err error) int {
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr.StatusCode
	}
	return ErrInternalServerError.StatusCode
}

// PublicMessage is the body a host answers with for err. Only RequestError
// messages are exposed.
func PublicMessage(err error) string {
	var rerr *RequestError
	if errors.As(err, &rerr) && rerr.Err != nil {
		return rerr.Err.Error()
	}
	return ErrInternalServerError.Err.Error()
}
