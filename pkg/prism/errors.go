package prism

import "errors"

// ErrorKind classifies a failure of the analysis API surface.
type ErrorKind int

const (
	// KindInput marks a request rejected before any network call.
	KindInput ErrorKind = iota
	// KindNetwork marks a request that could not complete (connection,
	// timeout, or an unparseable response body).
	KindNetwork
	// KindServer marks a non-2xx HTTP response.
	KindServer
	// KindApplication marks an HTTP 200 whose payload carries an error
	// (ticker not found, upstream provider failure, invalid series).
	KindApplication
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindApplication:
		return "application"
	}
	return "unknown"
}

// Error is the typed failure returned by the Client. Message is suitable
// for direct display to the user.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int // HTTP status when Kind == KindServer
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts a *Error from err, or nil.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// IsUserInput reports whether err is a pre-dispatch input rejection.
func IsUserInput(err error) bool {
	pe := AsError(err)
	return pe != nil && pe.Kind == KindInput
}
