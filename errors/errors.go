package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// Relay core
	ErrAuthentication      = fmt.Errorf("authentication failed")
	ErrValidation          = fmt.Errorf("validation failed")
	ErrStorage             = fmt.Errorf("storage unavailable")
	ErrDuplicateConnection = fmt.Errorf("connection already registered")
	ErrUnknownConnection   = fmt.Errorf("connection not registered")
	ErrNotInRoom           = fmt.Errorf("connection is not in this room")
	ErrSinkClosed          = fmt.Errorf("sink closed")
	ErrSlowConsumer        = fmt.Errorf("sink buffer full")
	ErrBroadcasterStopped  = fmt.Errorf("broadcaster stopped")

	// Accounts and uploads
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("username already exists")
	ErrInvalidPassword    = fmt.Errorf("invalid username or password format")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUnsupportedMedia   = fmt.Errorf("invalid file type")
	ErrFileTooLarge       = fmt.Errorf("file too large")
)

// IsFatal reports whether err breaks a registry invariant. Such errors end
// the connection's session instead of being reported back to it.
func IsFatal(err error) bool {
	return goerrors.Is(err, ErrDuplicateConnection) ||
		goerrors.Is(err, ErrUnknownConnection)
}

// HTTPStatus maps a sentinel to the status code returned by the HTTP API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case goerrors.Is(err, ErrInvalidCredentials), goerrors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case goerrors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case goerrors.Is(err, ErrInvalidPassword), goerrors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case goerrors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case goerrors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case goerrors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
