package domain

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput signals a request the service refuses to render.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRenderFailure signals that the rendering engine reported an error.
	ErrRenderFailure = errors.New("render failure")
	// ErrRenderTimeout signals that rendering did not finish within the configured timeout.
	ErrRenderTimeout = errors.New("render timeout")
	// ErrEngineUnavailable signals that the engine lost its browser session.
	ErrEngineUnavailable = errors.New("rendering engine unavailable")

	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
	// ErrScopeDenied signals a known API key calling a route outside its scope.
	ErrScopeDenied = errors.New("api key not allowed for this route")
)

// Error carries an error kind, the HTTP status it maps to and a client-facing message.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidInput builds a 400 error.
func InvalidInput(msg string) *Error {
	return &Error{Kind: ErrInvalidInput, Status: http.StatusBadRequest, Message: msg}
}

// TooLarge builds a 413 error of the given kind.
func TooLarge(kind error, msg string) *Error {
	return &Error{Kind: kind, Status: http.StatusRequestEntityTooLarge, Message: msg}
}

// RenderFailure wraps an engine error into a 500 error that includes the engine message.
func RenderFailure(err error) *Error {
	switch {
	case errors.Is(err, ErrRenderTimeout):
		return &Error{Kind: ErrRenderFailure, Status: http.StatusRequestTimeout, Message: "PDF rendering took too long", Err: err}
	case errors.Is(err, ErrEngineUnavailable):
		return &Error{Kind: ErrRenderFailure, Status: http.StatusServiceUnavailable, Message: "Rendering engine unavailable", Err: err}
	}
	return &Error{Kind: ErrRenderFailure, Status: http.StatusInternalServerError, Message: "PDF generation failed", Err: err}
}

// StatusOf returns the HTTP status for err, or 500 for errors that are not *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
