package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// Input/lookup.
	ErrInvalidArgument = "E_INVALID_ARGUMENT"
	ErrNotFound        = "E_NOT_FOUND"
	ErrAlreadyExists   = "E_ALREADY_EXISTS"

	// Event lifecycle.
	ErrInvalidState = "E_INVALID_STATE"

	// Generation interface, durable storage.
	ErrExternal = "E_EXTERNAL"
	ErrInternal = "E_INTERNAL"

	// Recorded in the narrative log, never returned.
	WarnEffect = "W_EFFECT"
)

var knownCodes = map[string]struct{}{
	ErrInvalidArgument: {},
	ErrNotFound:        {},
	ErrAlreadyExists:   {},
	ErrInvalidState:    {},
	ErrExternal:        {},
	ErrInternal:        {},
	WarnEffect:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error is the structured error returned by every public sim operation.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func Errorf(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// External wraps a collaborator failure, keeping the cause reachable.
func External(op string, err error) error {
	return fmt.Errorf("%w: %w", &Error{Code: ErrExternal, Message: op}, err)
}

// CodeOf returns the code of the first *Error in err's chain, E_INTERNAL otherwise.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrInternal
}

func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

func HTTPStatus(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAlreadyExists, ErrInvalidState:
		return http.StatusConflict
	case ErrExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
