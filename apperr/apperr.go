// Package apperr defines the error kinds every rejected action falls into.
package apperr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidPhase      = errors.New("invalid phase")
	ErrExhaustedAttempts = errors.New("no attempts left")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnavailable       = errors.New("store unavailable")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

// Unavailable marks an infrastructure fault. Both the kind and the cause
// stay reachable through errors.Is.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Code maps an error onto the status code reported to the caller.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, ErrInvalidPhase):
		return codes.FailedPrecondition
	case errors.Is(err, ErrExhaustedAttempts):
		return codes.ResourceExhausted
	case errors.Is(err, ErrConflict):
		return codes.AlreadyExists
	case errors.Is(err, ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, ErrUnavailable):
		return codes.Unavailable
	case errors.Is(err, ErrUnauthenticated):
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}
