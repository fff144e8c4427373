// Package service implements the application's operations.  Every operation
// authenticates the caller, asks the policy, validates, mutates through the
// repositories and then runs its side effects (notifications, realtime
// broadcasts, cache invalidation).  Side effects run after the mutation has
// committed; their failures are logged and never undo or fail the
// operation.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/taskflow/internal/repository"
)

// Error kinds returned by every service.  Details are wrapped around them
// with fmt.Errorf("%w: ..."), so callers match with errors.Is.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbidden(action string) error {
	return fmt.Errorf("%w to %s", ErrForbidden, action)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// fromRepo translates repository sentinels for the named entity.
func fromRepo(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s not found", ErrNotFound, entity)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s already exists", ErrConflict, entity)
	case errors.Is(err, repository.ErrOpenEntryExists):
		return fmt.Errorf("%w: %s", ErrConflict, err)
	}
	return err
}
