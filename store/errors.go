package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a nil or empty argument. It is returned
	// before any storage access.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRoleNotFound reports a role name that resolves to no role.
	ErrRoleNotFound = errors.New("role not found")
	// ErrDisposed is returned by every operation on a closed store.
	ErrDisposed = errors.New("store disposed")
)

func invalid(name string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, name)
}

func roleNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrRoleNotFound, name)
}
