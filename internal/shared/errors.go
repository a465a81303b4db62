package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid input supplied by the caller.
	ErrValidation = errors.New("validation failed")
)

// AuthorizationError reports that an actor lacks a permission.
type AuthorizationError struct {
	ActorID    int64
	Permission Permission
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %d is not allowed to %s", e.ActorID, e.Permission.Key())
}

// IllegalTransitionError reports a status change outside the declared graph, or one whose
// expected source status no longer holds.
type IllegalTransitionError struct {
	Kind  string
	From  string
	To    string
	Stale bool
}

func (e *IllegalTransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("%s: status changed concurrently, %s -> %s no longer applies", e.Kind, e.From, e.To)
	}
	return fmt.Sprintf("%s: transition %s -> %s is not allowed", e.Kind, e.From, e.To)
}

// RoleInUseError guards deletion of a role that users still hold.
type RoleInUseError struct {
	RoleID  int64
	Holders int
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("role %d is held by %d user(s)", e.RoleID, e.Holders)
}

// ImmutableRoleError guards modification of system roles.
type ImmutableRoleError struct {
	RoleID int64
	Name   string
}

func (e *ImmutableRoleError) Error() string {
	return fmt.Sprintf("role %q is a system role and cannot be modified", e.Name)
}

// StorageUnavailableError wraps a failure of the backing store or cache.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a StorageUnavailableError unless it already carries a
// domain meaning callers must see unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	var (
		storage    *StorageUnavailableError
		authz      *AuthorizationError
		transition *IllegalTransitionError
		inUse      *RoleInUseError
		immutable  *ImmutableRoleError
	)
	switch {
	case errors.As(err, &storage), errors.As(err, &authz), errors.As(err, &transition),
		errors.As(err, &inUse), errors.As(err, &immutable):
		return err
	}
	return &StorageUnavailableError{Op: op, Err: err}
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsIllegalTransition reports whether err is an illegal or stale transition.
func IsIllegalTransition(err error) bool {
	var target *IllegalTransitionError
	return errors.As(err, &target)
}

// IsStorageUnavailable reports whether err originated from the storage layer.
func IsStorageUnavailable(err error) bool {
	var target *StorageUnavailableError
	return errors.As(err, &target)
}
