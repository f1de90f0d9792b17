package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// StorageError wraps a failed call to the storage collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DispatchError wraps a failure to hand a fan-out job to the queue.
type DispatchError struct {
	Task string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Task, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsAbsorbable reports whether err is a per-item visibility or existence
// failure that readers drop instead of failing the whole request.
func IsAbsorbable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}
