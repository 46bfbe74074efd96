package core

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (optionally wrapped in StoreError) by Store and
// Collection operations.
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrInvalidDimension   = errors.New("invalid vector dimension")
	ErrPointNotFound      = errors.New("point not found")
	ErrPointExists        = errors.New("point already exists")
	ErrInvalidVector      = errors.New("invalid vector data")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrCapacity           = errors.New("collection at capacity")
	ErrIO                 = errors.New("i/o error")
	ErrCorruptFormat      = errors.New("corrupt snapshot format")
	ErrInternal           = errors.New("internal invariant violation")
)

// StoreError wraps an error with the operation name that produced it, the
// same convention the teacher's root-level errors.go uses for every
// public method so callers can errors.Is/errors.As against the sentinel
// while logs retain the call site.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vectorcore: %v", e.Err)
	}
	return fmt.Sprintf("vectorcore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return errors.Is(e.Err, target) }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
