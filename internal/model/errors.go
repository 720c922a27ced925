package model

import (
	"errors"
	"fmt"
)

// Error kinds. Typed errors below match these with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrFormat     = errors.New("unrecognized format")
	ErrIntegrity  = errors.New("integrity check failed")
	ErrStorage    = errors.New("storage failure")
)

// ValidationError reports a missing or invalid identifying field on a write.
type ValidationError struct {
	Op    string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "is required"
	}
	if e.Op == "" {
		return fmt.Sprintf("%s %s", e.Field, msg)
	}
	return fmt.Sprintf("%s: %s %s", e.Op, e.Field, msg)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FormatError reports a structurally unrecognized payload or envelope.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a backup digest mismatch.
type IntegrityError struct {
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("backup hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Is reports whether target is ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// StorageError wraps a failed or aborted backend operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
