// Package vfscore defines the types and error taxonomy shared by every
// layer of the virtual file system: the block and inode allocators, the
// block map, the directory codec, the namespace resolver, the open-file
// table, and the byte-cursor file handle.
package vfscore

import "fmt"

// DriverError is the interface every error returned by this module's public
// operations satisfies. It lets a caller attach context without losing the
// underlying sentinel for comparison with errors.Is.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
	Unwrap() error
}

// Error is a sentinel error type for the taxonomy in spec §7. Each exported
// Err* value below is independently comparable with errors.Is.
type Error string

const (
	// ErrInvalidPath means a path is malformed or uses a rejected character.
	ErrInvalidPath = Error("invalid path")
	// ErrNotFound means a path component is missing and creation wasn't
	// permitted.
	ErrNotFound = Error("no such file or directory")
	// ErrNotADirectory means an intermediate path component is a regular
	// file.
	ErrNotADirectory = Error("not a directory")
	// ErrIsADirectory means the caller tried to open a directory. A
	// non-recursive remove of a directory is not reported with it: an empty
	// directory is removed, and one with entries gives ErrDirectoryNotEmpty.
	ErrIsADirectory = Error("is a directory")
	// ErrBusy means the open-mode compatibility rule in spec §4.6 was
	// violated.
	ErrBusy = Error("resource busy")
	// ErrExhausted means there was no free inode, or no free block in any
	// storage.
	ErrExhausted = Error("allocator exhausted")
	// ErrIOError means a host-level failure occurred on a backing file.
	ErrIOError = Error("I/O error")
	// ErrBadMode means an unknown mode character, or a contradictory set of
	// open flags, was given.
	ErrBadMode = Error("bad open mode")
	// ErrExists means the terminal path component already exists with a
	// type that conflicts with the requested operation.
	ErrExists = Error("already exists")
	// ErrDirectoryNotEmpty means a non-recursive remove was attempted on a
	// directory that still has entries.
	ErrDirectoryNotEmpty = Error("directory not empty")
	// ErrNotSupported means the operation has no meaning for this volume.
	ErrNotSupported = Error("not supported")
)

func (e Error) Error() string {
	return string(e)
}

// WithMessage attaches a human-readable message to the sentinel without
// losing the ability to match it with errors.Is(err, ErrNotFound) and
// friends.
func (e Error) WithMessage(message string) DriverError {
	return &wrappedError{sentinel: e, message: message}
}

// WrapError attaches an underlying error, preserving both for inspection.
func (e Error) WrapError(err error) DriverError {
	return &wrappedError{
		sentinel: e,
		message:  fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		wrapped:  err,
	}
}

// WrapErrorIfNotNil is WrapError, except it returns nil when err is nil, for
// one-line "forward the stdlib error if there is one" call sites.
func (e Error) WrapErrorIfNotNil(err error) error {
	if err == nil {
		return nil
	}
	return e.WrapError(err)
}

type wrappedError struct {
	sentinel Error
	message  string
	wrapped  error
}

func (e *wrappedError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.sentinel.Error()
}

func (e *wrappedError) WithMessage(message string) DriverError {
	return &wrappedError{sentinel: e.sentinel, message: message, wrapped: e}
}

func (e *wrappedError) WrapError(err error) DriverError {
	return &wrappedError{
		sentinel: e.sentinel,
		message:  fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		wrapped:  err,
	}
}

// Is lets errors.Is(err, ErrNotFound) match the sentinel e carries.
func (e *wrappedError) Is(target error) bool {
	return target == e.sentinel
}

// Unwrap returns the wrapped cause when there is one, so errors.Is also
// sees through to it, and the sentinel otherwise.
func (e *wrappedError) Unwrap() error {
	if e.wrapped != nil {
		return e.wrapped
	}
	return e.sentinel
}
