package jdfs

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransportError represents a failure below the object-store protocol:
// timeouts, refused connections, TLS failures. It is never retried here.
type TransportError struct {
	Op  string // HTTP method
	URL string // Request URL
	Err error  // Underlying transport error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a structured error returned by the object store.
type ProtocolError struct {
	StatusCode int    // HTTP status code
	Code       string // Machine-readable code, e.g. NoSuchKey
	Message    string // Store supplied message
	Resource   string // Resource the request addressed
}

func (e *ProtocolError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("store error: %s: %s (%d): %s", e.Resource, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("store error: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// CryptographicError represents an undecryptable object or key file, or a
// password that does not match. It is distinct from absence so callers can
// prompt instead of treating the bucket as empty.
type CryptographicError struct {
	Path    string // Object path, if applicable
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CryptographicError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cryptographic error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("cryptographic error: %s", e.Message)
}

func (e *CryptographicError) Unwrap() error {
	return e.Err
}

// PathError records a failed virtual filesystem operation.
type PathError struct {
	Op   string // "resolve", "read", "write", "delete", "mkdir", "list"
	Path string // Virtual path
	Err  error  // Underlying error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// OrphanedPointerError is returned when a content upload failed and the
// compensating delete of its pointer object failed as well. The pointer
// remains in the bucket without content.
type OrphanedPointerError struct {
	PointerKey string // Pointer object left behind
	Cause      error  // Content write failure
	CleanupErr error  // Compensating delete failure
}

func (e *OrphanedPointerError) Error() string {
	return fmt.Sprintf("orphaned pointer %s: write failed: %v; cleanup failed: %v", e.PointerKey, e.Cause, e.CleanupErr)
}

func (e *OrphanedPointerError) Unwrap() []error {
	return []error{e.Cause, e.CleanupErr}
}

// Common sentinel errors
var (
	ErrKeyNotFound       = errors.New("no password available for encrypted object")
	ErrWrongPassword     = errors.New("password does not match")
	ErrNotADirectory     = errors.New("not a directory")
	ErrNotAFile          = errors.New("not a file")
	ErrNotFound          = errors.New("no such file or directory")
	ErrExist             = errors.New("file already exists")
	ErrAlreadyExists     = errors.New("bucket already exists")
	ErrUnsupportedBucket = errors.New("only advanced buckets are supported")
	ErrNilConfig         = errors.New("config cannot be nil")
	ErrInvalidMarker     = errors.New("invalid marker")
)

// Store error codes that mean "absent" rather than failure.
const (
	CodeNoSuchKey               = "NoSuchKey"
	CodeNoSuchBucket            = "NoSuchBucket"
	CodeBucketAlreadyOwnedByYou = "BucketAlreadyOwnedByYou"
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewCryptographicError creates a new cryptographic error
func NewCryptographicError(path string, err error) error {
	return &CryptographicError{
		Path:    path,
		Message: err.Error(),
		Err:     err,
	}
}

func newPathError(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransportError checks if an error is a transport error
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError checks if an error is a store protocol error
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsCryptographicError checks if an error is a cryptographic error
func IsCryptographicError(err error) bool {
	var ce *CryptographicError
	return errors.As(err, &ce)
}

// ErrorCode returns the store error code carried by err, or "".
func ErrorCode(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsAbsent reports whether err is a store error meaning the key or bucket
// does not exist.
func IsAbsent(err error) bool {
	switch ErrorCode(err) {
	case CodeNoSuchKey, CodeNoSuchBucket:
		return true
	}
	return false
}
