package jdfs

import (
	"fmt"
	"strings"
)

// Input validation helpers

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
		}
	}
	if len(key) != expectedSize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
		}
	}
	return nil
}

// ValidateIV checks if an IV matches the cipher block size
func ValidateIV(iv []byte, blockSize int) error {
	if len(iv) != blockSize {
		return &ValidationError{
			Field:   "iv",
			Value:   len(iv),
			Message: fmt.Sprintf("invalid IV size: got %d bytes, expected %d bytes", len(iv), blockSize),
		}
	}
	return nil
}

// ValidateSize checks a declared content length
func ValidateSize(size int64) error {
	if size < 0 {
		return &ValidationError{
			Field:   "size",
			Value:   size,
			Message: "size cannot be negative",
		}
	}
	return nil
}

// ValidateName checks a single file or directory name
func ValidateName(name string) error {
	var msg string
	switch {
	case name == "":
		msg = "name cannot be empty"
	case strings.ContainsAny(name, `/\`):
		msg = "name cannot contain a path separator"
	case strings.IndexByte(name, 0) >= 0:
		msg = "name cannot contain NUL"
	case name == "." || name == "..":
		msg = "name cannot be a relative path element"
	default:
		return nil
	}
	return &ValidationError{Field: "name", Value: name, Message: msg}
}

// ValidateBucketName checks the display name of an advanced bucket
func ValidateBucketName(name string) error {
	if name == "" {
		return &ValidationError{Field: "bucket", Message: "bucket name cannot be empty"}
	}
	if strings.ContainsAny(name, `/\`) {
		return &ValidationError{
			Field:   "bucket",
			Value:   name,
			Message: "bucket name cannot contain a path separator",
		}
	}
	return nil
}
