package jdfs

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// RootMarker names the root directory of every bucket. It is never generated.
const RootMarker = "ROOT"

// MarkerLen is the rendered length of a generated marker
const MarkerLen = 32

var markerPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// NewMarker returns 128 random bits as 32 lowercase hex characters.
func NewMarker() (string, error) {
	b := make([]byte, MarkerLen/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate marker: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsMarker reports whether s is a generated marker.
func IsMarker(s string) bool {
	return markerPattern.MatchString(s)
}

// markerIV decodes the leading 16 bytes of a marker for use as a CBC IV.
func markerIV(marker string) ([]byte, error) {
	if !IsMarker(marker) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarker, marker)
	}
	iv, err := hex.DecodeString(marker[:2*aes.BlockSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMarker, err)
	}
	return iv, nil
}
