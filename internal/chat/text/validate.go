// Package text validates user-supplied strings at the protocol boundary.
package text

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrEmpty is returned for a missing or empty required field.
var ErrEmpty = errors.New("must not be empty")

// ErrInvalidUTF8 is returned for byte sequences that are not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// Validate checks that s is non-empty, valid UTF-8, and at most
// maxLength bytes.
//
// Precondition: maxLength must be > 0.
// Postcondition: Returns nil if s is acceptable, or a descriptive error.
func Validate(s string, maxLength int) error {
	if s == "" {
		return ErrEmpty
	}
	if len(s) > maxLength {
		return fmt.Errorf("exceeds %d bytes", maxLength)
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	return nil
}
