// Package domain id.go contains functions to generate, parse, and validate IDs
package domain

import (
	"crypto/rand"
	"encoding/hex"
)

// ID identifies a pending call or a file the service owns in app-private
// storage. It is a 128-bit random value encoded as 32 lowercase hex characters,
// which also makes it safe to use as a file name.
type ID string

// NewID generates a new cryptographically random 128-bit ID encoded
// as 32 lowercase hexadecimal characters.
func NewID() (ID, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	dst := make([]byte, 32)
	hex.Encode(dst, b[:]) // hex.Encode always produces lowercase
	return ID(dst), nil
}

// ParseID validates s and returns it as an ID. It enforces:
// - non-empty
// - length == 32
// - only lowercase [0-9a-f]
// Returns ErrInvalidID on failure.
func ParseID(s string) (ID, error) {
	if !isValidID(s) {
		return "", ErrInvalidID
	}
	return ID(s), nil
}

// String returns the string form of the ID.
func (id ID) String() string { return string(id) }

// Valid reports whether the ID satisfies the same rules as ParseID.
func (id ID) Valid() bool { return isValidID(string(id)) }

// isValidID performs validation without allocating errors.
func isValidID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
