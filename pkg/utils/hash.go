package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns the hex sha256 of input.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashParts hashes the parts joined by a unit separator so that
// ("ab","c") and ("a","bc") never collide.
func HashParts(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}

// ShortHash is the first n hex characters of HashString.
func ShortHash(input string, n int) string {
	h := HashString(input)
	if n <= 0 || n >= len(h) {
		return h
	}
	return h[:n]
}
