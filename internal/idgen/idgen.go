// Package idgen generates opaque identifiers for internal records.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Hex returns n random bytes hex-encoded (2n characters).
func Hex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("idgen: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns an ID like "pur_a1b2c3..." with 16 random bytes.
func WithPrefix(prefix string) string {
	return prefix + "_" + Hex(16)
}

// Purchase returns a new purchase record ID.
func Purchase() string { return WithPrefix("pur") }

// Event returns a new webhook event ID.
func Event() string { return WithPrefix("evt") }
