package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the content fingerprint of a bytecode module: the
// hex-encoded SHA-256 of its bytes. An artifact is valid only for the exact
// fingerprint it was compiled from; staleness is detected by fingerprint
// mismatch, never by timestamps.
func Fingerprint(bytecode []byte) string {
	sum := sha256.Sum256(bytecode)
	return hex.EncodeToString(sum[:])
}
