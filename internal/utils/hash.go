package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText returns the hex-encoded SHA-256 of s. Raw message text, account
// numbers, and customer names must never reach a log or payload unhashed;
// this is the one sanctioned transform.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
