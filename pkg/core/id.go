package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns a prefixed random identifier, e.g. "sess_9f1c2ab0d4e5f601".
func NewID(prefix string) string {
	return prefix + "_" + RandHex(8)
}

// RandHex returns nbytes of hex-encoded randomness.
func RandHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand should not fail in practice; fall back to time-based entropy.
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
