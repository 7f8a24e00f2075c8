package main

import (
	"crypto/rand"
	"encoding/hex"
)

// ephemeralSecret returns a random master secret for development runs. Sessions do not survive a
// restart when it is used.
func ephemeralSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
