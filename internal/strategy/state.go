package strategy

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken returns a 32-hex-char random value for state and nonce
// parameters.
func RandomToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// StateKey and NonceKey name the session slots a strategy uses to carry its
// state and nonce between the two phases, namespaced per provider so
// concurrent flows with different providers do not clobber each other.
func StateKey(provider string) string { return "oauth_state_" + provider }

func NonceKey(provider string) string { return "oauth_nonce_" + provider }
