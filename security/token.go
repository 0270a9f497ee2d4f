package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenEntropyBytes is the entropy of generated tokens. 20 bytes hex-encode
// to a 40-character opaque value.
const tokenEntropyBytes = 20

// GenerateToken returns a cryptographically random opaque token: 40 lowercase
// hex characters. Used for access tokens, refresh tokens and authorization
// codes whenever the model does not supply its own generator.
//
// The function panics if the system's random number generator fails, which
// indicates a critical system-level failure.
func GenerateToken() string {
	b := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return hex.EncodeToString(b)
}
