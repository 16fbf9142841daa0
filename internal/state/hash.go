package state

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns a stable hex-encoded SHA-256 hash for content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the first 8 hex characters of HashContent, used as a
// readable canvas version id.
func ShortHash(content string) string {
	return HashContent(content)[:8]
}
