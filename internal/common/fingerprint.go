package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the content hash used by the change-detection gate.
// SHA-256 over the normalized content, hex-encoded.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
