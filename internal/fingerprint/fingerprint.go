// Package fingerprint computes content fingerprints for checkpoints and
// patch anchors.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hex returns the hex-encoded SHA-256 digest of data.
func Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
