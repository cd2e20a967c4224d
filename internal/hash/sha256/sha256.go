// Package sha256 fingerprints output artifacts so downstream consumers can
// detect unchanged runs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
