package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest computes the stable content digest of a trace's text: lowercase
// hex SHA-256, 64 characters. Equality of digests is the only comparison
// consumers rely on; everywhere a digest substitutes for full-text
// comparison, this function is the source of truth.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
