// Package digest derives cache-safe keys from raw user identifiers.
package digest

import (
	"crypto/sha256"
	"encoding/base64"
)

// Of returns the URL-safe, unpadded base64 of the SHA-256 digest of rawID.
// It is deterministic and stable across restarts, and is used only as an
// in-process cache key so raw identifiers never enter the profile cache.
func Of(rawID string) string {
	sum := sha256.Sum256([]byte(rawID))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
