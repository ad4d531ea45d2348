package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CacheKey returns the SHA-256 hex of the normalized address. The
// normalization (NFC, lower case, collapsed whitespace) makes the key
// invariant under the usual variations in user-typed addresses.
func CacheKey(address string) string {
	normalized := norm.NFC.String(strings.ToLower(strings.TrimSpace(address)))
	normalized = strings.Join(strings.Fields(normalized), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
