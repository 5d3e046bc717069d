package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// hashPrefixLen bounds how much of the normalized text feeds the hash.
// Long generative outputs almost always diverge within the first few
// hundred characters; the appended length catches the rest.
const hashPrefixLen = 256

// normalizeHash reduces a piece of generative text to a stable identity:
// whitespace collapsed, lower-cased, truncated to a fixed prefix with the
// full length appended, then hashed. Near-identical outputs that differ
// only in spacing or casing map to the same hash.
func normalizeHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	length := len(normalized)
	if length > hashPrefixLen {
		normalized = normalized[:hashPrefixLen]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", normalized, length)))
	return hex.EncodeToString(sum[:])
}
