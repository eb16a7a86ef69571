package utils

import (
	"crypto/md5"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
)

// GenUuidFromStrings derives a stable UUID from the given parts. The
// parts are sorted before hashing, so order does not matter.
func GenUuidFromStrings(parts ...string) string {
	if len(parts) == 0 {
		parts = []string{uuid.Nil.String()}
	}

	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)

	sum := md5.Sum([]byte(strings.Join(sorted, "")))
	// Stamp version and variant bits so the result is a valid v3-style UUID.
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum[:]).String()
}
