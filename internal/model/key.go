package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
)

// keyLen is the hex length of an item key. 128 bits of the path hash keeps
// keys collision-resistant while staying well under filename length limits.
const keyLen = 32

var keyRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ItemKey derives the stable identity of a work item from its path relative
// to the source root. The path is normalized to forward slashes first so the
// same item hashes identically from every participating host.
func ItemKey(relPath string) string {
	h := sha256.Sum256([]byte(filepath.ToSlash(relPath)))
	return hex.EncodeToString(h[:])[:keyLen]
}

// ValidKey reports whether s has the shape of an item key. Used when scanning
// the lease store to skip stray entries.
func ValidKey(s string) bool {
	return keyRegex.MatchString(s)
}
