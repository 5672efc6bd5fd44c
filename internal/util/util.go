package util

import (
	"crypto/sha1"
	"encoding/hex"
)

// GetIDFromString returns a stable hex id for an arbitrary string, used to
// keep raw values (like remote addresses) out of ledger keys.
func GetIDFromString(str string) string {
	hasher := sha1.New()
	hasher.Write([]byte(str))

	return hex.EncodeToString(hasher.Sum(nil))
}
