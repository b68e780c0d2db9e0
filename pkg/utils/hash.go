package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashString keys cache entries by content.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum[:16])
}
