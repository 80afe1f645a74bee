package ld

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest returns the hex blake3 digest of a raw document.
func Digest(raw []byte) string {
	sum := blake3.Sum256(raw)
	return fmt.Sprintf("%x", sum[:])
}
