package snapshot

import (
	"crypto/sha256"
	"fmt"
)

// HashHTML returns the SHA-256 hex digest of raw HTML bytes.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}

// Notice returns a copy of r without the document body, for console and
// log output.
func (r Result) Notice() Result {
	r.HTML = nil
	return r
}
