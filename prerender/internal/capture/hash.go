package capture

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Supported cache-bust digests.
const (
	HashMD5     = "md5"
	HashSHA256  = "sha256"
	HashBLAKE2b = "blake2b"
)

// ValidHash reports whether name is a supported digest ("" means md5).
func ValidHash(name string) bool {
	switch name {
	case "", HashMD5, HashSHA256, HashBLAKE2b:
		return true
	}
	return false
}

// Digest returns the hex digest of data. The value only needs to be stable
// for identical payloads and evenly distributed.
func Digest(name string, data []byte) (string, error) {
	switch name {
	case "", HashMD5:
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:]), nil
	case HashSHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	case HashBLAKE2b:
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	}
	return "", fmt.Errorf("capture: unknown hash %q", name)
}
