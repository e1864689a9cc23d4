package keys

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"xdao.co/mediacid/cidcodec"
)

// SeedSize is the length of a root seed.
const SeedSize = 32

const deriveInfo = "mediacid-media-key-v1"

// DeriveMediaKey deterministically derives the key for one media item from a
// root seed. The same seed and label always yield the same key; distinct
// labels yield independent keys.
func DeriveMediaKey(rootSeed []byte, label string) (cidcodec.Key, error) {
	var k cidcodec.Key
	if len(rootSeed) != SeedSize {
		return k, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if label == "" {
		return k, fmt.Errorf("label cannot be empty")
	}
	r := hkdf.New(sha256.New, rootSeed, []byte(label), []byte(deriveInfo))
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return k, fmt.Errorf("kdf: %w", err)
	}
	return k, nil
}
