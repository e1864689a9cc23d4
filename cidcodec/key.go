package cidcodec

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
)

// KeySize is the length of the embedded symmetric key.
const KeySize = 32

// Key is the symmetric key carried inside an encrypted identifier.
type Key [KeySize]byte

// ParseKey decodes a base64url key (padding optional).
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := decodeBase64URL(s)
	if err != nil {
		return k, KeyMismatch("key is not base64url", err)
	}
	if len(b) != KeySize {
		return k, KeyMismatch("key must decode to 32 bytes", nil)
	}
	copy(k[:], b)
	return k, nil
}

// GenerateKey reads a fresh key from r (crypto/rand when nil).
func GenerateKey(r io.Reader) (Key, error) {
	if r == nil {
		r = rand.Reader
	}
	var k Key
	_, err := io.ReadFull(r, k[:])
	return k, err
}

// String returns the unpadded base64url form.
func (k Key) String() string { return encodeBase64URL(k[:]) }

// IsZero reports whether k is all zeroes.
func (k Key) IsZero() bool { return k == Key{} }

// Equal compares in constant time.
func (k Key) Equal(o Key) bool { return subtle.ConstantTimeCompare(k[:], o[:]) == 1 }
