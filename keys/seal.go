package keys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"xdao.co/mediacid/cidcodec"
)

// SealPrefix marks a sealed value so it can be told apart from plaintext JSON.
const SealPrefix = "sealed:"

// Seal encrypts plaintext under key with XChaCha20-Poly1305 and returns
// SealPrefix + base64url(nonce || ciphertext).
func Seal(key cidcodec.Key, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keys: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, nil)
	return SealPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any authentication failure is a key mismatch.
func Open(key cidcodec.Key, sealed string) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, cidcodec.KeyMismatch("value is not sealed", nil)
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed[len(SealPrefix):])
	if err != nil {
		return nil, cidcodec.KeyMismatch("sealed value is not base64url", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, cidcodec.KeyMismatch("sealed value too short", nil)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, cidcodec.KeyMismatch("sealed value failed authentication", err)
	}
	return plain, nil
}

// IsSealed reports whether s looks like output of Seal.
func IsSealed(s string) bool {
	return len(s) > len(SealPrefix) && s[:len(SealPrefix)] == SealPrefix
}
