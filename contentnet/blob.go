package contentnet

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/chacha20poly1305"

	"xdao.co/mediacid/cidcodec"
)

const (
	// DefaultChunkSizeExp gives 256 KiB plaintext chunks.
	DefaultChunkSizeExp byte = 18
	minChunkSizeExp     byte = 10
	maxChunkSizeExp     byte = 24
)

// PaddedSize returns the plaintext length after padding n. Sizes are rounded
// up to a bucket that grows with n, at least 4 KiB and at most n/16.
func PaddedSize(n int) int {
	if n <= 0 {
		return 0
	}
	shift := bits.Len(uint(n)) - 5
	if shift < 12 {
		shift = 12
	}
	step := 1 << shift
	return (n + step - 1) / step * step
}

func chunkNonce(i uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	binary.LittleEndian.PutUint64(nonce, i)
	return nonce
}

// sealBlob encrypts plaintext chunk by chunk. Chunk i uses nonce i; every
// chunk except the last holds exactly chunkSize plaintext bytes.
func sealBlob(key cidcodec.Key, plaintext []byte, chunkSize int) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	chunks := (len(plaintext) + chunkSize - 1) / chunkSize
	out := make([]byte, 0, len(plaintext)+chunks*aead.Overhead())
	for i := 0; i < chunks; i++ {
		end := min((i+1)*chunkSize, len(plaintext))
		out = aead.Seal(out, chunkNonce(uint64(i)), plaintext[i*chunkSize:end], nil)
	}
	return out, nil
}

func openBlob(key cidcodec.Key, ciphertext []byte, chunkSize int) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	sealedChunk := chunkSize + aead.Overhead()
	out := make([]byte, 0, len(ciphertext))
	for i := 0; len(ciphertext) > 0; i++ {
		n := min(sealedChunk, len(ciphertext))
		if n <= aead.Overhead() {
			return nil, fmt.Errorf("contentnet: truncated chunk %d", i)
		}
		out, err = aead.Open(out, chunkNonce(uint64(i)), ciphertext[:n], nil)
		if err != nil {
			return nil, cidcodec.KeyMismatch(fmt.Sprintf("chunk %d does not open", i), err)
		}
		ciphertext = ciphertext[n:]
	}
	return out, nil
}
