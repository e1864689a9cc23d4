package cidcodec

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
)

const (
	// MarkerEncryptedStatic marks an encrypted, immutable blob.
	MarkerEncryptedStatic byte = 0xae
	// AlgorithmXChaCha20Poly1305 is the only encryption algorithm produced here.
	AlgorithmXChaCha20Poly1305 byte = 0xa6
	// HashTypeSHA256 tags a sha2-256 digest in the blob-hash field.
	HashTypeSHA256 byte = 0x12
)

// Layout is the decoded payload of an encrypted identifier.
type Layout struct {
	Marker       byte
	Algorithm    byte
	ChunkSizeExp byte
	BlobHash     [BlobHashSize]byte
	// Key is nil in the key-stripped form.
	Key *Key
	// Padding is the number of zero bytes appended to the plaintext before encryption.
	Padding uint32
	// Original is the CID of the plaintext; cid.Undef when the trailer is empty.
	Original cid.Cid
}

// ChunkSize returns 2^ChunkSizeExp.
func (l Layout) ChunkSize() int { return 1 << l.ChunkSizeExp }

// Digest returns the 32-byte digest part of the blob hash.
func (l Layout) Digest() []byte { return l.BlobHash[1:] }

// Payload serializes the layout. The key region is written only when Key is set.
func (l Layout) Payload() []byte {
	out := make([]byte, 0, KeyedHeaderSize+PaddingFieldSize+64)
	out = append(out, l.Marker, l.Algorithm, l.ChunkSizeExp)
	out = append(out, l.BlobHash[:]...)
	if l.Key != nil {
		out = append(out, l.Key[:]...)
	}
	if l.Original.Defined() {
		out = binary.LittleEndian.AppendUint32(out, l.Padding)
		out = append(out, l.Original.Bytes()...)
	}
	return out
}

// Encode returns the 'u'-prefixed identifier for l, without scheme or extension.
func (l Layout) Encode() string {
	return string(MultibasePrefix) + encodeBase64URL(l.Payload())
}

// Decode parses an encrypted identifier in either representation.
//
// The key region is detected by where the trailer parses as padding followed by
// a well-formed CID: the with-key reading is tried first, then the key-stripped
// one. Trailer-less payloads are recognized by their exact length. Anything
// else is malformed.
func Decode(s string) (Layout, error) {
	_, payload, err := decodeIdentifier(s)
	if err != nil {
		return Layout{}, err
	}
	if len(payload) < HeaderSize {
		return Layout{}, malformed(s, "payload shorter than header")
	}
	if payload[offsetMarker] != MarkerEncryptedStatic {
		return Layout{}, malformed(s, "not an encrypted identifier")
	}

	var l Layout
	l.Marker = payload[offsetMarker]
	l.Algorithm = payload[offsetAlgorithm]
	l.ChunkSizeExp = payload[offsetChunkExp]
	copy(l.BlobHash[:], payload[offsetBlobHash:HeaderSize])

	withKey := func() {
		var k Key
		copy(k[:], payload[HeaderSize:KeyedHeaderSize])
		l.Key = &k
	}
	switch {
	case len(payload) > KeyedHeaderSize && parseTrailerInto(&l, payload[KeyedHeaderSize:]):
		withKey()
	case len(payload) > HeaderSize && parseTrailerInto(&l, payload[HeaderSize:]):
	case len(payload) == KeyedHeaderSize:
		withKey()
	case len(payload) == HeaderSize:
	default:
		return Layout{}, malformed(s, "trailer does not hold a valid original CID")
	}
	return l, nil
}

func parseTrailerInto(l *Layout, t []byte) bool {
	if len(t) <= PaddingFieldSize {
		return false
	}
	orig, err := cid.Cast(t[PaddingFieldSize:])
	if err != nil {
		return false
	}
	l.Padding = binary.LittleEndian.Uint32(t[:PaddingFieldSize])
	l.Original = orig
	return true
}
