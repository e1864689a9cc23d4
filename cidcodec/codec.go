// Package cidcodec encodes and decodes the binary layout carried inside an
// encrypted content identifier.
//
// The human-readable form is
//
//	[scheme]? 'u' base64url(payload) [.ext]?
//
// and the payload has a fixed-offset layout:
//
//	[0]       content-type marker
//	[1]       encryption algorithm
//	[2]       chunk-size exponent
//	[3..35]   encrypted-blob hash (33 bytes)
//	[36..67]  symmetric key (32 bytes, only in the with-key form)
//	[68..]    trailer: padding length + original CID
//
// Stripping or embedding a key only removes or inserts bytes [36..67]; the
// header and trailer are copied byte for byte. The trailer length is derived
// from the payload length rather than assumed.
//
// All functions are pure and never block.
package cidcodec

import (
	"encoding/base64"
	"strings"

	"xdao.co/mediacid/ciduri"
)

// MultibasePrefix is the leading character of every base64url identifier.
const MultibasePrefix = 'u'

const (
	offsetMarker    = 0
	offsetAlgorithm = 1
	offsetChunkExp  = 2
	offsetBlobHash  = 3

	// BlobHashSize is the size of the encrypted-blob hash field.
	BlobHashSize = 33
	// HeaderSize is the size of the fixed header preceding the key region.
	HeaderSize = offsetBlobHash + BlobHashSize
	// KeyedHeaderSize is the minimum payload length of the with-key form.
	KeyedHeaderSize = HeaderSize + KeySize
	// PaddingFieldSize is the size of the little-endian padding length at the
	// start of a non-empty trailer.
	PaddingFieldSize = 4
)

// ExtractKey returns the base64url key embedded in an encrypted identifier.
func ExtractKey(cidWithKey string) (string, error) {
	_, payload, err := decodeIdentifier(cidWithKey)
	if err != nil {
		return "", err
	}
	if len(payload) < KeyedHeaderSize {
		return "", malformed(cidWithKey, "payload too short to carry a key")
	}
	return encodeBase64URL(payload[HeaderSize:KeyedHeaderSize]), nil
}

// StripKey removes the embedded key, keeping scheme and extension.
func StripKey(cidWithKey string) (string, error) {
	parts, payload, err := decodeIdentifier(cidWithKey)
	if err != nil {
		return "", err
	}
	if len(payload) < KeyedHeaderSize {
		return "", malformed(cidWithKey, "payload too short to carry a key")
	}
	trailer := payload[KeyedHeaderSize:]
	if err := checkTrailer(cidWithKey, trailer); err != nil {
		return "", err
	}
	out := make([]byte, 0, HeaderSize+len(trailer))
	out = append(out, payload[:HeaderSize]...)
	out = append(out, trailer...)
	return encodeIdentifier(parts, out), nil
}

// EmbedKey splices key into a key-stripped identifier. It is the inverse of StripKey.
func EmbedKey(key string, cidWithoutKey string) (string, error) {
	k, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	return EmbedRawKey(k, cidWithoutKey)
}

// EmbedRawKey is EmbedKey for an already-parsed key.
func EmbedRawKey(k Key, cidWithoutKey string) (string, error) {
	parts, payload, err := decodeIdentifier(cidWithoutKey)
	if err != nil {
		return "", err
	}
	if len(payload) < HeaderSize {
		return "", malformed(cidWithoutKey, "payload shorter than header")
	}
	trailer := payload[HeaderSize:]
	if err := checkTrailer(cidWithoutKey, trailer); err != nil {
		return "", err
	}
	out := make([]byte, 0, KeyedHeaderSize+len(trailer))
	out = append(out, payload[:HeaderSize]...)
	out = append(out, k[:]...)
	out = append(out, trailer...)
	return encodeIdentifier(parts, out), nil
}

// StripExtension removes a cosmetic file extension. The payload is untouched.
func StripExtension(cid string) string {
	return ciduri.StripExtension(cid)
}

// checkTrailer accepts an empty trailer or one that parses as padding followed
// by a well-formed CID. A key region at the wrong offset shows up here as an
// unparseable trailer.
func checkTrailer(input string, trailer []byte) error {
	if len(trailer) == 0 {
		return nil
	}
	if len(trailer) <= PaddingFieldSize {
		return malformed(input, "trailer shorter than padding field")
	}
	var l Layout
	if !parseTrailerInto(&l, trailer) {
		return malformed(input, "trailer does not hold a valid original CID")
	}
	return nil
}

func decodeIdentifier(s string) (ciduri.Parts, []byte, error) {
	parts := ciduri.Split(s)
	if parts.Body == "" || parts.Body[0] != MultibasePrefix {
		return parts, nil, malformed(s, "identifier must start with 'u'")
	}
	payload, err := decodeBase64URL(parts.Body[1:])
	if err != nil {
		return parts, nil, malformedCause(s, "invalid base64url payload", err)
	}
	return parts, payload, nil
}

func encodeIdentifier(parts ciduri.Parts, payload []byte) string {
	parts.Body = string(MultibasePrefix) + encodeBase64URL(payload)
	return parts.Join()
}

func encodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeBase64URL accepts padded and unpadded input but rejects non-zero
// trailing bits, so every accepted payload has exactly one unpadded encoding.
// Identifiers produced here are always unpadded; round trips reproduce the
// input byte for byte only when it was unpadded to begin with.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.Strict().DecodeString(strings.TrimRight(s, "="))
}
