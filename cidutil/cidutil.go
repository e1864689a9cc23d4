// Package cidutil computes the plain CIDs used by the content network: CIDv1
// with the "raw" multicodec and a sha2-256 multihash.
package cidutil

import (
	"crypto/sha256"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns the CIDv1 string for data, or "" if hashing fails.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FromSHA256Digest rebuilds the raw CIDv1 for a precomputed sha2-256 digest.
func FromSHA256Digest(digest []byte) (cid.Cid, error) {
	if len(digest) != sha256.Size {
		return cid.Undef, fmt.Errorf("cidutil: sha2-256 digest must be %d bytes, got %d", sha256.Size, len(digest))
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SHA256Digest returns the sha2-256 digest carried by a raw CIDv1.
func SHA256Digest(id cid.Cid) ([]byte, error) {
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return nil, err
	}
	if dec.Code != multihash.SHA2_256 {
		return nil, fmt.Errorf("cidutil: unsupported multihash %s", dec.Name)
	}
	return dec.Digest, nil
}
