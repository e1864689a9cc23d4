// Package storage defines the content network's block store: immutable blobs
// addressed by CIDv1 (raw, sha2-256) of their bytes.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a content-addressable block store.
//
// Contract:
// - Put MUST be idempotent and MUST return the CID of the bytes written.
// - Stored objects MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent and MUST verify the bytes against the CID.
// - Undefined CIDs are rejected with ErrInvalidCID.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
