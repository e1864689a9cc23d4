package storage

import (
	"errors"

	"github.com/ipfs/go-cid"

	"xdao.co/mediacid/cidutil"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Verify checks that data hashes to id.
func Verify(id cid.Cid, data []byte) error {
	got, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
