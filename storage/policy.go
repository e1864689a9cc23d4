package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/mediacid/cidutil"
)

// Named pairs a CAS with a stable backend name.
type Named struct {
	Name string
	CAS  CAS
}

// Fallback writes to its first backend and reads from the backends in order.
// The order is the slice order; callers fix it.
type Fallback struct {
	Backends []Named
}

var _ CAS = Fallback{}

func (f Fallback) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(f.Backends) == 0 {
		return cid.Undef, errors.New("storage: no backends")
	}
	return f.Backends[0].CAS.Put(ctx, data)
}

func (f Fallback) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getInOrder(ctx, f.Backends, id)
}

func (f Fallback) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, f.Backends, id)
}

// Replicating writes to every backend and requires them to agree on the CID.
// Reads fall back in order.
type Replicating struct {
	Backends []Named
}

var _ CAS = Replicating{}

// PutAll writes data to all backends and returns the CID reported by each.
// A backend that reports a different CID yields ErrCIDMismatch.
func (r Replicating) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, errors.New("storage: no backends")
	}
	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(ctx, data)
		if err != nil {
			return cid.Undef, out, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r Replicating) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r Replicating) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getInOrder(ctx, r.Backends, id)
}

func (r Replicating) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, r.Backends, id)
}

func getInOrder(ctx context.Context, backends []Named, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, b := range backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func hasAny(ctx context.Context, backends []Named, id cid.Cid) (bool, error) {
	var firstErr error
	for _, b := range backends {
		if b.CAS == nil {
			continue
		}
		ok, err := b.CAS.Has(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
