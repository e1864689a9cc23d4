package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/mediacid/cidutil"
	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/testkit"
)

func TestMemoryConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS { return storage.NewMemory() })
}

func TestFallbackConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.Fallback{Backends: []storage.Named{
			{Name: "a", CAS: storage.NewMemory()},
			{Name: "b", CAS: storage.NewMemory()},
		}}
	})
}

func TestReplicatingConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.Replicating{Backends: []storage.Named{
			{Name: "a", CAS: storage.NewMemory()},
			{Name: "b", CAS: storage.NewMemory()},
		}}
	})
}

func TestFallbackReadsSecondBackend(t *testing.T) {
	ctx := context.Background()
	first, second := storage.NewMemory(), storage.NewMemory()
	id, err := second.Put(ctx, []byte("only in second"))
	if err != nil {
		t.Fatal(err)
	}
	f := storage.Fallback{Backends: []storage.Named{{Name: "first", CAS: first}, {Name: "second", CAS: second}}}
	got, err := f.Get(ctx, id)
	if err != nil || string(got) != "only in second" {
		t.Fatalf("Get: %q %v", got, err)
	}
	if _, err := f.Put(ctx, []byte("new")); err != nil {
		t.Fatal(err)
	}
	if first.Len() != 1 || second.Len() != 1 {
		t.Fatalf("Put must write only the first backend: %d %d", first.Len(), second.Len())
	}
}

type lyingCAS struct{ storage.CAS }

func (l lyingCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	return cidutil.CIDv1RawSHA256CID(append([]byte("x"), data...))
}

func TestReplicatingDetectsMismatch(t *testing.T) {
	r := storage.Replicating{Backends: []storage.Named{
		{Name: "good", CAS: storage.NewMemory()},
		{Name: "bad", CAS: lyingCAS{storage.NewMemory()}},
	}}
	_, byName, err := r.PutAll(context.Background(), []byte("data"))
	if !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("expected per-backend CIDs, got %v", byName)
	}
}

func TestVerify(t *testing.T) {
	id, err := cidutil.CIDv1RawSHA256CID([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Verify(id, []byte("a")); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := storage.Verify(id, []byte("b")); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
