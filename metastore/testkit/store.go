// Package testkit holds a conformance suite every metastore.Store backend runs.
package testkit

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"testing"

	"xdao.co/mediacid/metastore"
)

// NewStore constructs a fresh, empty Store for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) metastore.Store

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte(`[{"cid":"r1","type":"video/mp4"}]`)
		if err := s.Put(ctx, "media/uAbc", want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ctx, "media/uAbc")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch: %q", got)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "k", []byte("one")); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := s.Put(ctx, "k", []byte("two")); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "two" {
			t.Fatalf("expected overwrite, got %q", got)
		}
	})

	t.Run("NotFoundAndDelete", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "missing"); !metastore.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "missing"); err != nil {
			t.Fatalf("Delete missing should succeed: %v", err)
		}
		if err := s.Put(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "k"); !metastore.IsNotFound(err) {
			t.Fatalf("Get after Delete: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("KeysWithSlashes", func(t *testing.T) {
		s := newStore(t)
		key := "~alice/transcode/pending/uAbc-_"
		if err := s.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := s.Get(ctx, "transcode/pending/uAbc-_"); !metastore.IsNotFound(err) {
			t.Fatalf("distinct keys must not alias: %v", err)
		}
	})

	t.Run("ReturnedBytesAreCopies", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "k", []byte("abc")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		got[0] = 'z'
		again, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(again) != "abc" {
			t.Fatalf("store was mutated through returned slice: %q", again)
		}
	})

	t.Run("UpdateReadModifyWrite", func(t *testing.T) {
		s := newStore(t)
		err := metastore.Update(ctx, s, "k", func(cur []byte, exists bool) ([]byte, error) {
			if exists {
				t.Fatalf("absent key reported as existing: %q", cur)
			}
			return []byte("one"), nil
		})
		if err != nil {
			t.Fatalf("Update(create) failed: %v", err)
		}
		err = metastore.Update(ctx, s, "k", func(cur []byte, exists bool) ([]byte, error) {
			if !exists || string(cur) != "one" {
				t.Fatalf("Update saw exists=%v cur=%q", exists, cur)
			}
			return append(cur, "+two"...), nil
		})
		if err != nil {
			t.Fatalf("Update(modify) failed: %v", err)
		}
		err = metastore.Update(ctx, s, "k", func([]byte, bool) ([]byte, error) {
			return nil, metastore.ErrSkipWrite
		})
		if err != nil {
			t.Fatalf("Update(skip) failed: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil || string(got) != "one+two" {
			t.Fatalf("Get after Update: %q err=%v", got, err)
		}
	})

	t.Run("ConcurrentUpdatesKeepEveryWrite", func(t *testing.T) {
		s := newStore(t)
		if _, ok := s.(metastore.Updater); !ok {
			t.Skip("store has no atomic Update")
		}
		const workers = 16
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- metastore.Update(ctx, s, "counter", func(cur []byte, exists bool) ([]byte, error) {
					n := 0
					if exists {
						var err error
						if n, err = strconv.Atoi(string(cur)); err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		}
		got, err := s.Get(ctx, "counter")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != strconv.Itoa(workers) {
			t.Fatalf("lost updates: counter=%s want %d", got, workers)
		}
	})
}
