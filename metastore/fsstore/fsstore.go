// Package fsstore implements metastore.Store as one file per key under a root
// directory. Writers are serialized by a mutex within the process and by a
// lock file across processes.
package fsstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"xdao.co/mediacid/metastore"
)

// Store is a filesystem-backed metadata store.
//
// Keys are hashed into a two-level directory layout, so arbitrary identifiers
// never become path components.
type Store struct {
	root string

	// mu guards lock: a flock handle already held by this process does not
	// block a second Lock from another goroutine.
	mu   sync.Mutex
	lock *flock.Flock
}

var (
	_ metastore.Store   = (*Store)(nil)
	_ metastore.Updater = (*Store)(nil)
)

// New constructs a store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("fsstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, lock: flock.New(filepath.Join(root, ".lock"))}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, metastore.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Put writes value to a temp file and renames it into place, so readers never
// observe a partial record.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.withLock(ctx, func() error {
		return writeFile(s.pathFor(key), value)
	})
}

// Update runs fn while holding both locks, so read-modify-write cycles from
// other goroutines or processes sharing root cannot interleave.
func (s *Store) Update(ctx context.Context, key string, fn metastore.UpdateFunc) error {
	return s.withLock(ctx, func() error {
		path := s.pathFor(key)
		current, err := os.ReadFile(path)
		exists := err == nil
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		next, err := fn(current, exists)
		if errors.Is(err, metastore.ErrSkipWrite) {
			return nil
		}
		if err != nil {
			return err
		}
		return writeFile(path, next)
	})
}

func writeFile(path string, value []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.withLock(ctx, func() error {
		err := os.Remove(s.pathFor(key))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("fsstore: lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, h[:2], h)
}
