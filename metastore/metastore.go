// Package metastore defines the key-value persistence consumed by the media
// pipeline, plus an in-memory implementation and a per-identity scoping wrapper.
package metastore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("metastore: not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is a key-value store for metadata records and pending-job markers.
//
// Contract:
// - Get MUST return ErrNotFound when the key is absent.
// - Put overwrites; a successful Put MUST be visible to a subsequent Get by the same caller.
// - Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ErrSkipWrite is returned by an UpdateFunc to leave the key as it is.
var ErrSkipWrite = errors.New("metastore: skip write")

// UpdateFunc receives the current value of a key (exists is false when it is
// absent) and returns the value to store. It must not call back into the store.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Updater is implemented by stores that run a read-modify-write of one key
// without interleaving other writers, including writers in other processes
// where the backend is shared.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Update applies fn to key. Stores implementing Updater run it atomically;
// for any other store it is a plain Get followed by Put.
func Update(ctx context.Context, s Store, key string, fn UpdateFunc) error {
	if u, ok := s.(Updater); ok {
		return u.Update(ctx, key, fn)
	}
	current, err := s.Get(ctx, key)
	exists := err == nil
	if err != nil && !IsNotFound(err) {
		return err
	}
	next, err := fn(current, exists)
	if errors.Is(err, ErrSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.Put(ctx, key, next)
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var (
	_ Store   = (*Memory)(nil)
	_ Updater = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.data[key]
	if exists {
		current = append([]byte(nil), current...)
	}
	next, err := fn(current, exists)
	if errors.Is(err, ErrSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}

// Keys returns the stored keys with the given prefix. Intended for tests and tooling.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// Scoped namespaces every key under one identity, so two users never share records.
type Scoped struct {
	Store    Store
	Identity string
}

var (
	_ Store   = Scoped{}
	_ Updater = Scoped{}
)

func (s Scoped) key(k string) string {
	if s.Identity == "" {
		return k
	}
	return "~" + s.Identity + "/" + k
}

func (s Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.Store.Get(ctx, s.key(key))
}

func (s Scoped) Put(ctx context.Context, key string, value []byte) error {
	return s.Store.Put(ctx, s.key(key), value)
}

func (s Scoped) Delete(ctx context.Context, key string) error {
	return s.Store.Delete(ctx, s.key(key))
}

func (s Scoped) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return Update(ctx, s.Store, s.key(key), fn)
}
