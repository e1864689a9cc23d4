// Package casregistry lets CAS backends register themselves by name so
// configuration can select them at runtime. A binary enables a backend by
// importing its package, usually as a blank import.
package casregistry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"xdao.co/mediacid/storage"
)

// Settings are backend-specific string options, usually from the [cas] config section.
type Settings map[string]string

// String returns the trimmed value of key, or def when unset.
func (s Settings) String(key, def string) string {
	if v, ok := s[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (s Settings) Bool(key string, def bool) (bool, error) {
	v := s.String(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("setting %q: %w", key, err)
	}
	return b, nil
}

func (s Settings) Int(key string, def int) (int, error) {
	v := s.String(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return n, nil
}

func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v := s.String(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return d, nil
}

// Backend opens one kind of storage.CAS.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Open constructs the CAS. The returned close function may be nil.
	Open func(ctx context.Context, settings Settings) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage.
func Open(ctx context.Context, name string, usage Usage, settings Settings) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b.Open(ctx, settings)
}

func init() {
	MustRegister(Backend{
		Name:        "memory",
		Description: "In-process CAS (lost on exit)",
		Usage:       UsageCLI | UsageDaemon,
		Open: func(context.Context, Settings) (storage.CAS, func() error, error) {
			return storage.NewMemory(), nil, nil
		},
	})
}
