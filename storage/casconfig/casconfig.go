// Package casconfig opens one or more CAS backends from configuration.
//
// Example ([cas] section of the mediacid config):
//
//	[cas]
//	write_policy = "all"
//
//	[[cas.backends]]
//	name = "localfs"
//	settings = { dir = "/var/lib/mediacid/blocks" }
//
//	[[cas.backends]]
//	name = "ipfs"
//	id = "kubo"
//	settings = { ipfs-path = "/var/lib/ipfs", pin = "true" }
//
// Backends are resolved through casregistry, so the binary must link the
// backend packages it wants to offer.
package casconfig

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/casregistry"
)

const (
	// WriteFirst writes only to the first backend; reads fall back in order.
	WriteFirst = "first"
	// WriteAll writes to every backend and requires CID agreement.
	WriteAll = "all"
)

type Config struct {
	WritePolicy string          `toml:"write_policy,omitempty"`
	Backends    []BackendConfig `toml:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend name (e.g. "localfs", "ipfs", "grpc").
	Name string `toml:"name"`
	// ID is an optional alias used in logs and per-backend CID maps. Defaults to Name.
	ID       string            `toml:"id,omitempty"`
	Settings map[string]string `toml:"settings,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// Default is a single in-memory backend.
func Default() Config {
	return Config{WritePolicy: WriteFirst, Backends: []BackendConfig{{Name: "memory"}}}
}

// LoadFile reads a standalone TOML file holding a Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens every backend and combines them per WritePolicy.
//
// If preferred is non-empty, the backend with that name or id is moved first,
// which makes it the write target under WriteFirst.
func (c Config) Open(ctx context.Context, usage casregistry.Usage, preferred string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferred != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferred || ordered[i].ID == preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
		}
		b := ordered[idx]
		copy(ordered[1:idx+1], ordered[:idx])
		ordered[0] = b
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	named := make([]storage.Named, 0, len(ordered))
	for _, b := range ordered {
		cas, closeFn, err := casregistry.Open(ctx, b.Name, usage, b.Settings)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("casconfig: open %q: %w", b.id(), err)
		}
		named = append(named, storage.Named{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}
	if c.WritePolicy == WriteAll {
		return storage.Replicating{Backends: named}, closeAll, nil
	}
	return storage.Fallback{Backends: named}, closeAll, nil
}
