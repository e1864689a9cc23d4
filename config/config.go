package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"xdao.co/mediacid/storage/casconfig"
)

//go:embed sample_config.toml
var sampleConfig string

// Transcoder configures the transcoding service client and poll loop.
type Transcoder struct {
	BaseURL             string   `toml:"base_url"`
	Token               string   `toml:"token"`
	Formats             []string `toml:"formats"`
	UseGPU              bool     `toml:"use_gpu"`
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	// PollTimeoutSeconds bounds one watch loop; 0 disables the limit.
	PollTimeoutSeconds    int `toml:"poll_timeout_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

func (t Transcoder) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSeconds) * time.Second
}

func (t Transcoder) PollTimeout() time.Duration {
	return time.Duration(t.PollTimeoutSeconds) * time.Second
}

func (t Transcoder) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutSeconds) * time.Second
}

// Store selects the metadata store.
type Store struct {
	Backend string `toml:"backend"`
	// Path is the sqlite database file or the fs root directory.
	Path string `toml:"path"`
	// Scope, when set, prefixes every key with the identity.
	Scope string `toml:"scope"`
}

// Keys configures the local keystore.
type Keys struct {
	Dir      string `toml:"dir"`
	Identity string `toml:"identity"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type HTTP struct {
	Bind string `toml:"bind"`
}

// Config is the whole configuration file.
type Config struct {
	Transcoder Transcoder       `toml:"transcoder"`
	Store      Store            `toml:"store"`
	CAS        casconfig.Config `toml:"cas"`
	Keys       Keys             `toml:"keys"`
	Log        Log              `toml:"log"`
	HTTP       HTTP             `toml:"http"`
}

// DefaultConfigPath returns ~/.config/mediacid/config.toml.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediacid/config.toml")
}

// SampleConfig returns a commented configuration file with every section.
func SampleConfig() string { return sampleConfig }

// Load reads path (or the default path when empty) over the defaults, then
// normalizes and validates the result. A missing file yields the defaults;
// exists reports whether a file was read.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := decodeBase()

	resolved, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolved, exists, nil
}

// Parse decodes data over the defaults without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	c := decodeBase()
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteSample writes the sample configuration to path, refusing to overwrite.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(expanded, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(sampleConfig); err != nil {
		return err
	}
	return f.Close()
}

// decodeBase is Default without CAS backends, so a file's [[cas.backends]]
// replace the default list instead of extending it.
func decodeBase() Config {
	c := Default()
	c.CAS.Backends = nil
	return c
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}
