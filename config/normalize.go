package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/mediacid/storage/casconfig"
)

// Environment overrides for secrets that should not live in the file.
const (
	EnvTranscoderToken = "MEDIACID_TRANSCODER_TOKEN"
	EnvTranscoderURL   = "MEDIACID_TRANSCODER_URL"
)

func (c *Config) normalize() error {
	c.normalizeTranscoder()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeKeys(); err != nil {
		return err
	}
	c.normalizeLog()
	c.normalizeCAS()
	return nil
}

func (c *Config) normalizeCAS() {
	if len(c.CAS.Backends) == 0 {
		c.CAS.Backends = casconfig.Default().Backends
	}
	if c.CAS.WritePolicy == "" {
		c.CAS.WritePolicy = casconfig.WriteFirst
	}
}

func (c *Config) normalizeTranscoder() {
	if v := strings.TrimSpace(os.Getenv(EnvTranscoderURL)); v != "" {
		c.Transcoder.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTranscoderToken)); v != "" {
		c.Transcoder.Token = v
	}
	c.Transcoder.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcoder.BaseURL), "/")
	formats := c.Transcoder.Formats[:0]
	for _, f := range c.Transcoder.Formats {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	c.Transcoder.Formats = formats
	if c.Transcoder.PollIntervalSeconds <= 0 {
		c.Transcoder.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Transcoder.RequestTimeoutSeconds <= 0 {
		c.Transcoder.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		switch c.Store.Backend {
		case StoreSQLite:
			c.Store.Path = defaultSQLitePath
		case StoreFS:
			c.Store.Path = defaultFSPath
		}
	}
	if c.Store.Path == "" || c.Store.Path == ":memory:" {
		return nil
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeKeys() error {
	if strings.TrimSpace(c.Keys.Dir) == "" {
		c.Keys.Dir = defaultKeysDir
	}
	var err error
	if c.Keys.Dir, err = expandPath(c.Keys.Dir); err != nil {
		return fmt.Errorf("keys.dir: %w", err)
	}
	c.Keys.Identity = strings.TrimSpace(c.Keys.Identity)
	return nil
}

func (c *Config) normalizeLog() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
