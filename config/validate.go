package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/keys"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreFS     = "fs"
)

// Validate ensures the configuration is usable. An empty transcoder URL is
// allowed; commands that need the service check HasTranscoder.
func (c *Config) Validate() error {
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.CAS.Validate(); err != nil {
		return err
	}
	if c.Keys.Identity != "" {
		if err := keys.CheckIdentity(c.Keys.Identity); err != nil {
			return fmt.Errorf("keys.identity: %w", err)
		}
	}
	return c.validateLog()
}

// HasTranscoder reports whether a transcoding service is configured.
func (c *Config) HasTranscoder() bool { return c.Transcoder.BaseURL != "" }

func (c *Config) validateTranscoder() error {
	if c.Transcoder.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.Transcoder.BaseURL)
	if err != nil {
		return fmt.Errorf("transcoder.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("transcoder.base_url must be http or https, got %q", u.Scheme)
	}
	if c.Transcoder.PollTimeoutSeconds < 0 {
		return errors.New("transcoder.poll_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite, StoreFS:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for backend %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, sqlite, fs; got %q", c.Store.Backend)
	}
	if c.Store.Scope != "" {
		if err := keys.CheckIdentity(c.Store.Scope); err != nil {
			return fmt.Errorf("store.scope: %w", err)
		}
	}
	return nil
}

func (c *Config) validateLog() error {
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("log.level %q is not a valid level", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
}
