// Package logging builds the hclog loggers used across mediacid.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options selects the root logger's level and encoding.
type Options struct {
	Name   string
	Level  string
	Format string
	Output io.Writer
}

// New returns a root logger. Unknown levels fall back to info; Format "json"
// switches to JSON lines.
func New(opts Options) hclog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Name == "" {
		opts.Name = "mediacid"
	}
	level := hclog.LevelFromString(strings.TrimSpace(opts.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     opts.Output,
		JSONFormat: strings.EqualFold(opts.Format, "json"),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// NewNop returns a logger that discards everything.
func NewNop() hclog.Logger { return hclog.NewNullLogger() }

// Or returns l, or a discarding logger when l is nil.
func Or(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
