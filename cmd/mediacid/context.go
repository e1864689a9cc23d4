package main

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"xdao.co/mediacid/config"
	"xdao.co/mediacid/internal/app"
	"xdao.co/mediacid/logging"
)

type commandContext struct {
	configFlag *string
	logLevel   *string
	jsonLogs   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevel *string, jsonLogs *bool) *commandContext {
	return &commandContext{configFlag: configFlag, logLevel: logLevel, jsonLogs: jsonLogs}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevel != nil && *c.logLevel != "" {
			cfg.Log.Level = strings.ToLower(*c.logLevel)
		}
		if c.jsonLogs != nil && *c.jsonLogs {
			cfg.Log.Format = "json"
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) hclog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.New(logging.Options{Output: cmd.ErrOrStderr()})
	}
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
}

// withApp opens the component graph for one command and closes it afterwards.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, app.Options{Logger: c.logger(cmd)})
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeErr := a.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
