// Package app assembles the mediacid components from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/batch"
	"xdao.co/mediacid/config"
	"xdao.co/mediacid/contentnet"
	"xdao.co/mediacid/keys"
	"xdao.co/mediacid/media"
	"xdao.co/mediacid/metastore"
	"xdao.co/mediacid/metastore/fsstore"
	"xdao.co/mediacid/metastore/sqlite"
	"xdao.co/mediacid/pipeline"
	"xdao.co/mediacid/storage/casregistry"
	"xdao.co/mediacid/transcode"

	_ "xdao.co/mediacid/storage/grpccas"
	_ "xdao.co/mediacid/storage/ipfs"
	_ "xdao.co/mediacid/storage/localfs"
)

// Options override pieces of the assembly, mostly for tests.
type Options struct {
	Logger hclog.Logger
	// Transcoder replaces the HTTP client built from the [transcoder] section.
	Transcoder transcode.Service
	// Store replaces the store built from the [store] section. It is not closed.
	Store metastore.Store
}

// App holds the wired components. Pipeline and Poller are nil when no
// transcoding service is configured.
type App struct {
	Config    *config.Config
	Logger    hclog.Logger
	Store     metastore.Store
	Keys      *keys.KeyStore
	Merger    *media.Merger
	Tracker   *transcode.Tracker
	Pipeline  *pipeline.Service
	Poller    *pipeline.Poller
	Content   *contentnet.Client
	Collector *batch.Collector

	closers []func() error
}

// New builds an App from cfg. Close releases the store and CAS backends.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &App{Config: cfg, Logger: logger}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = a.openStore(); err != nil {
			return nil, err
		}
	}
	if cfg.Store.Scope != "" {
		store = metastore.Scoped{Store: store, Identity: cfg.Store.Scope}
	}
	a.Store = store

	ks, err := keys.CreateKeyStore(cfg.Keys.Dir)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	a.Keys = ks

	a.Merger = media.NewMerger(store, logger)
	collectorOpts := batch.Options{Logger: logger}
	if cfg.Keys.Identity != "" {
		collectorOpts.Keys = keys.Resolver{Store: ks, Identity: cfg.Keys.Identity}
	}
	a.Collector = batch.NewCollector(a.Merger, collectorOpts)

	cas, closeCAS, err := cfg.CAS.Open(ctx, casregistry.UsageCLI, "")
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if closeCAS != nil {
		a.closers = append(a.closers, closeCAS)
	}
	if a.Content, err = contentnet.New(cas, contentnet.Options{Logger: logger}); err != nil {
		_ = a.Close()
		return nil, err
	}

	service := opts.Transcoder
	if service == nil && cfg.HasTranscoder() {
		client, err := transcode.NewClient(transcode.ClientOptions{
			BaseURL: cfg.Transcoder.BaseURL,
			Token:   cfg.Transcoder.Token,
			Timeout: cfg.Transcoder.RequestTimeout(),
			Logger:  logger,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		service = client
	}
	if service == nil {
		logger.Debug("no transcoding service configured")
		return a, nil
	}

	a.Tracker = transcode.NewTracker(store, service, logger)
	a.Pipeline, err = pipeline.New(pipeline.Options{
		Tracker:    a.Tracker,
		Merger:     a.Merger,
		Transcoder: service,
		Formats:    cfg.Transcoder.Formats,
		UseGPU:     cfg.Transcoder.UseGPU,
		Logger:     logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Poller = pipeline.NewPoller(a.Pipeline, pipeline.PollerOptions{
		Interval: cfg.Transcoder.PollInterval(),
		Timeout:  cfg.Transcoder.PollTimeout(),
		Logger:   logger,
	})
	return a, nil
}

// RequirePipeline returns the pipeline or an error naming the missing setting.
func (a *App) RequirePipeline() (*pipeline.Service, error) {
	if a.Pipeline == nil {
		return nil, fmt.Errorf("no transcoding service configured (set transcoder.base_url or %s)", config.EnvTranscoderURL)
	}
	return a.Pipeline, nil
}

// Close stops running poll loops and releases resources in reverse order.
func (a *App) Close() error {
	if a.Poller != nil {
		a.Poller.StopAll()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore() (metastore.Store, error) {
	cfg := a.Config.Store
	switch cfg.Backend {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		a.Logger.Debug("opened metadata store", "backend", cfg.Backend, "path", s.Path())
		return s, nil
	case config.StoreFS:
		s, err := fsstore.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.Logger.Debug("opened metadata store", "backend", cfg.Backend, "path", cfg.Path)
		return s, nil
	case config.StoreMemory, "":
		return metastore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
