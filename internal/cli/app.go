package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/tojkuv/LifeSignal-sub007/internal/config"
	"github.com/tojkuv/LifeSignal-sub007/internal/engine"
	"github.com/tojkuv/LifeSignal-sub007/internal/logging"
	"github.com/tojkuv/LifeSignal-sub007/internal/ports"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote/natsfeed"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote/pgremote"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote/redisremote"
	"github.com/tojkuv/LifeSignal-sub007/internal/store"
	"github.com/tojkuv/LifeSignal-sub007/internal/store/badgerstore"
)

// localStore is what every store driver provides.
type localStore interface {
	ports.LocalStore
	ports.IntentLog
	Close() error
}

// app is one command's view of the system: config, logger and a started
// engine over the configured backends.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine

	closers []func() error
}

// Close stops the engine and releases backends in reverse order.
func (a *app) Close() error {
	if a.engine != nil {
		a.engine.Stop()
	}
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadConfig reads the config named by opts and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Owner != "" {
		cfg.Owner = opts.Owner
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the command logger. Diagnostics go to errOut so JSON
// output on stdout stays parseable.
func newLogger(cfg *config.Config, verbose bool, errOut io.Writer) (*slog.Logger, error) {
	lc := cfg.Log
	if verbose {
		lc.Level = "debug"
	}
	return logging.New(lc, errOut)
}

// openApp wires config, logger, remote, local store and engine, and starts
// the engine. The caller must Close the returned app.
func openApp(ctx context.Context, opts *RootOptions, errOut io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, msgLoadConfig, err)
	}
	logger, err := newLogger(cfg, opts.Verbose, errOut)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, msgLogging, err)
	}

	a := &app{cfg: cfg, logger: logger}
	svc, err := a.openRemote(ctx)
	if err != nil {
		_ = a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to connect remote", err)
	}
	local, err := a.openStore()
	if err != nil {
		_ = a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRequestTimeout(cfg.Engine.RequestTimeout),
		engine.WithResubscribeInterval(cfg.Engine.ResubscribeInterval),
		engine.WithIntentLog(local),
	}
	if cfg.Engine.SeedDemoData {
		engOpts = append(engOpts, engine.WithSeeder(engine.DemoSeeder{Count: cfg.Engine.DemoCount}))
	}
	a.engine = engine.New(cfg.Owner, svc, local, engOpts...)
	if err := a.engine.Start(ctx); err != nil {
		_ = a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	return a, nil
}

func (a *app) openRemote(ctx context.Context) (*remote.Service, error) {
	rc := a.cfg.Remote
	log := a.logger.With("backend", rc.Backend)

	var (
		repo remote.Repository
		feed remote.Feed
	)
	switch rc.Backend {
	case "memory":
		repo = remote.NewMemoryRepository()
		feed = remote.NewMemoryFeed(0)
	case "redis":
		client, err := redisremote.Connect(ctx, redisremote.Config{
			Addr:     rc.Redis.Addr,
			Password: rc.Redis.Password,
			DB:       rc.Redis.DB,
			Prefix:   rc.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		repo = redisremote.NewRepository(client, rc.Redis.Prefix)
		feed = redisremote.NewFeed(client, rc.Redis.Prefix, log)
	case "postgres":
		pool, err := pgremote.Connect(ctx, rc.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := pgremote.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		repo = pgremote.NewRepository(pool)
		feed = pgremote.NewFeed(pool, log)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", rc.Backend)
	}

	if rc.Feed == "nats" {
		nf, err := natsfeed.Connect(rc.NATS.URL, rc.NATS.Prefix, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, nf.Close)
		feed = nf
	}
	return remote.New(repo, feed, remote.WithLogger(log)), nil
}

func (a *app) openStore() (localStore, error) {
	sc := a.cfg.Store
	var (
		st  localStore
		err error
	)
	switch sc.Driver {
	case "memory":
		st, err = store.OpenMemory()
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		st, err = store.Open(sc.Path)
	case "badger":
		bc := badgerstore.DefaultConfig(sc.Path)
		bc.Logger = a.logger.With("store", "badger")
		st, err = badgerstore.Open(bc)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)
	return st, nil
}
