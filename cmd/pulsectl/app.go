package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/readbori/pulse-diary/internal/config"
	"github.com/readbori/pulse-diary/internal/journal"
	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/push"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/remote/postgres"
	"github.com/readbori/pulse-diary/internal/remote/postgrest"
	"github.com/readbori/pulse-diary/internal/shardqueue"
	"github.com/readbori/pulse-diary/internal/syncer"
)

// errLocked is returned when another pulsectl holds the data directory.
var errLocked = errors.New("data directory is in use by another pulsectl process")

// app is an opened data directory with its collaborators wired.
type app struct {
	log    zerolog.Logger
	lock   *flock.Flock
	store  *localstore.Store
	remote remote.Store
	push   *push.Pipeline
	sync   *syncer.Syncer
	svc    *journal.Service
}

// openApp locks the data directory, opens the Local Store and connects the
// configured remote store.
func openApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (a *app, err error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a = &app{log: log, lock: flock.New(cfg.LockPath())}
	locked, err := a.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring data dir lock: %w", err)
	}
	if !locked {
		return nil, errLocked
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.store, err = localstore.Open(cfg.DatabasePath()); err != nil {
		return nil, err
	}
	if a.remote, err = openRemote(ctx, cfg); err != nil {
		return nil, err
	}

	execCfg, err := shardqueue.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("push executor config: %w", err)
	}
	a.push = push.New(a.store.Records(), a.remote,
		push.WithLogger(log.With().Str("component", "push").Logger()),
		push.WithExecutorConfig(execCfg),
	)
	a.sync = syncer.New(a.store, a.remote, a.push,
		syncer.WithLogger(log.With().Str("component", "sync").Logger()))
	a.svc = journal.New(a.store, a.push, a.sync,
		journal.WithLogger(log.With().Str("component", "journal").Logger()))
	return a, nil
}

// openRemote returns nil when no remote is configured; sessions built from
// such a config never reach it.
func openRemote(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.RemoteDriver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, cfg.RemoteTimeout)
		defer cancel()
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return postgres.New(db), nil
	case config.DriverPostgREST:
		return postgrest.New(postgrest.Options{
			BaseURL:     cfg.PostgRESTURL,
			APIKey:      cfg.PostgRESTKey,
			AccessToken: cfg.PostgRESTToken,
			Timeout:     cfg.RemoteTimeout,
		}), nil
	default:
		return nil, nil
	}
}

// Close drains pending pushes, then releases every resource.
func (a *app) Close() error {
	var errs []error
	if a.push != nil {
		errs = append(errs, a.push.Close())
	}
	if c, ok := a.remote.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.lock.Unlock())
	return errors.Join(errs...)
}
