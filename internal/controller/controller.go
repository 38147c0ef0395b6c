// SPDX-License-Identifier: Apache-2.0

// Package controller owns one store location. It serializes migrations of that location across processes,
// resolves leftovers of interrupted swaps before migrating and hands out the opened store once it is current.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/fsx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
)

const (
	DefaultLockTimeout = 30 * time.Second
	lockRetryDelay     = 100 * time.Millisecond
	lockSuffix         = ".lock"
)

type Option func(*Controller)

func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(o migration.Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

func WithTempDir(dir string) Option {
	return func(c *Controller) {
		c.tempDir = dir
	}
}

func WithStoreType(t store.Type) Option {
	return func(c *Controller) {
		c.storeType = t
	}
}

// WithLockTimeout bounds how long Migrate and Recover wait for another process to release the store.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

func WithFileManager(fs fsx.Manager) Option {
	return func(c *Controller) {
		c.fs = fs
	}
}

func WithSwapper(s migration.Swapper) Option {
	return func(c *Controller) {
		c.swapper = s
	}
}

// Controller is safe for concurrent use. Migrations of the same location are serialized through an advisory
// lock file next to the store, <store>.lock.
type Controller struct {
	location    string
	catalog     *migration.Catalog
	final       schema.Version
	fs          fsx.Manager
	swapper     migration.Swapper
	observer    migration.Observer
	logger      *zerolog.Logger
	tempDir     string
	storeType   store.Type
	lockTimeout time.Duration

	mu    sync.Mutex
	store *store.Store
}

// New creates a controller for the store at location. An empty final selects the catalog's final version.
func New(location string, catalog *migration.Catalog, final schema.Version, opts ...Option) (*Controller, error) {
	if location == "" {
		return nil, errorx.IllegalArgument.New("store location is required")
	}
	if catalog == nil {
		return nil, errorx.IllegalArgument.New("catalog is required")
	}
	if final == "" {
		final = catalog.Final()
	}
	if _, err := catalog.Descriptor(final); err != nil {
		return nil, err
	}

	nop := zerolog.Nop()
	c := &Controller{
		location:    location,
		catalog:     catalog,
		final:       final,
		logger:      &nop,
		storeType:   store.SQLite,
		lockTimeout: DefaultLockTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.fs == nil {
		fs, err := fsx.NewManager()
		if err != nil {
			return nil, err
		}
		c.fs = fs
	}

	if c.swapper == nil {
		c.swapper = migration.NewFileSwapper(c.fs, c.logger)
	}

	return c, nil
}

func (c *Controller) Location() string {
	return c.location
}

func (c *Controller) Final() schema.Version {
	return c.final
}

// LockPath is the advisory lock file guarding the store.
func (c *Controller) LockPath() string {
	return c.location + lockSuffix
}

// CurrentVersion identifies the version of the store without modifying it.
func (c *Controller) CurrentVersion(ctx context.Context) (schema.Version, error) {
	return c.catalog.CurrentVersion(ctx, migration.Handle{Path: c.location, Type: c.storeType})
}

// IsMigrationNeeded reports whether the store is behind the final version.
func (c *Controller) IsMigrationNeeded(ctx context.Context) (bool, error) {
	v, err := c.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return v != c.final, nil
}

// Migrate brings the store to the final version. A store opened through Store is closed first and reopened on
// the next call to Store.
func (c *Controller) Migrate(ctx context.Context) (*migration.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err = c.closeStore(); err != nil {
		return nil, err
	}

	if _, err = c.recover(ctx); err != nil {
		return nil, err
	}

	m, err := migration.NewMigrator(c.catalog,
		migration.WithLogger(c.logger),
		migration.WithObserver(c.observer),
		migration.WithTempDir(c.tempDir),
		migration.WithStoreType(c.storeType),
		migration.WithFileManager(c.fs),
		migration.WithSwapper(c.swapper),
	)
	if err != nil {
		return nil, err
	}

	return m.Migrate(ctx, c.location, c.final)
}

// Recover resolves leftovers of an interrupted swap without migrating.
func (c *Controller) Recover(ctx context.Context) (migration.RecoveryAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.lock(ctx)
	if err != nil {
		return migration.RecoveryNone, err
	}
	defer unlock()

	if err = c.closeStore(); err != nil {
		return migration.RecoveryNone, err
	}

	return c.recover(ctx)
}

func (c *Controller) recover(ctx context.Context) (migration.RecoveryAction, error) {
	action, err := c.swapper.Recover(ctx, c.location)
	if err != nil {
		return action, err
	}

	if action != migration.RecoveryNone {
		c.logger.Warn().
			Str("store", c.location).
			Str("action", string(action)).
			Msg("Resolved leftovers of an interrupted migration")
	}

	return action, nil
}

// Store opens the store for reading and writing. The store is opened once and cached until Close or Migrate.
// It fails when the store is not at the final version.
func (c *Controller) Store(ctx context.Context) (*store.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return c.store, nil
	}

	s, err := store.Open(ctx, c.location, c.storeType, false)
	if err != nil {
		return nil, err
	}

	v, err := c.catalog.Identify(s.Meta())
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if v != c.final {
		_ = s.Close()
		return nil, errorx.IllegalState.New("store %s is at version %s and needs to be migrated to %s",
			c.location, v, c.final)
	}

	c.store = s
	return s, nil
}

// Close closes the cached store, if any.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeStore()
}

func (c *Controller) closeStore() error {
	if c.store == nil {
		return nil
	}

	err := c.store.Close()
	c.store = nil
	return err
}

func (c *Controller) lock(ctx context.Context) (func(), error) {
	lockPath := c.LockPath()
	fileLock := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return nil, erx.Cancelled.Wrap(ctx.Err(), "cancelled while waiting for store lock %s", lockPath)
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, erx.IO(err, lockPath, "failed to acquire store lock")
	}
	if !locked {
		return nil, erx.Locked.New("store %s is being migrated by another process", c.location).
			WithProperty(erx.PropertyPath, lockPath)
	}

	return func() {
		if e := fileLock.Unlock(); e != nil {
			c.logger.Warn().Err(e).Str("lockPath", lockPath).Msg("Failed to release store lock")
		}
	}, nil
}
