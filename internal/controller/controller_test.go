// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/automa-saga/logx"
	"github.com/gofrs/flock"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logx.Initialize(logx.LoggingConfig{Level: "debug", ConsoleLogging: true})
	os.Exit(m.Run())
}

func note(v schema.Version, attrs ...schema.Attribute) *schema.Descriptor {
	return &schema.Descriptor{
		Version: v,
		Entities: []schema.Entity{{
			Name:       "Note",
			Attributes: append([]schema.Attribute{{Name: "text", Type: schema.TypeString}}, attrs...),
		}},
	}
}

func noteCatalog(t *testing.T) *migration.Catalog {
	t.Helper()
	c, err := migration.NewCatalog(
		note("v1"),
		note("v2", schema.Attribute{Name: "pinned", Type: schema.TypeBoolean, Default: false}),
	)
	require.NoError(t, err)
	return c
}

func seedNotes(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Create(ctx, path, store.SQLite, note("v1"))
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.PutRecord(ctx, store.Record{Entity: "Note", ID: "n1", Attrs: map[string]interface{}{"text": "hello"}}))
	require.NoError(t, w.Commit())
}

func TestNew(t *testing.T) {
	c := noteCatalog(t)

	ctl, err := New("/data/notes.store", c, "")
	require.NoError(t, err)
	assert.Equal(t, "/data/notes.store", ctl.Location())
	assert.Equal(t, schema.Version("v2"), ctl.Final())
	assert.Equal(t, "/data/notes.store.lock", ctl.LockPath())

	_, err = New("", c, "")
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))

	_, err = New("/data/notes.store", nil, "")
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))

	_, err = New("/data/notes.store", c, "v7")
	assert.True(t, errorx.IsOfType(err, erx.UnknownVersion))
}

func TestController_MigrateThenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.store")
	seedNotes(t, path)

	ctl, err := New(path, noteCatalog(t), "")
	require.NoError(t, err)
	defer ctl.Close()

	ctx := context.Background()
	needed, err := ctl.IsMigrationNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, needed)

	_, err = ctl.Store(ctx)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalState), "outdated store is not handed out")

	res, err := ctl.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.Path{"v1", "v2"}, res.Path)

	needed, err = ctl.IsMigrationNeeded(ctx)
	require.NoError(t, err)
	assert.False(t, needed)

	s, err := ctl.Store(ctx)
	require.NoError(t, err)
	again, err := ctl.Store(ctx)
	require.NoError(t, err)
	assert.Same(t, s, again)

	rec, ok, err := s.Get(ctx, "Note", "n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, false, rec.Attrs["pinned"])

	// migrating a current store closes the cached one and does nothing else
	res, err = ctl.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Steps)
	require.NoError(t, ctl.Close())
}

func TestController_MigrateRecoversInterruptedSwap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.store")
	seedNotes(t, path)
	require.NoError(t, os.Rename(path, path+".backup"))

	ctl, err := New(path, noteCatalog(t), "")
	require.NoError(t, err)

	_, err = ctl.Migrate(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, path+".backup")

	v, err := ctl.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.Version("v2"), v)
}

func TestController_Recover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.store")
	seedNotes(t, path)
	require.NoError(t, os.WriteFile(path+".incoming", []byte("partial"), 0o644))

	ctl, err := New(path, noteCatalog(t), "")
	require.NoError(t, err)

	action, err := ctl.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migration.RecoveryDiscarded, action)
	assert.NoFileExists(t, path+".incoming")
}

func TestController_Locked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.store")
	seedNotes(t, path)

	ctl, err := New(path, noteCatalog(t), "", WithLockTimeout(200*time.Millisecond))
	require.NoError(t, err)

	held := flock.New(ctl.LockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	_, err = ctl.Migrate(context.Background())
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.Locked))

	v, err := ctl.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.Version("v1"), v)
}

func TestController_MigrateCancelledWhileWaiting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.store")
	seedNotes(t, path)

	ctl, err := New(path, noteCatalog(t), "")
	require.NoError(t, err)

	held := flock.New(ctl.LockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err = ctl.Migrate(ctx)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.Cancelled))
}
