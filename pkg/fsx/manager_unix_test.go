// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package fsx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (Manager, string) {
	t.Helper()

	m, err := NewManager()
	require.NoError(t, err)

	return m, t.TempDir()
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ====== PathExists / CreateDirectory ======

func TestManager_PathExists(t *testing.T) {
	m, dir := setupTest(t)
	file := filepath.Join(dir, "a")
	writeFile(t, file, "x")

	fi, ok, err := m.PathExists(file)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", fi.Name())
	assert.True(t, m.IsRegularFile(file))
	assert.False(t, m.IsRegularFile(dir))

	_, ok, err = m.PathExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_CreateDirectory(t *testing.T) {
	m, dir := setupTest(t)

	nested := filepath.Join(dir, "a", "b")
	err := m.CreateDirectory(nested, false)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileNotFound))

	require.NoError(t, m.CreateDirectory(nested, true))
	require.NoError(t, m.CreateDirectory(nested, false))

	file := filepath.Join(dir, "file")
	writeFile(t, file, "x")
	err = m.CreateDirectory(file, false)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileTypeError))
}

// ====== CopyFile ======

func TestManager_CopyFile(t *testing.T) {
	m, dir := setupTest(t)
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "payload")

	require.NoError(t, m.CopyFile(src, dst, false))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	err = m.CopyFile(src, dst, false)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileAlreadyExists))

	writeFile(t, src, "newer")
	require.NoError(t, m.CopyFile(src, dst, true))
	b, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "newer", string(b))

	err = m.CopyFile(filepath.Join(dir, "missing"), dst, true)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileNotFound))
	assert.Equal(t, []string{filepath.Join(dir, "missing")}, SafeErrorDetails(err))

	err = m.CopyFile(src, filepath.Join(dir, "nope", "dst"), true)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileNotFound))

	err = m.CopyFile(dir, dst, true)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileTypeError))
}

func TestManager_CopyFileMode(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(WithFileMode(0o600))
	require.NoError(t, err)

	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "payload")

	require.NoError(t, m.CopyFile(src, dst, false))
	fi, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

// ====== Rename / Sync / Remove ======

func TestManager_RenameReplacesTarget(t *testing.T) {
	m, dir := setupTest(t)
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	require.NoError(t, m.SyncFile(src))
	require.NoError(t, m.Rename(src, dst))
	require.NoError(t, m.SyncDir(dir))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	assert.NoFileExists(t, src)

	err = m.Rename(src, dst)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileNotFound))
}

func TestManager_SyncErrors(t *testing.T) {
	m, dir := setupTest(t)

	err := m.SyncFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileSystemError))

	err = m.SyncDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileSystemError))
}

func TestManager_Remove(t *testing.T) {
	m, dir := setupTest(t)
	file := filepath.Join(dir, "a")
	writeFile(t, file, "x")

	require.NoError(t, m.Remove(file))
	require.NoError(t, m.Remove(file))
	assert.NoFileExists(t, file)

	tree := filepath.Join(dir, "tree", "leaf")
	require.NoError(t, m.CreateDirectory(tree, true))
	writeFile(t, filepath.Join(tree, "f"), "x")
	require.NoError(t, m.RemoveAll(filepath.Join(dir, "tree")))
	assert.NoDirExists(t, filepath.Join(dir, "tree"))
}

func TestNewCrossDeviceError(t *testing.T) {
	err := NewCrossDeviceError(os.ErrInvalid, "/a", "/b")
	assert.True(t, errorx.IsOfType(err, CrossDevice))
	assert.Equal(t, []string{"/a", "/b"}, SafeErrorDetails(err))
}
