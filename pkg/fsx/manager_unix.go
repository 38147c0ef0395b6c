// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const (
	// defaultFileMode is the default file mode used when creating files.
	defaultFileMode = 0644
	// defaultDirectoryMode is the default directory mode used when creating directories.
	defaultDirectoryMode = 0755
)

type Option func(*unixManager) error

type unixManager struct {
	fileMode os.FileMode
}

func NewManager(opts ...Option) (Manager, error) {
	manager := &unixManager{fileMode: defaultFileMode}

	for _, opt := range opts {
		if err := opt(manager); err != nil {
			return nil, err
		}
	}

	return manager, nil
}

// WithFileMode sets the mode used for files created by CopyFile.
func WithFileMode(mode os.FileMode) Option {
	return func(manager *unixManager) error {
		manager.fileMode = mode
		return nil
	}
}

func (m *unixManager) PathExists(path string) (os.FileInfo, bool, error) {
	pi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return pi, true, nil
}

func (m *unixManager) IsRegularFile(path string) bool {
	pi, exists, err := m.PathExists(path)
	if err != nil || !exists {
		return false
	}

	return pi.Mode().IsRegular()
}

func (m *unixManager) CreateDirectory(path string, recursive bool) error {
	fi, exists, err := m.PathExists(path)
	if err != nil {
		return NewFileSystemError(err, "invalid path", path)
	}

	if exists {
		if !fi.IsDir() {
			return NewFileTypeError("directory", path)
		}
		return nil
	}

	parentDir := filepath.Dir(path)
	if _, exists, err = m.PathExists(parentDir); err != nil {
		return NewFileSystemError(err, "parent directory is not a valid path", parentDir)
	} else if !exists && !recursive {
		return NewFileNotFoundError(nil, parentDir)
	}

	if recursive {
		err = os.MkdirAll(path, defaultDirectoryMode)
	} else {
		err = os.Mkdir(path, defaultDirectoryMode)
	}

	if err != nil {
		return NewFileSystemError(err, "failed to create directory", path)
	}

	return nil
}

func (m *unixManager) CopyFile(src string, dst string, overwrite bool) error {
	// Ensure src exists and is a file
	sfi, exists, err := m.PathExists(src)
	if err != nil || !exists {
		return NewFileNotFoundError(err, src)
	}

	if !sfi.Mode().IsRegular() {
		return NewFileTypeError("regular file", src)
	}

	dfi, exists, err := m.PathExists(dst)
	if err != nil {
		return NewFileSystemError(err, "destination path is not a valid path", dst)
	}

	if exists {
		if os.SameFile(sfi, dfi) {
			return nil
		}

		if !dfi.Mode().IsRegular() || !overwrite {
			return NewFileAlreadyExistsError(dst)
		}
	}

	dstParent := filepath.Dir(dst)
	if !m.isDirectory(dstParent) {
		return NewFileNotFoundError(nil, dstParent)
	}

	return m.copyFileContents(src, dst)
}

func (m *unixManager) isDirectory(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func (m *unixManager) copyFileContents(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return NewFileSystemError(err, "failed to open the source file", src)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, m.fileMode)
	if err != nil {
		return NewFileSystemError(err, "failed to create the destination file", dst)
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	if err != nil {
		return NewFileSystemError(err, "failed to copy the file contents", src)
	}

	err = dstFile.Sync()
	if err != nil {
		return NewFileSystemError(err, "failed to sync the destination file", dst)
	}

	return nil
}

func (m *unixManager) Rename(src string, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if errors.Is(err, unix.EXDEV) {
		return NewCrossDeviceError(err, src, dst)
	}

	if errors.Is(err, os.ErrNotExist) {
		return NewFileNotFoundError(err, src)
	}

	return NewFileSystemError(err, "failed to rename", src).WithProperty(targetProperty, dst)
}

func (m *unixManager) SyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return NewFileSystemError(err, "failed to open file for sync", path)
	}
	defer f.Close()

	if err = unix.Fsync(int(f.Fd())); err != nil {
		return NewFileSystemError(err, "failed to sync file", path)
	}

	return nil
}

func (m *unixManager) SyncDir(path string) error {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return NewFileSystemError(err, "failed to open directory for sync", path)
	}
	defer unix.Close(fd)

	// EINVAL and ENOTSUP mean the file system does not support syncing directories
	if err = unix.Fsync(fd); err != nil && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOTSUP) {
		return NewFileSystemError(err, "failed to sync directory", path)
	}

	return nil
}

func (m *unixManager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewFileSystemError(err, "failed to remove", path)
	}
	return nil
}

func (m *unixManager) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return NewFileSystemError(err, "failed to remove", path)
	}
	return nil
}
