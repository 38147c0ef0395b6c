// SPDX-License-Identifier: Apache-2.0

package fsx

import (
	"os"
)

//go:generate mockgen -source=fs.go -destination=manager_mock.go -package=fsx

// Manager provides an operating system independent interface for managing files and directories.
type Manager interface {
	// PathExists determines if the source path exists. This method does not follow symlinks.
	PathExists(path string) (os.FileInfo, bool, error)
	// IsRegularFile returns true if the path is a regular file; otherwise, false is returned.
	IsRegularFile(path string) bool
	// CreateDirectory creates a directory at the path specified by the path argument.
	// If the path argument refers to an existing directory, then no action is taken and no error is returned.
	// If the path argument refers to a non-existent parent path, then an error is returned unless
	// the recursive argument is true.
	CreateDirectory(path string, recursive bool) error
	// CopyFile copies a single regular file and flushes the copy to stable storage.
	//
	// If the dst argument refers to an existing file, then the existing file will be replaced if the overwrite
	// argument is true; otherwise, an error will be returned.
	CopyFile(src string, dst string, overwrite bool) error
	// Rename atomically replaces dst with src. A CrossDevice error is returned when src and dst are on different
	// file systems, in which case nothing has been changed.
	Rename(src string, dst string) error
	// SyncFile flushes the content of a file to stable storage.
	SyncFile(path string) error
	// SyncDir flushes a directory entry table so that renames and removals inside it survive a crash.
	SyncDir(path string) error
	// Remove deletes a single file. Removing a path that does not exist is not an error.
	Remove(path string) error
	// RemoveAll deletes a path and everything below it.
	RemoveAll(path string) error
}
