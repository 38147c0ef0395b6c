// SPDX-License-Identifier: Apache-2.0

package fsx

import (
	"github.com/joomcode/errorx"
)

var (
	ErrorsNamespace   = errorx.NewNamespace("fsx")
	FileAlreadyExists = ErrorsNamespace.NewType("file_already_exists")
	FileNotFound      = ErrorsNamespace.NewType("file_not_found", errorx.NotFound())
	FileSystemError   = ErrorsNamespace.NewType("filesystem_error")
	FileTypeError     = ErrorsNamespace.NewType("file_type_error")
	// CrossDevice is returned by Rename when source and destination live on different file systems.
	CrossDevice = ErrorsNamespace.NewType("cross_device")

	pathProperty   = errorx.RegisterPrintableProperty("fs_path")
	targetProperty = errorx.RegisterPrintableProperty("fs_target")
)

func NewFileNotFoundError(cause error, path string) *errorx.Error {
	e := FileNotFound.New("file not found [ path = '%s' ]", path).
		WithProperty(pathProperty, path)
	if cause != nil {
		e = e.WithUnderlyingErrors(cause)
	}

	return e
}

func NewFileAlreadyExistsError(path string) *errorx.Error {
	return FileAlreadyExists.New("file already exists [ path = '%s' ]", path).
		WithProperty(pathProperty, path)
}

func NewFileTypeError(expected string, path string) *errorx.Error {
	return FileTypeError.New("path is not a %s [ path = '%s' ]", expected, path).
		WithProperty(pathProperty, path)
}

func NewFileSystemError(cause error, details string, path string) *errorx.Error {
	return FileSystemError.Wrap(cause, "%s [ path = '%s' ]", details, path).
		WithProperty(pathProperty, path)
}

func NewCrossDeviceError(cause error, src string, dst string) *errorx.Error {
	return CrossDevice.Wrap(cause, "cannot rename across file systems [ path = '%s', target = '%s' ]", src, dst).
		WithProperty(pathProperty, src).
		WithProperty(targetProperty, dst)
}

// SafeErrorDetails emits the paths attached to a file system error.
func SafeErrorDetails(err error) []string {
	var safeDetails []string
	if err == nil {
		return safeDetails
	}

	for _, prop := range []errorx.Property{pathProperty, targetProperty} {
		if val, ok := errorx.ExtractProperty(err, prop); ok {
			safeDetails = append(safeDetails, val.(string))
		}
	}

	return safeDetails
}
