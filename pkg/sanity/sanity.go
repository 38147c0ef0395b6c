// SPDX-License-Identifier: Apache-2.0

// Package sanity validates user supplied names and paths before they reach the filesystem.
package sanity

import (
	"path/filepath"
	"strings"

	"github.com/joomcode/errorx"
)

var (
	ErrInvalidFilename = errorx.IllegalArgument.New("invalid filename")
)

// Filename sanitize the input string to be safe filename
// It only allows alphanumeric characters (a-z, 0-9), dash and underscore
// It returns error if the filename is empty string after the sanitization
func Filename(s string) (string, error) {
	sb := []byte(s)
	j := 0
	for _, b := range sb {
		if ('a' <= b && b <= 'z') ||
			('A' <= b && b <= 'Z') ||
			('0' <= b && b <= '9') ||
			b == '_' ||
			b == '-' {
			sb[j] = b
			j++
		}
	}

	if j == 0 {
		return "", ErrInvalidFilename
	}

	return string(sb[:j]), nil
}

// SanitizePath validates a file path given on the command line or in a config file and returns it absolute
// and cleaned. Relative paths are resolved against the working directory.
//
// It rejects empty paths, paths containing NUL bytes and paths naming a directory (ending with a separator or
// a "." or ".." segment).
func SanitizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errorx.IllegalArgument.New("path cannot be empty")
	}

	if strings.ContainsRune(path, 0) {
		return "", errorx.IllegalArgument.New("path contains a NUL byte: %q", path)
	}

	if strings.HasSuffix(path, string(filepath.Separator)) {
		return "", errorx.IllegalArgument.New("path must name a file: %s", path)
	}

	if base := filepath.Base(path); base == "." || base == ".." {
		return "", errorx.IllegalArgument.New("path must name a file: %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errorx.IllegalArgument.Wrap(err, "failed to resolve path: %s", path)
	}

	return filepath.Clean(abs), nil
}
