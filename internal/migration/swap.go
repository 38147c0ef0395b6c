// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/fsx"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
)

const (
	incomingSuffix = ".incoming"
	backupSuffix   = ".backup"
	workDirMarker  = ".migration-"
)

// RecoveryAction tells what Recover found next to a store.
type RecoveryAction string

const (
	// RecoveryNone means no leftovers were found.
	RecoveryNone RecoveryAction = "none"
	// RecoveryRestored means the original store was put back from its backup.
	RecoveryRestored RecoveryAction = "restored"
	// RecoveryDiscarded means an unfinished copy of a migrated store was removed.
	RecoveryDiscarded RecoveryAction = "discarded"
	// RecoveryCompleted means a swap had finished and only its backup was left to remove.
	RecoveryCompleted RecoveryAction = "completed"
)

// Swapper replaces the original store with the migrated one.
type Swapper interface {
	// Commit makes the store at final the store at location. When it fails, at least one of the two stores is
	// intact: the original at location, or the migrated store recoverable by Recover.
	Commit(ctx context.Context, final Handle, location string) error
	// Recover resolves leftovers of a swap interrupted by a crash.
	Recover(ctx context.Context, location string) (RecoveryAction, error)
}

// FileSwapper commits with a single atomic rename when the migrated store lives on the same file system as
// the original. Otherwise it falls back to write-ahead: the migrated store is copied next to the original as
// <store>.incoming and flushed, the original is renamed to <store>.backup, the incoming copy is renamed into
// place and finally the backup is removed.
type FileSwapper struct {
	fs     fsx.Manager
	logger *zerolog.Logger
}

func NewFileSwapper(fs fsx.Manager, logger *zerolog.Logger) *FileSwapper {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &FileSwapper{fs: fs, logger: logger}
}

func (s *FileSwapper) Commit(ctx context.Context, final Handle, location string) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	if err := s.fs.SyncFile(final.Path); err != nil {
		return swapFailed(err, location, "failed to flush migrated store")
	}

	err := s.fs.Rename(final.Path, location)
	if err == nil {
		if err = s.fs.SyncDir(filepath.Dir(location)); err != nil {
			s.logger.Warn().Err(err).Str("path", location).Msg("Failed to flush store directory after swap")
		}
		return nil
	}

	if !errorx.IsOfType(err, fsx.CrossDevice) {
		return swapFailed(err, location, "failed to move migrated store into place")
	}

	s.logger.Debug().
		Str("from", final.Path).
		Str("to", location).
		Msg("Migrated store is on another file system, falling back to write-ahead swap")

	return s.writeAhead(final, location)
}

func (s *FileSwapper) writeAhead(final Handle, location string) error {
	dir := filepath.Dir(location)
	incoming := location + incomingSuffix
	backup := location + backupSuffix

	if err := s.fs.CopyFile(final.Path, incoming, true); err != nil {
		_ = s.fs.Remove(incoming)
		return swapFailed(err, location, "failed to stage migrated store")
	}

	if err := s.fs.SyncDir(dir); err != nil {
		_ = s.fs.Remove(incoming)
		return swapFailed(err, location, "failed to flush staged store")
	}

	if err := s.fs.Rename(location, backup); err != nil {
		_ = s.fs.Remove(incoming)
		return swapFailed(err, location, "failed to back up original store")
	}

	if err := s.fs.Rename(incoming, location); err != nil {
		if restoreErr := s.fs.Rename(backup, location); restoreErr != nil {
			return swapFailed(err, location, "failed to move staged store into place and to restore the original; "+
				"the original is kept at %s and the migrated store at %s", backup, incoming).
				WithUnderlyingErrors(restoreErr)
		}
		_ = s.fs.Remove(incoming)
		return swapFailed(err, location, "failed to move staged store into place; the original was restored")
	}

	if err := s.fs.SyncDir(dir); err != nil {
		s.logger.Warn().Err(err).Str("path", location).Msg("Failed to flush store directory after swap")
	}

	if err := s.fs.Remove(backup); err != nil {
		s.logger.Warn().Err(err).Str("path", backup).Msg("Failed to remove backup of original store")
	}

	return nil
}

// Recover is conservative: whenever the outcome of an interrupted swap is unclear the original store wins and
// the migration has to be run again. Stale per-run work directories next to the store are removed as well.
func (s *FileSwapper) Recover(ctx context.Context, location string) (RecoveryAction, error) {
	if err := ctx.Err(); err != nil {
		return RecoveryNone, cancelled(err)
	}

	incoming := location + incomingSuffix
	backup := location + backupSuffix

	hasOriginal, err := s.exists(location)
	if err != nil {
		return RecoveryNone, err
	}
	hasIncoming, err := s.exists(incoming)
	if err != nil {
		return RecoveryNone, err
	}
	hasBackup, err := s.exists(backup)
	if err != nil {
		return RecoveryNone, err
	}

	action := RecoveryNone
	switch {
	case hasBackup && !hasOriginal:
		if err = s.fs.Rename(backup, location); err != nil {
			return RecoveryNone, swapFailed(err, location, "failed to restore original store from %s", backup)
		}
		action = RecoveryRestored
	case hasBackup && hasOriginal:
		// the staged store had already been renamed into place
		if err = s.fs.Remove(backup); err != nil {
			return RecoveryNone, erx.IO(err, backup, "failed to remove stale backup")
		}
		action = RecoveryCompleted
	case hasIncoming:
		action = RecoveryDiscarded
	}

	if hasIncoming {
		if err = s.fs.Remove(incoming); err != nil {
			return action, erx.IO(err, incoming, "failed to remove staged store")
		}
	}

	if err = s.removeStaleWorkDirs(location); err != nil {
		return action, err
	}

	if action != RecoveryNone {
		if err = s.fs.SyncDir(filepath.Dir(location)); err != nil {
			s.logger.Warn().Err(err).Str("path", location).Msg("Failed to flush store directory after recovery")
		}
		s.logger.Info().Str("path", location).Str("action", string(action)).Msg("Recovered interrupted swap")
	}

	return action, nil
}

func (s *FileSwapper) removeStaleWorkDirs(location string) error {
	pattern := filepath.Join(filepath.Dir(location), workDirPrefix(location)+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return errorx.IllegalArgument.Wrap(err, "invalid store location %s", location)
	}

	for _, m := range matches {
		if err = s.fs.RemoveAll(m); err != nil {
			return erx.IO(err, m, "failed to remove stale work directory")
		}
		s.logger.Debug().Str("path", m).Msg("Removed stale migration work directory")
	}

	return nil
}

func (s *FileSwapper) exists(path string) (bool, error) {
	_, ok, err := s.fs.PathExists(path)
	if err != nil {
		return false, erx.IO(err, path, "failed to inspect %s", path)
	}
	return ok, nil
}

// workDirPrefix is the name prefix of the per-run work directories created next to a store.
func workDirPrefix(location string) string {
	return fmt.Sprintf(".%s%s", filepath.Base(location), workDirMarker)
}

func swapFailed(cause error, location string, format string, args ...interface{}) *errorx.Error {
	return erx.SwapFailed.Wrap(cause, format, args...).
		WithProperty(erx.PropertyPath, location)
}
