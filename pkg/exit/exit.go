// SPDX-License-Identifier: Apache-2.0

// Package exit defines the process exit codes of storemig. The generic codes follow sysexits.h.
package exit

import (
	"fmt"
	"os"
)

type Code int

func (ec Code) String() string {
	return fmt.Sprintf("%d", ec)
}

func (ec Code) Int() int {
	return int(ec)
}

func (ec Code) TerminateProcess() {
	os.Exit(int(ec))
}

func (ec Code) Is(other int) bool {
	return int(ec) == other
}

const MinValidExitCode Code = 0
const MaxValidExitCode Code = 255

// POSIX standard exit code definitions.

const NormalTermination Code = 0
const GeneralError Code = 1
const UsageError Code = 64
const DataFormatError Code = 65
const MissingInputError Code = 66
const InternalError Code = 70
const InputOutputError Code = 74
const TemporaryFailure Code = 75
const PermissionDenied Code = 77
const ConfigurationError Code = 78

// Application specific exit code definitions.

// MigrationFailed is used when a step could not transform the store and the original was kept.
const MigrationFailed Code = 100

// SwapFailed is used when the migrated store could not replace the original.
const SwapFailed Code = 101

// Cancelled is used when the migration was interrupted by a signal.
const Cancelled Code = 130
