// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"

	"github.com/charmbracelet/huh"
	"github.com/joomcode/errorx"
)

// Confirm asks a yes/no question on the terminal. It returns false when the user declines or aborts the prompt.
func Confirm(title string, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Migrate").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, errorx.IllegalState.Wrap(err, "failed to read confirmation")
	}

	return ok, nil
}
