// SPDX-License-Identifier: Apache-2.0

package common

import (
	"encoding/json"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// PrintAs writes v to the command output as yaml or json.
func PrintAs(cmd *cobra.Command, v interface{}, format string) error {
	var output []byte
	var err error
	switch strings.ToLower(format) {
	case "", "yaml":
		output, err = yaml.Marshal(v)
	case "json":
		output, err = json.MarshalIndent(v, "", "  ")
		output = append(output, '\n')
	default:
		return errorx.IllegalFormat.New("unsupported format: %s", format).
			WithProperty(errorx.PropertyPayload(), "--output")
	}
	if err != nil {
		return errorx.IllegalFormat.Wrap(err, "failed to marshal output as %s", format)
	}

	cmd.Print(string(output))
	return nil
}
