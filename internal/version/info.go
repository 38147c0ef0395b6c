// SPDX-License-Identifier: Apache-2.0

package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"
)

type Info struct {
	Number    string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	GoVersion string `json:"go" yaml:"go"`
	BuildMode string `json:"buildMode" yaml:"buildMode"`
}

const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Format renders the info as text, yaml or json. An empty format means text.
func (v Info) Format(format string) (string, error) {
	var output []byte
	var err error
	switch strings.ToLower(format) {
	case "", FormatText:
		return fmt.Sprintf("storemig %s (commit %s, %s, %s)", v.Number, v.Commit, v.GoVersion, v.BuildMode), nil
	case FormatJSON:
		output, err = json.Marshal(v)
		if err != nil {
			return "", errorx.IllegalFormat.Wrap(err, "Error marshaling version info to JSON")
		}
	case FormatYAML:
		output, err = yaml.Marshal(v)
		if err != nil {
			return "", errorx.IllegalFormat.Wrap(err, "Error marshaling version info to YAML")
		}
	default:
		return "", errorx.IllegalFormat.New("unsupported format: %s", format)
	}

	return string(output), nil
}

func Get() Info {
	return Info{
		Number:    Number(),
		Commit:    Commit(),
		GoVersion: runtime.Version(),
		BuildMode: BuildMode(),
	}
}
