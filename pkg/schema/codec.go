// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a descriptor or mapping file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatOf derives the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}

	return "", errorx.IllegalArgument.New("unsupported file extension for %q", path).
		WithProperty(errorx.PropertyPayload(), path)
}

// Decode unmarshals data in the given format into out. JSON numbers are kept as json.Number so that
// integers survive until they are coerced to their attribute type.
func Decode(data []byte, format Format, out interface{}) error {
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, out)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(out)
	case FormatTOML:
		err = toml.Unmarshal(data, out)
	default:
		return errorx.IllegalArgument.New("unsupported format %q", format)
	}

	if err != nil {
		return errorx.IllegalFormat.Wrap(err, "failed to decode %s document", format)
	}

	return nil
}

// DecodeFile reads path and decodes it according to its extension.
func DecodeFile(path string, out interface{}) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return erx.IO(err, path, "failed to read %s", path)
	}

	if err = Decode(data, format, out); err != nil {
		return errorx.Decorate(err, "file %s", path)
	}

	return nil
}

// LoadDescriptor reads, normalizes and validates a descriptor file.
func LoadDescriptor(path string) (*Descriptor, error) {
	d := &Descriptor{}
	if err := DecodeFile(path, d); err != nil {
		return nil, err
	}

	return prepare(d)
}

// ParseDescriptor decodes a JSON descriptor, as embedded in a store file. Stores written without a version
// tag embed a descriptor without a version, so only the structure is validated.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	if err := Decode(data, FormatJSON, d); err != nil {
		return nil, err
	}

	if err := d.Normalize(); err != nil {
		return nil, err
	}

	if err := d.ValidateStructure(); err != nil {
		return nil, err
	}

	return d, nil
}

func prepare(d *Descriptor) (*Descriptor, error) {
	if err := d.Normalize(); err != nil {
		return nil, err
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}
