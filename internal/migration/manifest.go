// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
)

const (
	// ManifestFile is the name of the catalog manifest inside a catalog directory.
	ManifestFile = "catalog.yaml"

	// SupportedAPIVersions is the range of manifest apiVersion values LoadCatalog understands.
	SupportedAPIVersions = ">= 1.0.0, < 2.0.0"
)

// Manifest lists the files of a catalog directory. Versions are given in canonical order.
//
//	apiVersion: 1.0.0
//	final: v3
//	versions:
//	  - name: v1
//	    file: v1.yaml
//	mappings:
//	  - file: v1-to-v2.yaml
type Manifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Final      string            `yaml:"final,omitempty"`
	Versions   []ManifestVersion `yaml:"versions"`
	Mappings   []ManifestMapping `yaml:"mappings,omitempty"`
}

type ManifestVersion struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

type ManifestMapping struct {
	File string `yaml:"file"`
}

// LoadManifest reads and checks the manifest of a catalog directory.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{}
	if err := schema.DecodeFile(filepath.Join(dir, ManifestFile), m); err != nil {
		return nil, err
	}

	if m.APIVersion == "" {
		return nil, errorx.IllegalFormat.New("catalog manifest in %s has no apiVersion", dir)
	}

	v, err := semver.NewVersion(m.APIVersion)
	if err != nil {
		return nil, errorx.IllegalFormat.Wrap(err, "catalog manifest apiVersion %q is not a version", m.APIVersion)
	}

	supported, err := semver.NewConstraint(SupportedAPIVersions)
	if err != nil {
		return nil, errorx.IllegalState.Wrap(err, "invalid supported api version range")
	}

	if !supported.Check(v) {
		return nil, errorx.IllegalFormat.New("catalog manifest apiVersion %s is not supported, expected %s",
			m.APIVersion, SupportedAPIVersions)
	}

	if len(m.Versions) == 0 {
		return nil, errorx.IllegalFormat.New("catalog manifest in %s declares no versions", dir)
	}

	for i, mv := range m.Versions {
		if mv.Name == "" || mv.File == "" {
			return nil, errorx.IllegalFormat.New("catalog manifest version #%d needs a name and a file", i+1)
		}
	}

	for i, mm := range m.Mappings {
		if mm.File == "" {
			return nil, errorx.IllegalFormat.New("catalog manifest mapping #%d needs a file", i+1)
		}
	}

	return m, nil
}

// LoadCatalog builds a catalog from a catalog directory: its manifest, one descriptor file per version and
// the explicit mapping files. File paths in the manifest are relative to dir. Descriptor and mapping files
// may be YAML, JSON or TOML, chosen by extension.
func LoadCatalog(dir string) (*Catalog, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	descriptors := make([]*schema.Descriptor, 0, len(m.Versions))
	for _, mv := range m.Versions {
		d, err := loadVersion(dir, mv)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}

	c, err := NewCatalog(descriptors...)
	if err != nil {
		return nil, err
	}

	if m.Final != "" {
		if err = c.SetFinal(schema.Version(m.Final)); err != nil {
			return nil, err
		}
	}

	for _, mm := range m.Mappings {
		spec := &MappingSpec{}
		if err = schema.DecodeFile(resolve(dir, mm.File), spec); err != nil {
			return nil, err
		}

		if err = c.Mappings().Register(spec); err != nil {
			return nil, errorx.Decorate(err, "mapping file %s", mm.File)
		}
	}

	return c, nil
}

func loadVersion(dir string, mv ManifestVersion) (*schema.Descriptor, error) {
	d := &schema.Descriptor{}
	if err := schema.DecodeFile(resolve(dir, mv.File), d); err != nil {
		return nil, err
	}

	switch d.Version {
	case "":
		d.Version = schema.Version(mv.Name)
	case schema.Version(mv.Name):
	default:
		return nil, errorx.IllegalArgument.New("descriptor %s declares version %s but the manifest names it %s",
			mv.File, d.Version, mv.Name)
	}

	if err := d.Normalize(); err != nil {
		return nil, errorx.Decorate(err, "descriptor %s", mv.File)
	}

	if err := d.Validate(); err != nil {
		return nil, errorx.Decorate(err, "descriptor %s", mv.File)
	}

	return d, nil
}

func resolve(dir string, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}
