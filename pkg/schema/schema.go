// SPDX-License-Identifier: Apache-2.0

// Package schema models the structural definition of a store: the entities it holds, their typed attributes
// and the relationships between them. A Descriptor is loaded once per version and shared read-only.
package schema

import (
	"github.com/joomcode/errorx"
)

// Version names one point in the schema evolution history. Versions are opaque: they are never ordered
// numerically, only through the declared evolution graph.
type Version string

func (v Version) String() string {
	return string(v)
}

// AttributeType is the value type of an attribute.
type AttributeType string

const (
	TypeString  AttributeType = "string"
	TypeInteger AttributeType = "integer"
	TypeFloat   AttributeType = "float"
	TypeBoolean AttributeType = "boolean"
	TypeDate    AttributeType = "date"
	TypeBinary  AttributeType = "binary"
)

// Valid reports whether t is one of the supported attribute types.
func (t AttributeType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeBinary:
		return true
	}
	return false
}

type Attribute struct {
	Name     string        `yaml:"name" json:"name" toml:"name"`
	Type     AttributeType `yaml:"type" json:"type" toml:"type"`
	Optional bool          `yaml:"optional,omitempty" json:"optional,omitempty" toml:"optional,omitempty"`
	Default  interface{}   `yaml:"default,omitempty" json:"default,omitempty" toml:"default,omitempty"`
}

// HasDefault reports whether the attribute declares a default value.
func (a Attribute) HasDefault() bool {
	return a.Default != nil
}

type Relationship struct {
	Name        string `yaml:"name" json:"name" toml:"name"`
	Destination string `yaml:"destination" json:"destination" toml:"destination"`
	ToMany      bool   `yaml:"toMany,omitempty" json:"toMany,omitempty" toml:"toMany,omitempty"`
	Optional    bool   `yaml:"optional,omitempty" json:"optional,omitempty" toml:"optional,omitempty"`
}

type Entity struct {
	Name          string         `yaml:"name" json:"name" toml:"name"`
	Attributes    []Attribute    `yaml:"attributes,omitempty" json:"attributes,omitempty" toml:"attributes,omitempty"`
	Relationships []Relationship `yaml:"relationships,omitempty" json:"relationships,omitempty" toml:"relationships,omitempty"`
}

// Attribute returns the attribute with the given name.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Relationship returns the relationship with the given name.
func (e *Entity) Relationship(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Descriptor is the full structural definition of one schema version.
type Descriptor struct {
	Version  Version  `yaml:"version" json:"version" toml:"version"`
	Entities []Entity `yaml:"entities" json:"entities" toml:"entities"`
}

// Entity returns the entity with the given name.
func (d *Descriptor) Entity(name string) (*Entity, bool) {
	for i := range d.Entities {
		if d.Entities[i].Name == name {
			return &d.Entities[i], true
		}
	}
	return nil, false
}

// EntityNames returns the entity names in declaration order.
func (d *Descriptor) EntityNames() []string {
	names := make([]string, 0, len(d.Entities))
	for _, e := range d.Entities {
		names = append(names, e.Name)
	}
	return names
}

// Normalize coerces every declared default to its attribute type so that descriptors decoded from
// different formats compare and fingerprint identically.
func (d *Descriptor) Normalize() error {
	for i := range d.Entities {
		e := &d.Entities[i]
		for j := range e.Attributes {
			a := &e.Attributes[j]
			if a.Default == nil {
				continue
			}

			v, err := Coerce(a.Type, a.Default)
			if err != nil {
				return errorx.Decorate(err, "invalid default for %s.%s", e.Name, a.Name)
			}
			a.Default = v
		}
	}

	return nil
}

// Validate checks the descriptor carries a version and is structurally sound.
func (d *Descriptor) Validate() error {
	if d.Version == "" {
		return errorx.IllegalArgument.New("schema descriptor has no version")
	}

	return d.ValidateStructure()
}

// ValidateStructure checks names are present and unique, attribute types are known, defaults match their
// type and every relationship points at a declared entity. The version tag is not required.
func (d *Descriptor) ValidateStructure() error {
	entities := map[string]bool{}
	for _, e := range d.Entities {
		if e.Name == "" {
			return errorx.IllegalArgument.New("schema %s declares an entity without a name", d.Version)
		}
		if entities[e.Name] {
			return errorx.IllegalArgument.New("schema %s declares entity %q twice", d.Version, e.Name)
		}
		entities[e.Name] = true
	}

	for _, e := range d.Entities {
		members := map[string]bool{}
		for _, a := range e.Attributes {
			if a.Name == "" {
				return errorx.IllegalArgument.New("entity %s has an attribute without a name", e.Name)
			}
			if members[a.Name] {
				return errorx.IllegalArgument.New("entity %s declares %q twice", e.Name, a.Name)
			}
			members[a.Name] = true

			if !a.Type.Valid() {
				return errorx.IllegalArgument.New("attribute %s.%s has unsupported type %q", e.Name, a.Name, a.Type)
			}
			if a.Default != nil {
				if _, err := Coerce(a.Type, a.Default); err != nil {
					return errorx.IllegalArgument.Wrap(err, "attribute %s.%s has an invalid default", e.Name, a.Name)
				}
			}
		}

		for _, r := range e.Relationships {
			if r.Name == "" {
				return errorx.IllegalArgument.New("entity %s has a relationship without a name", e.Name)
			}
			if members[r.Name] {
				return errorx.IllegalArgument.New("entity %s declares %q twice", e.Name, r.Name)
			}
			members[r.Name] = true

			if !entities[r.Destination] {
				return errorx.IllegalArgument.New("relationship %s.%s points at unknown entity %q",
					e.Name, r.Name, r.Destination)
			}
		}
	}

	return nil
}
