// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
)

// MappingSpec describes how records of the source schema become records of the destination schema.
//
// An explicit spec only needs to list what differs from a structural carry-over: renamed attributes,
// computed attributes, filtered or renamed entities. Complete fills in the rest.
type MappingSpec struct {
	Source      schema.Version  `yaml:"source" json:"source" toml:"source"`
	Destination schema.Version  `yaml:"destination" json:"destination" toml:"destination"`
	Entities    []EntityMapping `yaml:"entities,omitempty" json:"entities,omitempty" toml:"entities,omitempty"`

	// Explicit is false for specs produced by Infer.
	Explicit bool `yaml:"-" json:"-" toml:"-"`

	source      *schema.Descriptor
	destination *schema.Descriptor
	completed   bool
}

// EntityMapping produces the records of destination entity Name from the records of source entity Source.
// Records for which Filter evaluates to false are not migrated.
type EntityMapping struct {
	Name          string                `yaml:"name" json:"name" toml:"name"`
	Source        string                `yaml:"source,omitempty" json:"source,omitempty" toml:"source,omitempty"`
	Filter        string                `yaml:"filter,omitempty" json:"filter,omitempty" toml:"filter,omitempty"`
	Attributes    []AttributeMapping    `yaml:"attributes,omitempty" json:"attributes,omitempty" toml:"attributes,omitempty"`
	Relationships []RelationshipMapping `yaml:"relationships,omitempty" json:"relationships,omitempty" toml:"relationships,omitempty"`

	filter *vm.Program
}

// AttributeMapping sets destination attribute Name from source attribute Source, from Expression evaluated
// against the source record, or from Default. At most one of Source and Expression may be set. When one is,
// Default replaces a missing value.
type AttributeMapping struct {
	Name       string      `yaml:"name" json:"name" toml:"name"`
	Source     string      `yaml:"source,omitempty" json:"source,omitempty" toml:"source,omitempty"`
	Expression string      `yaml:"expression,omitempty" json:"expression,omitempty" toml:"expression,omitempty"`
	Default    interface{} `yaml:"default,omitempty" json:"default,omitempty" toml:"default,omitempty"`

	rule    ruleKind
	attr    schema.Attribute
	program *vm.Program
}

// RelationshipMapping re-targets source relationship Source as destination relationship Name.
type RelationshipMapping struct {
	Name   string `yaml:"name" json:"name" toml:"name"`
	Source string `yaml:"source,omitempty" json:"source,omitempty" toml:"source,omitempty"`

	rel schema.Relationship
}

type ruleKind int

const (
	ruleEmpty ruleKind = iota
	ruleCopy
	ruleExpression
	ruleDefault
)

func (k ruleKind) String() string {
	switch k {
	case ruleCopy:
		return "copy"
	case ruleExpression:
		return "expression"
	case ruleDefault:
		return "default"
	}
	return "empty"
}

// Completed reports whether the mapping has been checked against its descriptors and is ready to run.
func (m *MappingSpec) Completed() bool {
	return m.completed
}

// SourceDescriptor returns the descriptor records are read with. It is nil until the mapping is completed.
func (m *MappingSpec) SourceDescriptor() *schema.Descriptor {
	return m.source
}

// DestinationDescriptor returns the descriptor records are written with. It is nil until the mapping is completed.
func (m *MappingSpec) DestinationDescriptor() *schema.Descriptor {
	return m.destination
}

// Entity returns the mapping producing destination entity name.
func (m *MappingSpec) Entity(name string) (*EntityMapping, bool) {
	for i := range m.Entities {
		if m.Entities[i].Name == name {
			return &m.Entities[i], true
		}
	}
	return nil, false
}

// Complete checks the mapping against the source and destination descriptors and fills in a rule for every
// destination entity, attribute and relationship the mapping does not mention. Unmentioned items are carried
// over by name; new attributes take their default or stay empty when optional. A spec that leaves any
// required destination item without a rule is rejected as InvalidMapping.
func (m *MappingSpec) Complete(src *schema.Descriptor, dst *schema.Descriptor) error {
	if m.completed {
		return nil
	}

	if m.Source != src.Version || m.Destination != dst.Version {
		return m.invalid("mapping %s -> %s applied to descriptors %s -> %s",
			m.Source, m.Destination, src.Version, dst.Version)
	}

	listed := map[string]bool{}
	for i := range m.Entities {
		em := &m.Entities[i]
		if listed[em.Name] {
			return m.invalid("entity %s is mapped twice", em.Name).WithProperty(erx.PropertyEntity, em.Name)
		}
		listed[em.Name] = true

		dstEntity, ok := dst.Entity(em.Name)
		if !ok {
			return m.invalid("entity %s is not declared in %s", em.Name, dst.Version).
				WithProperty(erx.PropertyEntity, em.Name)
		}

		if em.Source == "" {
			em.Source = em.Name
		}
		srcEntity, ok := src.Entity(em.Source)
		if !ok {
			return m.invalid("source entity %s is not declared in %s", em.Source, src.Version).
				WithProperty(erx.PropertyEntity, em.Name)
		}

		if err := m.completeEntity(em, srcEntity, dstEntity, src, dst); err != nil {
			return err
		}
	}

	// entities the mapping leaves out are carried over by name
	for _, dstEntity := range dst.Entities {
		if listed[dstEntity.Name] {
			continue
		}

		srcEntity, ok := src.Entity(dstEntity.Name)
		if !ok {
			continue
		}

		em := EntityMapping{Name: dstEntity.Name, Source: srcEntity.Name}
		e := dstEntity
		if err := m.completeEntity(&em, srcEntity, &e, src, dst); err != nil {
			return err
		}
		m.Entities = append(m.Entities, em)
	}

	m.source = src
	m.destination = dst
	m.completed = true

	return nil
}

func (m *MappingSpec) completeEntity(em *EntityMapping, srcEntity *schema.Entity, dstEntity *schema.Entity,
	src *schema.Descriptor, dst *schema.Descriptor) error {

	if em.Filter != "" {
		program, err := expr.Compile(em.Filter, expr.AsBool())
		if err != nil {
			return m.invalid("filter of entity %s does not compile", em.Name).
				WithProperty(erx.PropertyEntity, em.Name).
				WithUnderlyingErrors(err)
		}
		em.filter = program
	}

	attrs := map[string]bool{}
	for i := range em.Attributes {
		am := &em.Attributes[i]
		if attrs[am.Name] {
			return m.invalidAttribute(em.Name, am.Name, "attribute %s.%s is mapped twice", em.Name, am.Name)
		}
		attrs[am.Name] = true

		attr, ok := dstEntity.Attribute(am.Name)
		if !ok {
			return m.invalidAttribute(em.Name, am.Name, "attribute %s.%s is not declared in %s",
				em.Name, am.Name, dst.Version)
		}
		am.attr = attr

		if am.Source != "" && am.Expression != "" {
			return m.invalidAttribute(em.Name, am.Name, "attribute %s.%s sets both source and expression",
				em.Name, am.Name)
		}

		switch {
		case am.Expression != "":
			program, err := expr.Compile(am.Expression)
			if err != nil {
				return m.invalidAttribute(em.Name, am.Name, "expression of %s.%s does not compile", em.Name, am.Name).
					WithUnderlyingErrors(err)
			}
			am.program = program
			am.rule = ruleExpression
		case am.Source != "":
			if _, ok := srcEntity.Attribute(am.Source); !ok {
				return m.invalidAttribute(em.Name, am.Name, "source attribute %s.%s is not declared in %s",
					srcEntity.Name, am.Source, src.Version)
			}
			am.rule = ruleCopy
		case am.Default != nil:
			am.rule = ruleDefault
		default:
			if err := m.carryAttribute(am, srcEntity, em.Name); err != nil {
				return err
			}
		}

		if am.Default == nil {
			am.Default = attr.Default
		}
		if am.Default != nil {
			v, err := schema.Coerce(attr.Type, am.Default)
			if err != nil {
				return m.invalidAttribute(em.Name, am.Name, "default of %s.%s does not match its type",
					em.Name, am.Name).WithUnderlyingErrors(err)
			}
			am.Default = v
		}
	}

	for _, attr := range dstEntity.Attributes {
		if attrs[attr.Name] {
			continue
		}

		am := AttributeMapping{Name: attr.Name, Default: attr.Default, attr: attr}
		if err := m.carryAttribute(&am, srcEntity, em.Name); err != nil {
			return err
		}
		em.Attributes = append(em.Attributes, am)
	}

	rels := map[string]bool{}
	for i := range em.Relationships {
		rm := &em.Relationships[i]
		if rels[rm.Name] {
			return m.invalidRelationship(em.Name, rm.Name, "relationship %s.%s is mapped twice", em.Name, rm.Name)
		}
		rels[rm.Name] = true

		rel, ok := dstEntity.Relationship(rm.Name)
		if !ok {
			return m.invalidRelationship(em.Name, rm.Name, "relationship %s.%s is not declared in %s",
				em.Name, rm.Name, dst.Version)
		}
		rm.rel = rel

		if rm.Source == "" {
			rm.Source = rm.Name
		}
		if _, ok = srcEntity.Relationship(rm.Source); !ok {
			return m.invalidRelationship(em.Name, rm.Name, "source relationship %s.%s is not declared in %s",
				srcEntity.Name, rm.Source, src.Version)
		}
	}

	for _, rel := range dstEntity.Relationships {
		if rels[rel.Name] {
			continue
		}

		if _, ok := srcEntity.Relationship(rel.Name); ok {
			em.Relationships = append(em.Relationships, RelationshipMapping{Name: rel.Name, Source: rel.Name, rel: rel})
			continue
		}

		if !rel.Optional && !rel.ToMany {
			return m.invalidRelationship(em.Name, rel.Name, "required relationship %s.%s has no source",
				em.Name, rel.Name)
		}
	}

	return nil
}

// carryAttribute picks the implicit rule for an attribute: same-named source attribute, then a default,
// then empty when the attribute is optional.
func (m *MappingSpec) carryAttribute(am *AttributeMapping, srcEntity *schema.Entity, entity string) error {
	if _, ok := srcEntity.Attribute(am.Name); ok {
		am.Source = am.Name
		am.rule = ruleCopy
		return nil
	}

	if am.Default == nil && am.attr.Default != nil {
		am.Default = am.attr.Default
	}

	if am.Default != nil {
		am.rule = ruleDefault
		return nil
	}

	if am.attr.Optional {
		am.rule = ruleEmpty
		return nil
	}

	return m.invalidAttribute(entity, am.Name, "required attribute %s.%s has no source and no default",
		entity, am.Name)
}

func (m *MappingSpec) invalid(format string, args ...interface{}) *errorx.Error {
	return erx.InvalidMapping.New(format, args...).
		WithProperty(erx.PropertyFrom, string(m.Source)).
		WithProperty(erx.PropertyTo, string(m.Destination))
}

func (m *MappingSpec) invalidAttribute(entity string, attribute string, format string, args ...interface{}) *errorx.Error {
	return m.invalid(format, args...).
		WithProperty(erx.PropertyEntity, entity).
		WithProperty(erx.PropertyAttribute, attribute)
}

func (m *MappingSpec) invalidRelationship(entity string, rel string, format string, args ...interface{}) *errorx.Error {
	return m.invalid(format, args...).
		WithProperty(erx.PropertyEntity, entity).
		WithProperty(erx.PropertyRelationship, rel)
}
