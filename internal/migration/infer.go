// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
)

// Infer derives a mapping from the structural difference between two descriptors. Entities, attributes and
// relationships present in both are carried over by name. Items only present in src are dropped. A new
// attribute must be optional or declare a default. Renames are never guessed, so a renamed item looks like a
// removal plus an addition and usually makes the pair not inferable.
//
// Infer returns MappingNotFound when the change is not purely additive or subtractive.
func Infer(src *schema.Descriptor, dst *schema.Descriptor) (*MappingSpec, error) {
	for _, dstEntity := range dst.Entities {
		srcEntity, ok := src.Entity(dstEntity.Name)
		if !ok {
			if err := inferNewEntity(src, dst, dstEntity); err != nil {
				return nil, err
			}
			continue
		}

		for _, attr := range dstEntity.Attributes {
			prev, ok := srcEntity.Attribute(attr.Name)
			switch {
			case ok && prev.Type != attr.Type:
				return nil, notInferable(src, dst, "attribute %s.%s changes type from %s to %s",
					dstEntity.Name, attr.Name, prev.Type, attr.Type).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyAttribute, attr.Name)
			case ok && prev.Optional && !attr.Optional && !attr.HasDefault():
				return nil, notInferable(src, dst, "attribute %s.%s becomes required without a default",
					dstEntity.Name, attr.Name).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyAttribute, attr.Name)
			case !ok && !attr.Optional && !attr.HasDefault():
				return nil, notInferable(src, dst, "new attribute %s.%s is required and has no default",
					dstEntity.Name, attr.Name).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyAttribute, attr.Name)
			}
		}

		for _, rel := range dstEntity.Relationships {
			prev, ok := srcEntity.Relationship(rel.Name)
			switch {
			case !ok && !rel.Optional && !rel.ToMany:
				return nil, notInferable(src, dst, "new relationship %s.%s is required",
					dstEntity.Name, rel.Name).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyRelationship, rel.Name)
			case ok && prev.Destination != rel.Destination:
				return nil, notInferable(src, dst, "relationship %s.%s changes destination from %s to %s",
					dstEntity.Name, rel.Name, prev.Destination, rel.Destination).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyRelationship, rel.Name)
			case ok && prev.ToMany && !rel.ToMany:
				return nil, notInferable(src, dst, "relationship %s.%s changes from to-many to to-one",
					dstEntity.Name, rel.Name).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyRelationship, rel.Name)
			case ok && prev.Optional && !rel.Optional && !rel.ToMany:
				return nil, notInferable(src, dst, "relationship %s.%s becomes required",
					dstEntity.Name, rel.Name).
					WithProperty(erx.PropertyEntity, dstEntity.Name).
					WithProperty(erx.PropertyRelationship, rel.Name)
			}
		}
	}

	spec := &MappingSpec{Source: src.Version, Destination: dst.Version}
	if err := spec.Complete(src, dst); err != nil {
		return nil, erx.MappingNotFound.Wrap(err, "inferred mapping %s -> %s is incomplete", src.Version, dst.Version)
	}

	return spec, nil
}

// inferNewEntity accepts an entity that does not exist in src as long as nothing already stored has to point
// at it.
func inferNewEntity(src *schema.Descriptor, dst *schema.Descriptor, entity schema.Entity) error {
	for _, other := range dst.Entities {
		if _, existed := src.Entity(other.Name); !existed {
			continue
		}
		for _, rel := range other.Relationships {
			if rel.Destination == entity.Name && !rel.Optional && !rel.ToMany {
				return notInferable(src, dst, "relationship %s.%s requires new entity %s",
					other.Name, rel.Name, entity.Name).
					WithProperty(erx.PropertyEntity, other.Name).
					WithProperty(erx.PropertyRelationship, rel.Name)
			}
		}
	}

	return nil
}

func notInferable(src *schema.Descriptor, dst *schema.Descriptor, format string, args ...interface{}) *errorx.Error {
	return erx.MappingNotFound.New(format, args...).
		WithProperty(erx.PropertyFrom, string(src.Version)).
		WithProperty(erx.PropertyTo, string(dst.Version))
}
