// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"context"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
)

// Handle references an on-disk store and the schema version it satisfies.
type Handle struct {
	Path    string
	Type    store.Type
	Version schema.Version
}

// Catalog holds every published schema version in canonical order together with the explicit mappings
// between them. A Catalog is read-only once built and may be shared between migrations.
type Catalog struct {
	versions     []schema.Version
	descriptors  map[schema.Version]*schema.Descriptor
	fingerprints map[schema.Version]string
	final        schema.Version
	mappings     *MappingResolver
}

// NewCatalog builds a catalog from descriptors given in canonical order. The last descriptor is the default
// final version.
func NewCatalog(descriptors ...*schema.Descriptor) (*Catalog, error) {
	if len(descriptors) == 0 {
		return nil, errorx.IllegalArgument.New("catalog needs at least one schema version")
	}

	c := &Catalog{
		descriptors:  map[schema.Version]*schema.Descriptor{},
		fingerprints: map[schema.Version]string{},
	}

	for _, d := range descriptors {
		if d == nil {
			return nil, errorx.IllegalArgument.New("catalog schema descriptor is nil")
		}
		if err := d.Normalize(); err != nil {
			return nil, err
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.descriptors[d.Version]; exists {
			return nil, errorx.IllegalArgument.New("schema version %s is declared twice", d.Version)
		}

		fp, err := d.Fingerprint()
		if err != nil {
			return nil, err
		}

		c.versions = append(c.versions, d.Version)
		c.descriptors[d.Version] = d
		c.fingerprints[d.Version] = fp
	}

	c.final = c.versions[len(c.versions)-1]
	c.mappings = newMappingResolver(c)

	return c, nil
}

// Versions returns the declared versions in canonical order.
func (c *Catalog) Versions() []schema.Version {
	return append([]schema.Version(nil), c.versions...)
}

// Final returns the version stores are migrated to by default.
func (c *Catalog) Final() schema.Version {
	return c.final
}

// SetFinal changes the default final version.
func (c *Catalog) SetFinal(v schema.Version) error {
	if !c.Has(v) {
		return unknownVersion(v)
	}
	c.final = v
	return nil
}

// Has reports whether v is published.
func (c *Catalog) Has(v schema.Version) bool {
	_, ok := c.descriptors[v]
	return ok
}

// Index returns the canonical position of v, or -1.
func (c *Catalog) Index(v schema.Version) int {
	for i, known := range c.versions {
		if known == v {
			return i
		}
	}
	return -1
}

// Descriptor returns the descriptor of a published version.
func (c *Catalog) Descriptor(v schema.Version) (*schema.Descriptor, error) {
	d, ok := c.descriptors[v]
	if !ok {
		return nil, unknownVersion(v)
	}
	return d, nil
}

// Mappings returns the resolver for mappings between catalog versions.
func (c *Catalog) Mappings() *MappingResolver {
	return c.mappings
}

// CurrentVersion opens the store read-only and identifies the version it was written under.
func (c *Catalog) CurrentVersion(ctx context.Context, h Handle) (schema.Version, error) {
	s, err := store.Open(ctx, h.Path, h.Type, true)
	if err != nil {
		return "", err
	}
	defer s.Close()

	return c.Identify(s.Meta())
}

// Identify matches store metadata against the published descriptors. A store carrying a version tag must
// match that version's fingerprint. A store without a tag is matched by fingerprint alone, and must match
// exactly one version.
func (c *Catalog) Identify(meta store.Meta) (schema.Version, error) {
	fingerprint := meta.Fingerprint
	if meta.Schema != nil {
		embedded, err := meta.Schema.Fingerprint()
		if err != nil {
			return "", err
		}
		if fingerprint != "" && fingerprint != embedded {
			return "", erx.NotRecognized.New("store fingerprint does not match its embedded schema")
		}
		fingerprint = embedded
	}

	if meta.Version != "" {
		expected, ok := c.fingerprints[meta.Version]
		if !ok {
			return "", erx.NotRecognized.New("store version %s is not published in the catalog", meta.Version).
				WithProperty(erx.PropertyFrom, string(meta.Version))
		}
		if expected != fingerprint {
			return "", erx.NotRecognized.New("store claims version %s but its schema differs", meta.Version).
				WithProperty(erx.PropertyFrom, string(meta.Version))
		}
		return meta.Version, nil
	}

	var matches []schema.Version
	for _, v := range c.versions {
		if c.fingerprints[v] == fingerprint {
			matches = append(matches, v)
		}
	}

	switch len(matches) {
	case 0:
		return "", erx.NotRecognized.New("store schema matches no published version")
	case 1:
		return matches[0], nil
	default:
		return "", erx.NotRecognized.New("store schema matches versions %v; a version tag is required", matches)
	}
}

func unknownVersion(v schema.Version) *errorx.Error {
	return erx.UnknownVersion.New("schema version %q is not published", v).
		WithProperty(erx.PropertyTo, string(v))
}
