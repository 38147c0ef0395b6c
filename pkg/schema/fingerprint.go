// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/joomcode/errorx"
)

// Canonical returns a copy of the descriptor with entities, attributes and relationships sorted by name.
func (d *Descriptor) Canonical() Descriptor {
	out := Descriptor{Version: d.Version, Entities: make([]Entity, len(d.Entities))}
	for i, e := range d.Entities {
		ce := Entity{
			Name:          e.Name,
			Attributes:    append([]Attribute(nil), e.Attributes...),
			Relationships: append([]Relationship(nil), e.Relationships...),
		}
		sort.Slice(ce.Attributes, func(a, b int) bool { return ce.Attributes[a].Name < ce.Attributes[b].Name })
		sort.Slice(ce.Relationships, func(a, b int) bool { return ce.Relationships[a].Name < ce.Relationships[b].Name })
		out.Entities[i] = ce
	}
	sort.Slice(out.Entities, func(a, b int) bool { return out.Entities[a].Name < out.Entities[b].Name })

	return out
}

// Fingerprint hashes the structure of the descriptor. The version tag is excluded so that a store written
// without a tag can still be matched against the catalog by its shape alone.
func (d *Descriptor) Fingerprint() (string, error) {
	c := d.Canonical()
	c.Version = ""

	b, err := json.Marshal(c.Entities)
	if err != nil {
		return "", errorx.IllegalState.Wrap(err, "failed to encode schema %s", d.Version)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
