// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"sort"
	"sync"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
)

type pair struct {
	from schema.Version
	to   schema.Version
}

// MappingResolver hands out the mapping for a pair of catalog versions. Explicit mappings win over
// inferred ones. Mappings are completed on first use and cached.
type MappingResolver struct {
	catalog      *Catalog
	mu           sync.Mutex
	explicit     map[pair]*MappingSpec
	resolved     map[pair]*MappingSpec
	notInferable map[pair]bool
}

func newMappingResolver(c *Catalog) *MappingResolver {
	return &MappingResolver{
		catalog:      c,
		explicit:     map[pair]*MappingSpec{},
		resolved:     map[pair]*MappingSpec{},
		notInferable: map[pair]bool{},
	}
}

// Register adds an explicit mapping. Both versions must be published and the pair must not already have an
// explicit mapping. The mapping itself is only checked against the descriptors when it is first used.
func (r *MappingResolver) Register(spec *MappingSpec) error {
	if spec == nil {
		return errorx.IllegalArgument.New("mapping must not be nil")
	}

	for _, v := range []schema.Version{spec.Source, spec.Destination} {
		if !r.catalog.Has(v) {
			return unknownVersion(v)
		}
	}

	if spec.Source == spec.Destination {
		return erx.InvalidMapping.New("mapping %s -> %s maps a version onto itself", spec.Source, spec.Destination).
			WithProperty(erx.PropertyFrom, string(spec.Source)).
			WithProperty(erx.PropertyTo, string(spec.Destination))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pair{spec.Source, spec.Destination}
	if _, exists := r.explicit[key]; exists {
		return erx.InvalidMapping.New("mapping %s -> %s is registered twice", spec.Source, spec.Destination).
			WithProperty(erx.PropertyFrom, string(spec.Source)).
			WithProperty(erx.PropertyTo, string(spec.Destination))
	}

	spec.Explicit = true
	r.explicit[key] = spec
	delete(r.resolved, key)
	delete(r.notInferable, key)

	return nil
}

// Has reports whether a mapping from a to b exists: an explicit mapping is registered, or b directly follows
// a in canonical order and a mapping can be inferred from the two descriptors. Explicit mappings are not
// completed here, and the outcome of inference is cached.
func (r *MappingResolver) Has(a schema.Version, b schema.Version) bool {
	if r.IsExplicit(a, b) {
		return true
	}

	i := r.catalog.Index(a)
	if i < 0 || i+1 >= len(r.catalog.versions) || r.catalog.versions[i+1] != b {
		return false
	}

	return r.inferable(a, b)
}

func (r *MappingResolver) inferable(a schema.Version, b schema.Version) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pair{a, b}
	if _, ok := r.resolved[key]; ok {
		return true
	}
	if r.notInferable[key] {
		return false
	}

	spec, err := Infer(r.catalog.descriptors[a], r.catalog.descriptors[b])
	if err != nil {
		r.notInferable[key] = true
		return false
	}
	r.resolved[key] = spec

	return true
}

// IsExplicit reports whether an explicit mapping is registered for the pair.
func (r *MappingResolver) IsExplicit(a schema.Version, b schema.Version) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.explicit[pair{a, b}]
	return ok
}

// ExplicitPairs returns the registered pairs ordered by the canonical index of source, then destination.
func (r *MappingResolver) ExplicitPairs() [][2]schema.Version {
	r.mu.Lock()
	pairs := make([][2]schema.Version, 0, len(r.explicit))
	for k := range r.explicit {
		pairs = append(pairs, [2]schema.Version{k.from, k.to})
	}
	r.mu.Unlock()

	sort.Slice(pairs, func(i, j int) bool {
		fi, fj := r.catalog.Index(pairs[i][0]), r.catalog.Index(pairs[j][0])
		if fi != fj {
			return fi < fj
		}
		return r.catalog.Index(pairs[i][1]) < r.catalog.Index(pairs[j][1])
	})

	return pairs
}

// MappingFor returns the completed mapping from a to b: the explicit one if registered, otherwise an inferred
// one. It fails with MappingNotFound when neither exists and with InvalidMapping when the explicit mapping does
// not fit the descriptors.
func (r *MappingResolver) MappingFor(a schema.Version, b schema.Version) (*MappingSpec, error) {
	src, err := r.catalog.Descriptor(a)
	if err != nil {
		return nil, err
	}
	dst, err := r.catalog.Descriptor(b)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pair{a, b}
	if spec, ok := r.resolved[key]; ok {
		return spec, nil
	}

	if spec, ok := r.explicit[key]; ok {
		if err = spec.Complete(src, dst); err != nil {
			return nil, err
		}
		r.resolved[key] = spec
		return spec, nil
	}

	spec, err := Infer(src, dst)
	if err != nil {
		return nil, err
	}
	r.resolved[key] = spec

	return spec, nil
}
