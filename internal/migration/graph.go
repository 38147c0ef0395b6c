// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
)

// Path is an ordered chain of versions. A path of length n takes n-1 steps.
type Path []schema.Version

// Steps returns the number of adjacent pairs in the path.
func (p Path) Steps() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Edge is one directed pair of the version graph.
type Edge struct {
	From     schema.Version
	To       schema.Version
	Explicit bool
}

// PathResolver answers path queries over the version graph of a catalog.
type PathResolver struct {
	catalog *Catalog
}

func NewPathResolver(c *Catalog) *PathResolver {
	return &PathResolver{catalog: c}
}

// Edges lists the graph edges: the canonical chain first, then explicit shortcuts, each ordered canonically.
func (p *PathResolver) Edges() []Edge {
	var edges []Edge
	versions := p.catalog.versions
	mappings := p.catalog.mappings

	for i := 0; i+1 < len(versions); i++ {
		edges = append(edges, Edge{
			From:     versions[i],
			To:       versions[i+1],
			Explicit: mappings.IsExplicit(versions[i], versions[i+1]),
		})
	}

	for _, pr := range mappings.ExplicitPairs() {
		if p.isCanonical(pr[0], pr[1]) {
			continue
		}
		edges = append(edges, Edge{From: pr[0], To: pr[1], Explicit: true})
	}

	return edges
}

func (p *PathResolver) isCanonical(a schema.Version, b schema.Version) bool {
	i := p.catalog.Index(a)
	return i >= 0 && i+1 < len(p.catalog.versions) && p.catalog.versions[i+1] == b
}

// IsLinear reports whether the graph is just the canonical chain.
func (p *PathResolver) IsLinear() bool {
	for _, pr := range p.catalog.mappings.ExplicitPairs() {
		if !p.isCanonical(pr[0], pr[1]) {
			return false
		}
	}
	return true
}

// Resolve returns the chain of versions leading from one version to another. Equal versions give a path of
// a single version and zero steps.
func (p *PathResolver) Resolve(from schema.Version, to schema.Version) (Path, error) {
	for _, v := range []schema.Version{from, to} {
		if !p.catalog.Has(v) {
			return nil, unknownVersion(v)
		}
	}

	if from == to {
		return Path{from}, nil
	}

	if p.IsLinear() {
		i, j := p.catalog.Index(from), p.catalog.Index(to)
		if i > j {
			return nil, noPath(from, to)
		}
		return append(Path(nil), p.catalog.versions[i:j+1]...), nil
	}

	return p.shortest(from, to)
}

// shortest runs a breadth first search visiting neighbours in canonical order, so the first path found is
// the shortest one and ties go to the path whose versions come earliest in canonical order.
func (p *PathResolver) shortest(from schema.Version, to schema.Version) (Path, error) {
	versions := p.catalog.versions
	parent := map[schema.Version]schema.Version{}
	visited := map[schema.Version]bool{from: true}
	queue := []schema.Version{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range versions {
			if visited[next] || !p.catalog.mappings.Has(current, next) {
				continue
			}

			visited[next] = true
			parent[next] = current
			if next == to {
				return walkBack(parent, from, to), nil
			}
			queue = append(queue, next)
		}
	}

	return nil, noPath(from, to)
}

func walkBack(parent map[schema.Version]schema.Version, from schema.Version, to schema.Version) Path {
	path := Path{to}
	for v := to; v != from; {
		v = parent[v]
		path = append(path, v)
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path
}

func noPath(from schema.Version, to schema.Version) error {
	return erx.NoPath.New("no migration path from %s to %s", from, to).
		WithProperty(erx.PropertyFrom, string(from)).
		WithProperty(erx.PropertyTo, string(to))
}
