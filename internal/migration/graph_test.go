// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"testing"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// item returns a descriptor with one entity whose optional attributes are named after the given fields.
func item(v schema.Version, fields ...string) *schema.Descriptor {
	attrs := []schema.Attribute{{Name: "name", Type: schema.TypeString}}
	for _, f := range fields {
		attrs = append(attrs, schema.Attribute{Name: f, Type: schema.TypeString, Optional: true})
	}
	return &schema.Descriptor{
		Version:  v,
		Entities: []schema.Entity{{Name: "Item", Attributes: attrs}},
	}
}

func itemCatalog(t *testing.T, n int, explicit ...[2]schema.Version) *Catalog {
	t.Helper()

	var descs []*schema.Descriptor
	var fields []string
	for i := 1; i <= n; i++ {
		v := schema.Version("v" + string(rune('0'+i)))
		fields = append(fields, "f"+string(v))
		descs = append(descs, item(v, fields...))
	}

	c, err := NewCatalog(descs...)
	require.NoError(t, err)
	for _, e := range explicit {
		require.NoError(t, c.Mappings().Register(&MappingSpec{Source: e[0], Destination: e[1]}))
	}
	return c
}

func TestPathResolver_Linear(t *testing.T) {
	p := NewPathResolver(itemCatalog(t, 4))
	require.True(t, p.IsLinear())

	path, err := p.Resolve("v1", "v4")
	require.NoError(t, err)
	assert.Equal(t, Path{"v1", "v2", "v3", "v4"}, path)
	assert.Equal(t, 3, path.Steps())

	path, err = p.Resolve("v2", "v3")
	require.NoError(t, err)
	assert.Equal(t, Path{"v2", "v3"}, path)

	path, err = p.Resolve("v3", "v3")
	require.NoError(t, err)
	assert.Equal(t, Path{"v3"}, path)
	assert.Equal(t, 0, path.Steps())

	_, err = p.Resolve("v3", "v1")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.NoPath))

	_, err = p.Resolve("v1", "v9")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.UnknownVersion))
}

func TestPathResolver_ShortestPathTieBreak(t *testing.T) {
	p := NewPathResolver(itemCatalog(t, 4, [2]schema.Version{"v1", "v3"}, [2]schema.Version{"v2", "v4"}))
	require.False(t, p.IsLinear())

	// v1 v3 v4 is just as short, the canonically earlier path wins
	path, err := p.Resolve("v1", "v4")
	require.NoError(t, err)
	assert.Equal(t, Path{"v1", "v2", "v4"}, path)

	path, err = p.Resolve("v1", "v3")
	require.NoError(t, err)
	assert.Equal(t, Path{"v1", "v3"}, path)
}

func TestPathResolver_SkipsPairsThatCannotBeInferred(t *testing.T) {
	// v3 adds a required attribute without a default, so v2 -> v3 has no mapping
	v3 := item("v3", "fv1", "fv2")
	v3.Entities[0].Attributes = append(v3.Entities[0].Attributes, schema.Attribute{Name: "code", Type: schema.TypeString})

	c, err := NewCatalog(item("v1", "fv1"), item("v2", "fv1", "fv2"), v3, item("v4", "fv1", "fv2"))
	require.NoError(t, err)
	require.NoError(t, c.Mappings().Register(&MappingSpec{Source: "v1", Destination: "v4"}))
	require.NoError(t, c.Mappings().Register(&MappingSpec{
		Source:      "v4",
		Destination: "v3",
		Entities: []EntityMapping{
			{Name: "Item", Attributes: []AttributeMapping{{Name: "code", Expression: `"unset"`}}},
		},
	}))

	assert.False(t, c.Mappings().Has("v2", "v3"))

	// v1 v2 v3 would win the tie-break but has no v2 -> v3 mapping
	path, err := NewPathResolver(c).Resolve("v1", "v3")
	require.NoError(t, err)
	assert.Equal(t, Path{"v1", "v4", "v3"}, path)

	for i := 0; i < path.Steps(); i++ {
		_, err = c.Mappings().MappingFor(path[i], path[i+1])
		require.NoError(t, err)
	}

	// an explicit mapping registered later replaces the failed inference
	require.NoError(t, c.Mappings().Register(&MappingSpec{
		Source:      "v2",
		Destination: "v3",
		Entities: []EntityMapping{
			{Name: "Item", Attributes: []AttributeMapping{{Name: "code", Expression: `"unset"`}}},
		},
	}))
	assert.True(t, c.Mappings().Has("v2", "v3"))
}

func TestPathResolver_Backwards(t *testing.T) {
	p := NewPathResolver(itemCatalog(t, 3, [2]schema.Version{"v3", "v1"}))

	path, err := p.Resolve("v3", "v2")
	require.NoError(t, err)
	assert.Equal(t, Path{"v3", "v1", "v2"}, path)

	p = NewPathResolver(itemCatalog(t, 3, [2]schema.Version{"v2", "v1"}))
	_, err = p.Resolve("v3", "v1")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.NoPath))
	from, _ := errorx.ExtractProperty(err, erx.PropertyFrom)
	assert.Equal(t, "v3", from)
}

func TestPathResolver_Edges(t *testing.T) {
	p := NewPathResolver(itemCatalog(t, 3, [2]schema.Version{"v1", "v2"}, [2]schema.Version{"v3", "v1"}))

	assert.Equal(t, []Edge{
		{From: "v1", To: "v2", Explicit: true},
		{From: "v2", To: "v3"},
		{From: "v3", To: "v1", Explicit: true},
	}, p.Edges())
}
