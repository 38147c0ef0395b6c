// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookV1() *Descriptor {
	return &Descriptor{
		Version: "v1",
		Entities: []Entity{
			{
				Name: "Book",
				Attributes: []Attribute{
					{Name: "title", Type: TypeString},
					{Name: "author", Type: TypeString},
				},
				Relationships: []Relationship{
					{Name: "shelf", Destination: "Shelf", Optional: true},
				},
			},
			{
				Name:       "Shelf",
				Attributes: []Attribute{{Name: "label", Type: TypeString}},
			},
		},
	}
}

// ====== Validate ======

func TestDescriptor_Validate(t *testing.T) {
	require.NoError(t, bookV1().Validate())

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{"missing version", func(d *Descriptor) { d.Version = "" }},
		{"duplicate entity", func(d *Descriptor) { d.Entities = append(d.Entities, Entity{Name: "Book"}) }},
		{"unnamed entity", func(d *Descriptor) { d.Entities = append(d.Entities, Entity{}) }},
		{"duplicate attribute", func(d *Descriptor) {
			d.Entities[0].Attributes = append(d.Entities[0].Attributes, Attribute{Name: "title", Type: TypeString})
		}},
		{"unknown type", func(d *Descriptor) { d.Entities[0].Attributes[0].Type = "decimal" }},
		{"bad default", func(d *Descriptor) { d.Entities[0].Attributes[0].Default = 12 }},
		{"dangling relationship", func(d *Descriptor) { d.Entities[0].Relationships[0].Destination = "Author" }},
		{"relationship shadows attribute", func(d *Descriptor) { d.Entities[0].Relationships[0].Name = "title" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := bookV1()
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))
		})
	}
}

func TestDescriptor_Lookup(t *testing.T) {
	d := bookV1()

	e, ok := d.Entity("Book")
	require.True(t, ok)
	_, ok = e.Attribute("author")
	assert.True(t, ok)
	r, ok := e.Relationship("shelf")
	require.True(t, ok)
	assert.Equal(t, "Shelf", r.Destination)

	_, ok = d.Entity("Author")
	assert.False(t, ok)
	assert.Equal(t, []string{"Book", "Shelf"}, d.EntityNames())
}

// ====== Fingerprint ======

func TestDescriptor_FingerprintIgnoresOrderAndVersion(t *testing.T) {
	a := bookV1()
	b := bookV1()
	b.Version = "other"
	b.Entities[0], b.Entities[1] = b.Entities[1], b.Entities[0]
	attrs := b.Entities[1].Attributes
	attrs[0], attrs[1] = attrs[1], attrs[0]

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	b.Entities[1].Attributes = append(b.Entities[1].Attributes, Attribute{Name: "year", Type: TypeInteger})
	fc, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestDescriptor_FingerprintStableAcrossDefaultEncodings(t *testing.T) {
	a := bookV1()
	a.Entities[0].Attributes = append(a.Entities[0].Attributes, Attribute{Name: "year", Type: TypeInteger, Default: 0})
	b := bookV1()
	b.Entities[0].Attributes = append(b.Entities[0].Attributes,
		Attribute{Name: "year", Type: TypeInteger, Default: json.Number("0")})

	require.NoError(t, a.Normalize())
	require.NoError(t, b.Normalize())

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

// ====== Coerce ======

func TestCoerce(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))

	tests := []struct {
		name string
		typ  AttributeType
		in   interface{}
		want interface{}
	}{
		{"nil", TypeString, nil, nil},
		{"string", TypeString, "Dune", "Dune"},
		{"int", TypeInteger, 7, int64(7)},
		{"json integer", TypeInteger, json.Number("1965"), int64(1965)},
		{"integral float", TypeInteger, float64(3), int64(3)},
		{"uint64", TypeInteger, uint64(9), int64(9)},
		{"float from int", TypeFloat, 2, float64(2)},
		{"json float", TypeFloat, json.Number("2.5"), 2.5},
		{"bool", TypeBoolean, true, true},
		{"time", TypeDate, when, "2024-03-01T09:00:00Z"},
		{"date string", TypeDate, "2024-03-01T10:00:00+01:00", "2024-03-01T09:00:00Z"},
		{"bytes", TypeBinary, []byte{1, 2}, []byte{1, 2}},
		{"base64", TypeBinary, "AQI=", []byte{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.typ, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Rejects(t *testing.T) {
	tests := []struct {
		name string
		typ  AttributeType
		in   interface{}
	}{
		{"int as string", TypeString, 1},
		{"fraction as integer", TypeInteger, 1.5},
		{"bad json integer", TypeInteger, json.Number("1.5")},
		{"string as bool", TypeBoolean, "true"},
		{"bad date", TypeDate, "yesterday"},
		{"bad base64", TypeBinary, "%%%"},
		{"unknown type", AttributeType("decimal"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.typ, tt.in)
			require.Error(t, err)
		})
	}
}

// ====== Codec ======

func TestLoadDescriptor_AllFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"book.yaml": `
version: v3
entities:
  - name: Book
    attributes:
      - name: title
        type: string
      - name: year
        type: integer
        default: 0
`,
		"book.json": `{"version":"v3","entities":[{"name":"Book","attributes":[
  {"name":"title","type":"string"},{"name":"year","type":"integer","default":0}]}]}`,
		"book.toml": `
version = "v3"

[[entities]]
name = "Book"

  [[entities.attributes]]
  name = "title"
  type = "string"

  [[entities.attributes]]
  name = "year"
  type = "integer"
  default = 0
`,
	}

	var fingerprints []string
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		d, err := LoadDescriptor(path)
		require.NoError(t, err, name)
		assert.Equal(t, Version("v3"), d.Version)

		e, ok := d.Entity("Book")
		require.True(t, ok)
		year, ok := e.Attribute("year")
		require.True(t, ok)
		assert.Equal(t, int64(0), year.Default, name)

		fp, err := d.Fingerprint()
		require.NoError(t, err)
		fingerprints = append(fingerprints, fp)
	}

	assert.Equal(t, fingerprints[0], fingerprints[1])
	assert.Equal(t, fingerprints[1], fingerprints[2])
}

func TestLoadDescriptor_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadDescriptor(filepath.Join(dir, "schema.xml"))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))

	_, err = LoadDescriptor(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	_, err = LoadDescriptor(broken)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalFormat))
}

// ====== ParseDescriptor ======

func TestParseDescriptor_WithoutVersion(t *testing.T) {
	d := bookV1()
	d.Version = ""
	d.Entities[1].Attributes = append(d.Entities[1].Attributes, Attribute{Name: "slots", Type: TypeInteger, Default: 12})
	data, err := json.Marshal(d)
	require.NoError(t, err)

	parsed, err := ParseDescriptor(data)
	require.NoError(t, err)
	assert.Empty(t, parsed.Version)
	assert.Equal(t, int64(12), parsed.Entities[1].Attributes[1].Default)

	d.Entities[0].Relationships[0].Destination = "Author"
	data, err = json.Marshal(d)
	require.NoError(t, err)
	_, err = ParseDescriptor(data)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))
}
