// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func library() *schema.Descriptor {
	return &schema.Descriptor{
		Version: "v1",
		Entities: []schema.Entity{
			{
				Name: "Book",
				Attributes: []schema.Attribute{
					{Name: "title", Type: schema.TypeString},
					{Name: "year", Type: schema.TypeInteger, Optional: true},
					{Name: "cover", Type: schema.TypeBinary, Optional: true},
				},
				Relationships: []schema.Relationship{
					{Name: "authors", Destination: "Author", ToMany: true},
				},
			},
			{
				Name:       "Author",
				Attributes: []schema.Attribute{{Name: "name", Type: schema.TypeString}},
			},
		},
	}
}

func seed(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	s, err := Create(ctx, path, SQLite, library())
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.PutRecord(ctx, Record{Entity: "Author", ID: "a1", Attrs: map[string]interface{}{"name": "Herbert"}}))
	require.NoError(t, w.PutRecord(ctx, Record{Entity: "Book", ID: "b2", Attrs: map[string]interface{}{
		"title": "Dune Messiah", "year": int64(1969), "cover": []byte{0xca, 0xfe},
	}}))
	require.NoError(t, w.PutRecord(ctx, Record{Entity: "Book", ID: "b1", Attrs: map[string]interface{}{"title": "Dune"}}))
	require.NoError(t, w.Link(ctx, Link{Entity: "Book", ID: "b1", Name: "authors", TargetEntity: "Author", TargetID: "a1"}))
	require.NoError(t, w.Link(ctx, Link{Entity: "Book", ID: "b2", Name: "authors", TargetEntity: "Author", TargetID: "a1"}))

	ok, err := w.Exists(ctx, "Book", "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, w.Commit())
	require.NoError(t, w.Rollback())
}

// ====== Create / Open ======

func TestStore_CreateAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "library.db")
	seed(t, path)

	s, err := Open(ctx, path, SQLite, true)
	require.NoError(t, err)
	defer s.Close()

	meta := s.Meta()
	assert.Equal(t, FormatTag, meta.Format)
	assert.Equal(t, schema.Version("v1"), meta.Version)
	fp, err := library().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, meta.Fingerprint)
	assert.Equal(t, []string{"Book", "Author"}, meta.Schema.EntityNames())
	assert.False(t, meta.CreatedAt.IsZero())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = s.CountEntity(ctx, "Book")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = s.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_CreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Create(context.Background(), path, SQLite, library())
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.IOFailure))
}

func TestStore_CreateWithoutVersionTag(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	s, err := Create(ctx, path, SQLite, library(), WithoutVersionTag())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, SQLite, true)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Meta().Version)
	require.NotNil(t, s.Meta().Schema)
	assert.Empty(t, s.Meta().Schema.Version)

	want, err := library().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, s.Meta().Fingerprint)
	got, err := s.Meta().Schema.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_OpenErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Open(ctx, filepath.Join(dir, "missing.db"), SQLite, true)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.IOFailure))

	garbage := filepath.Join(dir, "garbage.db")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not sqlite, just some bytes padding the header out"), 0o644))
	_, err = Open(ctx, garbage, SQLite, true)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.NotRecognized))

	_, err = Open(ctx, garbage, Type("bolt"), true)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))
}

func TestStore_ReadOnlyLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "library.db")
	seed(t, path)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s, err := Open(ctx, path, SQLite, true)
	require.NoError(t, err)
	_, err = s.Begin(ctx)
	require.Error(t, err)
	require.NoError(t, s.EachRecord(ctx, "Book", func(Record) error { return nil }))
	require.NoError(t, s.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// ====== Reading ======

func TestStore_EachRecordCoercesValues(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "library.db")
	seed(t, path)

	s, err := Open(ctx, path, SQLite, true)
	require.NoError(t, err)
	defer s.Close()

	var got []Record
	require.NoError(t, s.EachRecord(ctx, "Book", func(r Record) error {
		got = append(got, r)
		return nil
	}))

	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, "b2", got[1].ID)
	assert.Equal(t, int64(1969), got[1].Attrs["year"])
	assert.Equal(t, []byte{0xca, 0xfe}, got[1].Attrs["cover"])

	rec, ok, err := s.Get(ctx, "Author", "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Herbert", rec.Attrs["name"])

	_, ok, err = s.Get(ctx, "Author", "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_EachLinkAndEarlyStop(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "library.db")
	seed(t, path)

	s, err := Open(ctx, path, SQLite, true)
	require.NoError(t, err)
	defer s.Close()

	var links []Link
	require.NoError(t, s.EachLink(ctx, "Book", func(l Link) error {
		links = append(links, l)
		return nil
	}))
	require.Len(t, links, 2)
	assert.Equal(t, Link{Entity: "Book", ID: "b1", Name: "authors", TargetEntity: "Author", TargetID: "a1"}, links[0])

	stop := errorx.IllegalState.New("stop")
	calls := 0
	err = s.EachRecord(ctx, "Book", func(Record) error {
		calls++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}

func TestStore_DuplicateRecordRejected(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "library.db")

	s, err := Create(ctx, path, SQLite, library())
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()

	require.NoError(t, w.PutRecord(ctx, Record{Entity: "Author", ID: "a1"}))
	err = w.PutRecord(ctx, Record{Entity: "Author", ID: "a1"})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, erx.IOFailure))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, typ)

	typ, err = ParseType("SQLite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite3, typ)

	_, err = ParseType("postgres")
	require.Error(t, err)
}
