// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/hashgraph/solo-storemig/pkg/fsx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/stretchr/testify/require"
)

// bookV1 has Book{title, author} and Shelf{label} holding books.
func bookV1() *schema.Descriptor {
	return &schema.Descriptor{
		Version: "v1",
		Entities: []schema.Entity{
			{
				Name: "Book",
				Attributes: []schema.Attribute{
					{Name: "title", Type: schema.TypeString},
					{Name: "author", Type: schema.TypeString},
				},
			},
			shelf(),
		},
	}
}

// bookV2 renames Book.author to authorName.
func bookV2() *schema.Descriptor {
	return &schema.Descriptor{
		Version: "v2",
		Entities: []schema.Entity{
			{
				Name: "Book",
				Attributes: []schema.Attribute{
					{Name: "title", Type: schema.TypeString},
					{Name: "authorName", Type: schema.TypeString},
				},
			},
			shelf(),
		},
	}
}

// bookV3 adds Book.year with a default, which can be inferred.
func bookV3() *schema.Descriptor {
	return &schema.Descriptor{
		Version: "v3",
		Entities: []schema.Entity{
			{
				Name: "Book",
				Attributes: []schema.Attribute{
					{Name: "title", Type: schema.TypeString},
					{Name: "authorName", Type: schema.TypeString},
					{Name: "year", Type: schema.TypeInteger, Default: int64(0)},
				},
			},
			shelf(),
		},
	}
}

func shelf() schema.Entity {
	return schema.Entity{
		Name:          "Shelf",
		Attributes:    []schema.Attribute{{Name: "label", Type: schema.TypeString}},
		Relationships: []schema.Relationship{{Name: "books", Destination: "Book", ToMany: true, Optional: true}},
	}
}

func renameAuthor() *MappingSpec {
	return &MappingSpec{
		Source:      "v1",
		Destination: "v2",
		Entities: []EntityMapping{
			{Name: "Book", Attributes: []AttributeMapping{{Name: "authorName", Source: "author"}}},
		},
	}
}

func bookCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := NewCatalog(bookV1(), bookV2(), bookV3())
	require.NoError(t, err)
	require.NoError(t, c.Mappings().Register(renameAuthor()))
	return c
}

// seedBooks writes a v1 store with two books and two shelves sharing book b1.
func seedBooks(t *testing.T, path string) {
	t.Helper()

	seedStore(t, path, bookV1(), []store.Record{
		{Entity: "Book", ID: "b1", Attrs: map[string]interface{}{"title": "Dune", "author": "Herbert"}},
		{Entity: "Book", ID: "b2", Attrs: map[string]interface{}{"title": "Solaris", "author": "Lem"}},
		{Entity: "Shelf", ID: "s1", Attrs: map[string]interface{}{"label": "scifi"}},
		{Entity: "Shelf", ID: "s2", Attrs: map[string]interface{}{"label": "favourites"}},
	}, []store.Link{
		{Entity: "Shelf", ID: "s1", Name: "books", TargetEntity: "Book", TargetID: "b1", Position: 0},
		{Entity: "Shelf", ID: "s1", Name: "books", TargetEntity: "Book", TargetID: "b2", Position: 1},
		{Entity: "Shelf", ID: "s2", Name: "books", TargetEntity: "Book", TargetID: "b1", Position: 0},
	})
}

func seedStore(t *testing.T, path string, d *schema.Descriptor, records []store.Record, links []store.Link,
	opts ...store.CreateOption) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Create(ctx, path, store.SQLite, d, opts...)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, w.PutRecord(ctx, r))
	}
	for _, l := range links {
		require.NoError(t, w.Link(ctx, l))
	}
	require.NoError(t, w.Commit())
}

func readRecords(t *testing.T, path string, entity string) []store.Record {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, path, store.SQLite, true)
	require.NoError(t, err)
	defer s.Close()

	var out []store.Record
	require.NoError(t, s.EachRecord(ctx, entity, func(r store.Record) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func readLinks(t *testing.T, path string, entity string) []store.Link {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, path, store.SQLite, true)
	require.NoError(t, err)
	defer s.Close()

	var out []store.Link
	require.NoError(t, s.EachLink(ctx, entity, func(l store.Link) error {
		out = append(out, l)
		return nil
	}))
	return out
}

func storeMeta(t *testing.T, path string) store.Meta {
	t.Helper()

	s, err := store.Open(context.Background(), path, store.SQLite, true)
	require.NoError(t, err)
	defer s.Close()
	return s.Meta()
}

// listDir returns the sorted names of the entries in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "library.store")
}

// recorder collects progress values, state transitions and the indices of the steps that ran.
type recorder struct {
	mu       sync.Mutex
	progress []float64
	states   []State
	steps    []int
}

func (r *recorder) MigrationProgress(fraction float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, fraction)
}

func (r *recorder) MigrationState(state State, step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	if state == Migrating {
		r.steps = append(r.steps, step)
	}
}

var temporaryStore = regexp.MustCompile(`^\d{2}-.+\.store$`)

// trackingManager records the temporary stores that existed when they were removed or moved into place.
type trackingManager struct {
	fsx.Manager

	mu      sync.Mutex
	removed []string
	renamed []string
}

func newTrackingManager(t *testing.T) *trackingManager {
	t.Helper()
	fs, err := fsx.NewManager()
	require.NoError(t, err)
	return &trackingManager{Manager: fs}
}

func (m *trackingManager) Remove(path string) error {
	if temporaryStore.MatchString(filepath.Base(path)) && fileExists(path) {
		m.mu.Lock()
		m.removed = append(m.removed, filepath.Base(path))
		m.mu.Unlock()
	}
	return m.Manager.Remove(path)
}

func (m *trackingManager) Rename(src string, dst string) error {
	if temporaryStore.MatchString(filepath.Base(src)) && fileExists(src) {
		m.mu.Lock()
		m.renamed = append(m.renamed, filepath.Base(src))
		m.mu.Unlock()
	}
	return m.Manager.Rename(src, dst)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
