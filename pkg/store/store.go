// SPDX-License-Identifier: Apache-2.0

// Package store reads and writes self-describing store files.
//
// A store is a single SQLite file holding typed records, the relationships between them and the schema
// descriptor it was written under. The embedded descriptor and version tag are what the migration catalog
// matches against to find out which schema version a store belongs to.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// FormatTag identifies the on-disk layout. It is written into every store's meta table.
const FormatTag = "storemig/1"

const (
	metaFormat      = "format"
	metaVersion     = "schema_version"
	metaFingerprint = "schema_fingerprint"
	metaSchema      = "schema"
	metaCreatedAt   = "created_at"
)

var ddl = []string{
	`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE records (
		entity TEXT NOT NULL,
		id     TEXT NOT NULL,
		attrs  TEXT NOT NULL,
		PRIMARY KEY (entity, id)
	)`,
	`CREATE TABLE links (
		entity        TEXT NOT NULL,
		id            TEXT NOT NULL,
		name          TEXT NOT NULL,
		target_entity TEXT NOT NULL,
		target_id     TEXT NOT NULL,
		position      INTEGER NOT NULL,
		PRIMARY KEY (entity, id, name, position)
	)`,
}

// Type selects the SQLite driver used to access a store file. Both drivers read and write the same format.
type Type string

const (
	// SQLite is the pure Go driver (modernc.org/sqlite).
	SQLite Type = "sqlite"
	// SQLite3 is the cgo driver (github.com/mattn/go-sqlite3).
	SQLite3 Type = "sqlite3"
)

// ParseType validates a store type tag. An empty tag selects SQLite.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "", SQLite:
		return SQLite, nil
	case SQLite3:
		return SQLite3, nil
	}

	return "", errorx.IllegalArgument.New("unsupported store type %q", s)
}

// Meta is the self-description embedded in a store file.
type Meta struct {
	Format      string
	Version     schema.Version
	Fingerprint string
	Schema      *schema.Descriptor
	CreatedAt   time.Time
}

// Record is one object of an entity. Attribute values use the representation produced by schema.Coerce.
type Record struct {
	Entity string
	ID     string
	Attrs  map[string]interface{}
}

// Link is one relationship edge from a record to a target record. Position orders to-many targets.
type Link struct {
	Entity       string
	ID           string
	Name         string
	TargetEntity string
	TargetID     string
	Position     int
}

// Store is an open store file. A Store uses a single connection, so callbacks passed to EachRecord and
// EachLink must not call back into the same Store.
type Store struct {
	db       *sql.DB
	path     string
	typ      Type
	readOnly bool
	meta     Meta
}

type createConfig struct {
	tagless bool
}

// CreateOption configures Create.
type CreateOption func(*createConfig)

// WithoutVersionTag writes the descriptor and fingerprint but no version tag, the way stores written by
// tools that predate version tagging look.
func WithoutVersionTag() CreateOption {
	return func(c *createConfig) {
		c.tagless = true
	}
}

// Create writes a new empty store at path for the given descriptor. It fails if path already exists.
func Create(ctx context.Context, path string, typ Type, d *schema.Descriptor, opts ...CreateOption) (*Store, error) {
	cfg := &createConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if _, err := os.Stat(path); err == nil {
		return nil, erx.IOFailure.New("store %s already exists", path).WithProperty(erx.PropertyPath, path)
	}

	embedded := *d
	if cfg.tagless {
		embedded.Version = ""
	}

	encoded, err := json.Marshal(&embedded)
	if err != nil {
		return nil, errorx.IllegalState.Wrap(err, "failed to encode schema %s", d.Version)
	}

	// fingerprint the descriptor the way Open will read it back
	normalized, err := schema.ParseDescriptor(encoded)
	if err != nil {
		return nil, err
	}

	fingerprint, err := normalized.Fingerprint()
	if err != nil {
		return nil, err
	}

	db, err := openDB(path, typ, false)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, typ: typ}
	s.meta = Meta{
		Format:      FormatTag,
		Version:     embedded.Version,
		Fingerprint: fingerprint,
		Schema:      normalized,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	if err = s.initialize(ctx, string(encoded)); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context, encodedSchema string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return erx.IO(err, s.path, "failed to initialize store")
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range ddl {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return erx.IO(err, s.path, "failed to initialize store")
		}
	}

	entries := map[string]string{
		metaFormat:      s.meta.Format,
		metaFingerprint: s.meta.Fingerprint,
		metaSchema:      encodedSchema,
		metaCreatedAt:   s.meta.CreatedAt.Format(time.RFC3339),
	}
	if s.meta.Version != "" {
		entries[metaVersion] = string(s.meta.Version)
	}
	for k, v := range entries {
		if _, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return erx.IO(err, s.path, "failed to write store metadata")
		}
	}

	if err = tx.Commit(); err != nil {
		return erx.IO(err, s.path, "failed to initialize store")
	}

	return nil
}

// Open opens an existing store. A read-only store is opened in SQLite's read-only mode so the file is
// never written, not even by journal recovery.
func Open(ctx context.Context, path string, typ Type, readOnly bool) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, erx.IO(err, path, "store %s is not accessible", path)
	}

	db, err := openDB(path, typ, readOnly)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, typ: typ, readOnly: readOnly}
	if err = s.loadMeta(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func openDB(path string, typ Type, readOnly bool) (*sql.DB, error) {
	if _, err := ParseType(string(typ)); err != nil {
		return nil, err
	}

	dsn := "file:" + strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	if readOnly {
		dsn += "?mode=ro"
	}

	db, err := sql.Open(string(typ), dsn)
	if err != nil {
		return nil, erx.IO(err, path, "failed to open store")
	}
	db.SetMaxOpenConns(1)

	return db, nil
}

func (s *Store) loadMeta(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return erx.NotRecognized.Wrap(err, "%s is not a store file", s.path).WithProperty(erx.PropertyPath, s.path)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err = rows.Scan(&k, &v); err != nil {
			return erx.IO(err, s.path, "failed to read store metadata")
		}
		values[k] = v
	}
	if err = rows.Err(); err != nil {
		return erx.IO(err, s.path, "failed to read store metadata")
	}

	if values[metaFormat] != FormatTag {
		return erx.NotRecognized.New("%s has unsupported store format %q", s.path, values[metaFormat]).
			WithProperty(erx.PropertyPath, s.path)
	}

	d, err := schema.ParseDescriptor([]byte(values[metaSchema]))
	if err != nil {
		return erx.NotRecognized.Wrap(err, "%s has an unreadable schema", s.path).WithProperty(erx.PropertyPath, s.path)
	}

	created, _ := time.Parse(time.RFC3339, values[metaCreatedAt])
	s.meta = Meta{
		Format:      values[metaFormat],
		Version:     schema.Version(values[metaVersion]),
		Fingerprint: values[metaFingerprint],
		Schema:      d,
		CreatedAt:   created,
	}

	return nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Type returns the driver type the store was opened with.
func (s *Store) Type() Type {
	return s.typ
}

// Meta returns the embedded self-description.
func (s *Store) Meta() Meta {
	return s.meta
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return erx.IO(err, s.path, "failed to close store")
	}
	return nil
}
