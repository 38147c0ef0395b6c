// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/joomcode/errorx"
)

// Count returns the number of records across all entities.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM records`)
}

// CountLinks returns the number of relationship edges across all entities.
func (s *Store) CountLinks(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM links`)
}

// CountEntityLinks returns the number of relationship edges whose source is a record of one entity.
func (s *Store) CountEntityLinks(ctx context.Context, entity string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM links WHERE entity = ?`, entity)
}

// CountEntity returns the number of records of one entity.
func (s *Store) CountEntity(ctx context.Context, entity string) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM records WHERE entity = ?`, entity)
}

func (s *Store) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, erx.IO(err, s.path, "failed to count records")
	}
	return n, nil
}

// EachRecord streams the records of an entity ordered by id. Iteration stops at the first error returned by fn.
func (s *Store) EachRecord(ctx context.Context, entity string, fn func(Record) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, attrs FROM records WHERE entity = ? ORDER BY id`, entity)
	if err != nil {
		return erx.IO(err, s.path, "failed to read %s records", entity)
	}
	defer rows.Close()

	for rows.Next() {
		var id, attrs string
		if err = rows.Scan(&id, &attrs); err != nil {
			return erx.IO(err, s.path, "failed to read %s records", entity)
		}

		rec, err := s.decode(entity, id, attrs)
		if err != nil {
			return err
		}

		if err = fn(rec); err != nil {
			return err
		}
	}

	if err = rows.Err(); err != nil {
		return erx.IO(err, s.path, "failed to read %s records", entity)
	}

	return nil
}

// EachLink streams the relationship edges whose source is an entity, ordered by id, name and position.
func (s *Store) EachLink(ctx context.Context, entity string, fn func(Link) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, target_entity, target_id, position FROM links WHERE entity = ? ORDER BY id, name, position`,
		entity)
	if err != nil {
		return erx.IO(err, s.path, "failed to read %s links", entity)
	}
	defer rows.Close()

	for rows.Next() {
		l := Link{Entity: entity}
		if err = rows.Scan(&l.ID, &l.Name, &l.TargetEntity, &l.TargetID, &l.Position); err != nil {
			return erx.IO(err, s.path, "failed to read %s links", entity)
		}

		if err = fn(l); err != nil {
			return err
		}
	}

	if err = rows.Err(); err != nil {
		return erx.IO(err, s.path, "failed to read %s links", entity)
	}

	return nil
}

// Get loads a single record.
func (s *Store) Get(ctx context.Context, entity string, id string) (Record, bool, error) {
	var attrs string
	err := s.db.QueryRowContext(ctx, `SELECT attrs FROM records WHERE entity = ? AND id = ?`, entity, id).Scan(&attrs)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, erx.IO(err, s.path, "failed to read %s %s", entity, id)
	}

	rec, err := s.decode(entity, id, attrs)
	if err != nil {
		return Record{}, false, err
	}

	return rec, true, nil
}

func (s *Store) decode(entity string, id string, raw string) (Record, error) {
	attrs := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return Record{}, erx.IO(err, s.path, "corrupt record %s %s", entity, id)
	}

	if e, ok := s.meta.Schema.Entity(entity); ok {
		for name, v := range attrs {
			a, ok := e.Attribute(name)
			if !ok {
				continue
			}

			coerced, err := schema.Coerce(a.Type, v)
			if err != nil {
				return Record{}, erx.IO(err, s.path, "corrupt value %s.%s in record %s", entity, name, id)
			}
			attrs[name] = coerced
		}
	}

	return Record{Entity: entity, ID: id, Attrs: attrs}, nil
}

// Writer batches record and link inserts in a single transaction.
type Writer struct {
	tx   *sql.Tx
	path string
}

// Begin starts a write transaction. It fails on a store opened read-only.
func (s *Store) Begin(ctx context.Context) (*Writer, error) {
	if s.readOnly {
		return nil, errorx.IllegalState.New("store %s is opened read-only", s.path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, erx.IO(err, s.path, "failed to begin transaction")
	}

	return &Writer{tx: tx, path: s.path}, nil
}

// PutRecord inserts a record. Record identity is unique per entity, so inserting the same id twice fails.
func (w *Writer) PutRecord(ctx context.Context, rec Record) error {
	attrs := rec.Attrs
	if attrs == nil {
		attrs = map[string]interface{}{}
	}

	encoded, err := json.Marshal(attrs)
	if err != nil {
		return erx.Transformation(rec.Entity, rec.ID, "record attributes cannot be encoded").WithUnderlyingErrors(err)
	}

	if _, err = w.tx.ExecContext(ctx, `INSERT INTO records (entity, id, attrs) VALUES (?, ?, ?)`,
		rec.Entity, rec.ID, string(encoded)); err != nil {
		return erx.IO(err, w.path, "failed to write %s %s", rec.Entity, rec.ID)
	}

	return nil
}

// Link inserts a relationship edge.
func (w *Writer) Link(ctx context.Context, l Link) error {
	if _, err := w.tx.ExecContext(ctx,
		`INSERT INTO links (entity, id, name, target_entity, target_id, position) VALUES (?, ?, ?, ?, ?, ?)`,
		l.Entity, l.ID, l.Name, l.TargetEntity, l.TargetID, l.Position); err != nil {
		return erx.IO(err, w.path, "failed to write link %s.%s of %s", l.Entity, l.Name, l.ID)
	}
	return nil
}

// Exists reports whether a record has already been written, including uncommitted writes of this transaction.
func (w *Writer) Exists(ctx context.Context, entity string, id string) (bool, error) {
	var n int
	err := w.tx.QueryRowContext(ctx, `SELECT 1 FROM records WHERE entity = ? AND id = ?`, entity, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, erx.IO(err, w.path, "failed to look up %s %s", entity, id)
	}
	return true, nil
}

// FirstUnlinked returns the id of the first record of entity that has no edge named name, if any.
func (w *Writer) FirstUnlinked(ctx context.Context, entity string, name string) (string, bool, error) {
	var id string
	err := w.tx.QueryRowContext(ctx,
		`SELECT r.id FROM records r WHERE r.entity = ? AND NOT EXISTS (
			SELECT 1 FROM links l WHERE l.entity = r.entity AND l.id = r.id AND l.name = ?
		) ORDER BY r.id LIMIT 1`, entity, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, erx.IO(err, w.path, "failed to check %s.%s links", entity, name)
	}
	return id, true, nil
}

// Commit makes the writes durable.
func (w *Writer) Commit() error {
	if err := w.tx.Commit(); err != nil {
		return erx.IO(err, w.path, "failed to commit transaction")
	}
	return nil
}

// Rollback discards the writes. Rolling back a committed transaction is a no-op.
func (w *Writer) Rollback() error {
	if err := w.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return erx.IO(err, w.path, "failed to roll back transaction")
	}
	return nil
}
