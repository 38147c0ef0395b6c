// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/fsx"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
)

// progressResolution is the number of progress reports a step emits at most.
const progressResolution = 200

// StepMigrator executes one mapping: it streams every record of the source store through the mapping into a
// new destination store.
type StepMigrator struct {
	fs        fsx.Manager
	storeType store.Type
	logger    *zerolog.Logger
}

func NewStepMigrator(fs fsx.Manager, storeType store.Type, logger *zerolog.Logger) *StepMigrator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &StepMigrator{fs: fs, storeType: storeType, logger: logger}
}

// Run migrates the store behind source into a new store at destPath using a completed mapping. onProgress
// receives the fraction of records and links processed, non-decreasing, ending at 1.0.
//
// Records are written first and relationship edges second, so every edge can be checked against the records
// already written. Record ids are preserved, which keeps a record referenced from several places a single
// record. On any failure the destination is removed and the source is left as it was.
func (s *StepMigrator) Run(ctx context.Context, spec *MappingSpec, source Handle, destPath string,
	onProgress func(float64)) (Handle, error) {

	if spec == nil || !spec.Completed() {
		return Handle{}, errorx.IllegalState.New("mapping must be completed before it can run")
	}

	if onProgress == nil {
		onProgress = func(float64) {}
	}

	if err := ctx.Err(); err != nil {
		return Handle{}, cancelled(err)
	}

	src, err := store.Open(ctx, source.Path, source.Type, true)
	if err != nil {
		return Handle{}, err
	}
	defer src.Close()

	total, err := s.countWork(ctx, spec, src)
	if err != nil {
		return Handle{}, err
	}

	dst, err := store.Create(ctx, destPath, s.storeType, spec.DestinationDescriptor())
	if err != nil {
		return Handle{}, err
	}

	w, err := dst.Begin(ctx)
	if err != nil {
		s.discard(dst, destPath)
		return Handle{}, err
	}

	run := &stepRun{
		spec:       spec,
		src:        src,
		w:          w,
		total:      total,
		every:      max(total/progressResolution, 1),
		onProgress: onProgress,
	}

	if err = run.execute(ctx); err != nil {
		_ = w.Rollback()
		s.discard(dst, destPath)
		if ctx.Err() != nil && !errorx.IsOfType(err, erx.Cancelled) {
			return Handle{}, cancelled(ctx.Err())
		}
		return Handle{}, err
	}

	if err = w.Commit(); err != nil {
		s.discard(dst, destPath)
		return Handle{}, err
	}

	if err = dst.Close(); err != nil {
		_ = s.fs.Remove(destPath)
		return Handle{}, err
	}

	onProgress(1)

	s.logger.Debug().
		Str("from", string(spec.Source)).
		Str("to", string(spec.Destination)).
		Int64("records", run.records).
		Int64("links", run.links).
		Int64("filtered", run.filtered).
		Str("path", destPath).
		Msg("Migration step completed")

	return Handle{Path: destPath, Type: s.storeType, Version: spec.Destination}, nil
}

func (s *StepMigrator) countWork(ctx context.Context, spec *MappingSpec, src *store.Store) (int64, error) {
	var total int64
	for _, em := range spec.Entities {
		n, err := src.CountEntity(ctx, em.Source)
		if err != nil {
			return 0, err
		}
		total += n

		if len(em.Relationships) == 0 {
			continue
		}

		n, err = src.CountEntityLinks(ctx, em.Source)
		if err != nil {
			return 0, err
		}
		total += n
	}

	return total, nil
}

func (s *StepMigrator) discard(dst *store.Store, path string) {
	_ = dst.Close()
	for _, p := range []string{path, path + "-journal"} {
		if err := s.fs.Remove(p); err != nil {
			s.logger.Warn().Err(err).Str("path", p).Msg("Failed to remove partial migration output")
		}
	}
}

type stepRun struct {
	spec       *MappingSpec
	src        *store.Store
	w          *store.Writer
	total      int64
	done       int64
	every      int64
	onProgress func(float64)

	records  int64
	links    int64
	filtered int64
}

func (r *stepRun) execute(ctx context.Context) error {
	for i := range r.spec.Entities {
		if err := r.migrateRecords(ctx, &r.spec.Entities[i]); err != nil {
			return err
		}
	}

	for i := range r.spec.Entities {
		if err := r.migrateLinks(ctx, &r.spec.Entities[i]); err != nil {
			return err
		}
	}

	return r.checkRequiredRelationships(ctx)
}

func (r *stepRun) advance() {
	r.done++
	if r.total > 0 && (r.done%r.every == 0 || r.done >= r.total) {
		r.onProgress(min(float64(r.done)/float64(r.total), 1))
	}
}

func (r *stepRun) migrateRecords(ctx context.Context, em *EntityMapping) error {
	srcEntity, _ := r.spec.SourceDescriptor().Entity(em.Source)
	needsEnv := em.filter != nil
	for _, am := range em.Attributes {
		needsEnv = needsEnv || am.rule == ruleExpression
	}

	return r.src.EachRecord(ctx, em.Source, func(rec store.Record) error {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		defer r.advance()

		var env map[string]interface{}
		if needsEnv {
			env = recordEnv(srcEntity, rec)
		}

		if em.filter != nil {
			keep, err := expr.Run(em.filter, env)
			if err != nil {
				return erx.Transformation(em.Name, rec.ID, "filter of %s failed for record %s", em.Name, rec.ID).
					WithUnderlyingErrors(err)
			}
			if b, _ := keep.(bool); !b {
				r.filtered++
				return nil
			}
		}

		attrs := make(map[string]interface{}, len(em.Attributes))
		for i := range em.Attributes {
			am := &em.Attributes[i]
			v, err := attributeValue(em, am, rec, env)
			if err != nil {
				return err
			}
			if v != nil {
				attrs[am.Name] = v
			}
		}

		r.records++
		return r.w.PutRecord(ctx, store.Record{Entity: em.Name, ID: rec.ID, Attrs: attrs})
	})
}

func attributeValue(em *EntityMapping, am *AttributeMapping, rec store.Record,
	env map[string]interface{}) (interface{}, error) {

	var v interface{}
	switch am.rule {
	case ruleEmpty:
		return nil, nil
	case ruleDefault:
		return am.Default, nil
	case ruleCopy:
		v = rec.Attrs[am.Source]
	case ruleExpression:
		out, err := expr.Run(am.program, env)
		if err != nil {
			return nil, erx.Transformation(em.Name, rec.ID, "expression for %s.%s failed on record %s",
				em.Name, am.Name, rec.ID).
				WithProperty(erx.PropertyAttribute, am.Name).
				WithUnderlyingErrors(err)
		}
		v = out
	}

	if v == nil {
		v = am.Default
	}

	if v == nil {
		if am.attr.Optional {
			return nil, nil
		}
		return nil, erx.Transformation(em.Name, rec.ID, "required attribute %s.%s has no value in record %s",
			em.Name, am.Name, rec.ID).
			WithProperty(erx.PropertyAttribute, am.Name)
	}

	coerced, err := schema.Coerce(am.attr.Type, v)
	if err != nil {
		return nil, erx.Transformation(em.Name, rec.ID, "value of %s.%s in record %s is not a valid %s",
			em.Name, am.Name, rec.ID, am.attr.Type).
			WithProperty(erx.PropertyAttribute, am.Name).
			WithUnderlyingErrors(err)
	}

	return coerced, nil
}

// recordEnv exposes every attribute of the source entity by name, missing ones as nil, and the record id as
// "id" unless an attribute already uses that name.
func recordEnv(entity *schema.Entity, rec store.Record) map[string]interface{} {
	env := make(map[string]interface{}, len(rec.Attrs)+1)
	if entity != nil {
		for _, a := range entity.Attributes {
			env[a.Name] = nil
		}
	}
	for k, v := range rec.Attrs {
		env[k] = v
	}
	if _, taken := env["id"]; !taken {
		env["id"] = rec.ID
	}
	return env
}

type cardinality struct {
	id string
	n  int
}

func (r *stepRun) migrateLinks(ctx context.Context, em *EntityMapping) error {
	if len(em.Relationships) == 0 {
		return nil
	}

	bySource := map[string][]*RelationshipMapping{}
	for i := range em.Relationships {
		rm := &em.Relationships[i]
		bySource[rm.Source] = append(bySource[rm.Source], rm)
	}
	seen := map[string]*cardinality{}

	return r.src.EachLink(ctx, em.Source, func(l store.Link) error {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		defer r.advance()

		targets := bySource[l.Name]
		if len(targets) == 0 {
			return nil
		}

		// edges of filtered records go with them
		migrated, err := r.w.Exists(ctx, em.Name, l.ID)
		if err != nil || !migrated {
			return err
		}

		for _, rm := range targets {
			c := seen[rm.Name]
			if c == nil || c.id != l.ID {
				c = &cardinality{id: l.ID}
				seen[rm.Name] = c
			}
			c.n++

			if !rm.rel.ToMany && c.n > 1 {
				return erx.Transformation(em.Name, l.ID, "to-one relationship %s.%s of record %s has several targets",
					em.Name, rm.Name, l.ID).
					WithProperty(erx.PropertyRelationship, rm.Name)
			}

			ok, err := r.w.Exists(ctx, rm.rel.Destination, l.TargetID)
			if err != nil {
				return err
			}
			if !ok {
				return erx.Transformation(em.Name, l.ID, "relationship %s.%s of record %s points at missing %s %s",
					em.Name, rm.Name, l.ID, rm.rel.Destination, l.TargetID).
					WithProperty(erx.PropertyRelationship, rm.Name)
			}

			if err = r.w.Link(ctx, store.Link{
				Entity:       em.Name,
				ID:           l.ID,
				Name:         rm.Name,
				TargetEntity: rm.rel.Destination,
				TargetID:     l.TargetID,
				Position:     c.n - 1,
			}); err != nil {
				return err
			}
			r.links++
		}

		return nil
	})
}

func (r *stepRun) checkRequiredRelationships(ctx context.Context) error {
	for _, e := range r.spec.DestinationDescriptor().Entities {
		for _, rel := range e.Relationships {
			if rel.Optional || rel.ToMany {
				continue
			}

			id, found, err := r.w.FirstUnlinked(ctx, e.Name, rel.Name)
			if err != nil {
				return err
			}
			if found {
				return erx.Transformation(e.Name, id, "required relationship %s.%s of record %s has no target",
					e.Name, rel.Name, id).
					WithProperty(erx.PropertyRelationship, rel.Name)
			}
		}
	}

	return nil
}

func cancelled(cause error) error {
	return erx.Cancelled.Wrap(cause, "migration cancelled")
}
