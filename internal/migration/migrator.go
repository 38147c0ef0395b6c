// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/automa-saga/automa"
	"github.com/google/uuid"
	"github.com/hashgraph/solo-storemig/internal/notify"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/fsx"
	"github.com/hashgraph/solo-storemig/pkg/sanity"
	"github.com/hashgraph/solo-storemig/pkg/schema"
	"github.com/hashgraph/solo-storemig/pkg/store"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Migrator.
type State int

const (
	Idle State = iota
	ResolvingPath
	Migrating
	Swapping
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ResolvingPath:
		return "resolving-path"
	case Migrating:
		return "migrating"
	case Swapping:
		return "swapping"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Committed || s == Failed
}

// Result describes a finished migration.
type Result struct {
	Location string
	From     schema.Version
	To       schema.Version
	// Path is the chain of versions the store went through. It holds a single version when nothing had to be done.
	Path  Path
	Steps int
	// Err is only set on results delivered by MigrateAsync.
	Err error
}

type Option func(*Migrator)

func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Migrator) {
		m.observer = o
	}
}

// WithTempDir places the per-run work directory below dir instead of next to the store.
func WithTempDir(dir string) Option {
	return func(m *Migrator) {
		m.tempDir = dir
	}
}

func WithSwapper(s Swapper) Option {
	return func(m *Migrator) {
		m.swapper = s
	}
}

func WithStoreType(t store.Type) Option {
	return func(m *Migrator) {
		m.storeType = t
	}
}

func WithFileManager(fs fsx.Manager) Option {
	return func(m *Migrator) {
		m.fs = fs
	}
}

// Migrator upgrades one store to a final version. It is single use: a second call to Migrate fails.
type Migrator struct {
	catalog   *Catalog
	paths     *PathResolver
	fs        fsx.Manager
	swapper   Swapper
	steps     *StepMigrator
	observer  Observer
	logger    *zerolog.Logger
	tempDir   string
	storeType store.Type

	mu      sync.Mutex
	state   State
	step    int
	started bool
	err     error
}

func NewMigrator(catalog *Catalog, opts ...Option) (*Migrator, error) {
	if catalog == nil {
		return nil, errorx.IllegalArgument.New("catalog is required")
	}

	nop := zerolog.Nop()
	m := &Migrator{
		catalog:   catalog,
		paths:     NewPathResolver(catalog),
		logger:    &nop,
		storeType: store.SQLite,
		state:     Idle,
		step:      -1,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.fs == nil {
		fs, err := fsx.NewManager()
		if err != nil {
			return nil, err
		}
		m.fs = fs
	}

	if m.swapper == nil {
		m.swapper = NewFileSwapper(m.fs, m.logger)
	}

	m.steps = NewStepMigrator(m.fs, m.storeType, m.logger)

	return m, nil
}

// State returns the current state and, while Migrating, the zero based step index.
func (m *Migrator) State() (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.step
}

// Err returns the error the migrator failed with, if any.
func (m *Migrator) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Migrate brings the store at location to version final. On success the store at location is at version final.
// On failure the store at location is unchanged, and no temporary store created by this run is left behind.
func (m *Migrator) Migrate(ctx context.Context, location string, final schema.Version) (*Result, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil, errorx.IllegalState.New("migrator has already been used")
	}
	m.started = true
	m.mu.Unlock()

	result, err := m.run(ctx, location, final)
	if err != nil {
		m.fail(err)
		m.logger.Error().Err(err).Str("store", location).Msg("Store migration failed")
		return result, err
	}

	return result, nil
}

// MigrateAsync runs Migrate in its own goroutine and delivers the result on the returned channel.
func (m *Migrator) MigrateAsync(ctx context.Context, location string, final schema.Version) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		res, err := m.Migrate(ctx, location, final)
		if res == nil {
			res = &Result{Location: location, To: final}
		}
		res.Err = err
		ch <- *res
	}()
	return ch
}

func (m *Migrator) run(ctx context.Context, location string, final schema.Version) (*Result, error) {
	agg := NewProgressAggregator(m.observer)
	result := &Result{Location: location, To: final}

	m.transition(ResolvingPath, -1)
	if err := ctx.Err(); err != nil {
		return result, cancelled(err)
	}

	if _, err := m.catalog.Descriptor(final); err != nil {
		return result, err
	}

	source := Handle{Path: location, Type: m.storeType}
	current, err := m.catalog.CurrentVersion(ctx, source)
	if err != nil {
		return result, err
	}
	source.Version = current
	result.From = current

	if current == final {
		result.Path = Path{current}
		agg.Complete()
		m.transition(Committed, -1)
		m.logger.Info().Str("store", location).Str("version", string(current)).Msg("Store is already up to date")
		return result, nil
	}

	path, err := m.paths.Resolve(current, final)
	if err != nil {
		return result, err
	}
	result.Path = path
	result.Steps = path.Steps()

	m.logger.Info().
		Str("store", location).
		Str("from", string(current)).
		Str("to", string(final)).
		Int("steps", path.Steps()).
		Msg("Migrating store")

	workDir, err := m.createWorkDir(location)
	if err != nil {
		return result, err
	}
	defer m.removeWorkDir(workDir)

	run := &workflowRun{current: source}
	wf, err := m.workflow(location, path, workDir, run, agg)
	if err != nil {
		return result, err
	}

	report := wf.Execute(ctx)
	if run.failure != nil {
		return result, run.failure
	}
	if report.HasError() {
		return result, errorx.IllegalState.Wrap(report.Error, "migration workflow of %s failed", location)
	}

	agg.Complete()
	m.transition(Committed, -1)

	m.logger.Info().
		Str("store", location).
		Str("from", string(current)).
		Str("to", string(final)).
		Msg("Store migrated")

	return result, nil
}

// workflowRun carries the state shared by the steps of one workflow.
type workflowRun struct {
	current Handle
	failure error
}

func (r *workflowRun) fail(stp automa.Step, err error) *automa.Report {
	r.failure = err
	return automa.FailureReport(stp, automa.WithError(err))
}

func (m *Migrator) workflow(location string, path Path, workDir string, run *workflowRun,
	agg *ProgressAggregator) (automa.Step, error) {

	n := path.Steps()
	builders := make([]automa.Builder, 0, n+1)
	for i := 0; i < n; i++ {
		builders = append(builders, m.migrateStep(i, n, path[i], path[i+1], workDir, run, agg))
	}
	builders = append(builders, m.swapStep(location, path, run))

	wf, err := automa.NewWorkflowBuilder().
		WithId("migrate-"+filepath.Base(location)).
		Steps(builders...).
		WithExecutionMode(automa.RollbackOnError).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Migrating %s from %s to %s", location, path[0], path[n])
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Migration of %s failed", location)
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Migration of %s completed", location)
		}).
		Build()
	if err != nil {
		return nil, errorx.IllegalState.Wrap(err, "failed to build migration workflow")
	}

	return wf, nil
}

func (m *Migrator) migrateStep(i int, n int, from schema.Version, to schema.Version, workDir string,
	run *workflowRun, agg *ProgressAggregator) automa.Builder {

	dest := filepath.Join(workDir, fmt.Sprintf("%02d-%s.store", i+1, fileSafe(string(to))))
	createdByThisStep := false

	return automa.NewStepBuilder().WithId(fmt.Sprintf("step-%d-%s-to-%s", i+1, from, to)).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			m.transition(Migrating, i)

			spec, err := m.catalog.Mappings().MappingFor(from, to)
			if err != nil {
				return run.fail(stp, erx.WithStep(err, i+1, string(from), string(to)))
			}

			out, err := m.steps.Run(ctx, spec, run.current, dest, func(f float64) {
				agg.Update(i, n, f)
			})
			if err != nil {
				return run.fail(stp, erx.WithStep(err, i+1, string(from), string(to)))
			}
			createdByThisStep = true

			// the previous temporary store is superseded, the original is never touched
			if i > 0 {
				m.discard(run.current.Path)
			}
			run.current = out

			mapping := "inferred"
			if spec.Explicit {
				mapping = "explicit"
			}

			return automa.SuccessReport(stp, automa.WithMetadata(map[string]string{
				"from":    string(from),
				"to":      string(to),
				"mapping": mapping,
			}))
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if !createdByThisStep {
				return automa.SkippedReport(stp, automa.WithDetail("no temporary store was created by this step"))
			}

			m.discard(dest)
			return automa.SuccessReport(stp)
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Migrating store from %s to %s", from, to)
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Migration from %s to %s failed", from, to)
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Migration from %s to %s completed", from, to)
		})
}

func (m *Migrator) swapStep(location string, path Path, run *workflowRun) automa.Builder {
	from, to := path[0], path[len(path)-1]

	return automa.NewStepBuilder().WithId("swap-store").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			m.transition(Swapping, -1)

			if err := m.swapper.Commit(ctx, run.current, location); err != nil {
				return run.fail(stp, erx.WithVersions(err, string(from), string(to)))
			}

			return automa.SuccessReport(stp, automa.WithMetadata(map[string]string{
				"store":   location,
				"version": string(to),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Replacing %s with the migrated store", location)
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to replace %s", location)
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Replaced %s with the migrated store", location)
		})
}

func (m *Migrator) createWorkDir(location string) (string, error) {
	base := m.tempDir
	if base == "" {
		base = filepath.Dir(location)
	}

	dir := filepath.Join(base, workDirPrefix(location)+uuid.NewString())
	if err := m.fs.CreateDirectory(dir, true); err != nil {
		return "", erx.IO(err, dir, "failed to create migration work directory")
	}

	return dir, nil
}

func (m *Migrator) removeWorkDir(dir string) {
	if err := m.fs.RemoveAll(dir); err != nil {
		m.logger.Warn().Err(err).Str("path", dir).Msg("Failed to remove migration work directory")
	}
}

func (m *Migrator) discard(path string) {
	for _, p := range []string{path, path + "-journal"} {
		if err := m.fs.Remove(p); err != nil {
			m.logger.Warn().Err(err).Str("path", p).Msg("Failed to remove temporary store")
		}
	}
}

func (m *Migrator) transition(state State, step int) {
	m.mu.Lock()
	m.state = state
	m.step = step
	m.mu.Unlock()

	m.logger.Debug().Str("state", state.String()).Int("step", step).Msg("Migrator state changed")

	if so, ok := m.observer.(StateObserver); ok {
		so.MigrationState(state, step)
	}
}

func (m *Migrator) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()

	m.transition(Failed, -1)
}

// fileSafe keeps a version usable as part of a file name.
func fileSafe(v string) string {
	name, err := sanity.Filename(v)
	if err != nil {
		return "version"
	}
	return name
}
