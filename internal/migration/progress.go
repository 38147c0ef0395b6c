// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"sync"
)

// Observer receives the overall completion of a migration as a fraction in [0, 1]. Calls are synchronous and
// the reported values never decrease. 1.0 is only reported once the migrated store has been committed.
type Observer interface {
	MigrationProgress(fraction float64)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(fraction float64)

func (f ObserverFunc) MigrationProgress(fraction float64) {
	f(fraction)
}

// StateObserver is optionally implemented by an Observer that also wants to follow state transitions.
// step is the zero based step index while Migrating and -1 otherwise.
type StateObserver interface {
	MigrationState(state State, step int)
}

// ProgressAggregator folds per-step progress into overall progress:
//
//	overall = (stepIndex + stepFraction) / stepCount
//
// Values that would reach 1.0 are held back until Complete is called.
type ProgressAggregator struct {
	mu       sync.Mutex
	observer Observer
	last     float64
	started  bool
	done     bool
}

func NewProgressAggregator(observer Observer) *ProgressAggregator {
	return &ProgressAggregator{observer: observer}
}

// Update records the progress of one step and returns the overall fraction forwarded so far.
func (a *ProgressAggregator) Update(stepIndex int, stepCount int, stepFraction float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done || stepCount <= 0 || stepIndex < 0 {
		return a.last
	}

	stepFraction = clamp(stepFraction)
	overall := (float64(stepIndex) + stepFraction) / float64(stepCount)
	if overall >= 1 {
		return a.last
	}

	if overall > a.last || !a.started {
		if overall > a.last {
			a.last = overall
		}
		a.started = true
		a.notify(a.last)
	}

	return a.last
}

// Complete reports 1.0. Only the first call has an effect.
func (a *ProgressAggregator) Complete() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return
	}

	a.done = true
	a.started = true
	a.last = 1
	a.notify(1)
}

// Last returns the most recent overall fraction.
func (a *ProgressAggregator) Last() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.last
}

func (a *ProgressAggregator) notify(fraction float64) {
	if a.observer != nil {
		a.observer.MigrationProgress(fraction)
	}
}

func clamp(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
