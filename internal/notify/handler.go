// SPDX-License-Identifier: Apache-2.0

// Package notify routes migration step events to a pluggable handler. The default handler logs through logx.
package notify

import (
	"context"
	"sort"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/rs/zerolog"
)

// Default notification handler that logs through logx
// Caller may override using SetDefault
var handler = &Handler{
	StepStart: func(ctx context.Context, stp automa.Step, msg string, args ...interface{}) {
		logx.As().Info().
			Str("step_id", stp.Id()).
			Msgf(msg, args...)
	},
	StepCompletion: func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{}) {
		l := logx.As().Info().
			Str("step_id", stp.Id()).
			Str("status", report.Status.String())
		withMetadata(l, report).Msgf(msg, args...)
	},
	StepFailure: func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{}) {
		// the first failing child report carries the root cause
		firstErrReport := report
		for _, stepReport := range report.StepReports {
			if stepReport.HasError() {
				firstErrReport = stepReport
				break
			}
		}

		l := logx.As().Error().Err(report.Error).
			Str("step_id", stp.Id()).
			Str("status", report.Status.String())
		if firstErrReport.Id != report.Id && firstErrReport.Error != nil {
			l.
				Str("first_error", firstErrReport.Error.Error()).
				Str("first_error_step_id", firstErrReport.Id)
		}

		l.Msgf(msg, args...)
	},
}

// Handler defines callbacks for migration step events.
// A caller may install a custom handler to feed a UI, a channel or a different logging mechanism.
type Handler struct {
	StepStart      func(ctx context.Context, stp automa.Step, msg string, args ...interface{})
	StepCompletion func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{})
	StepFailure    func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{})
}

// SetDefault sets the default callback handler for step events.
// It only updates non-nil callbacks to preserve existing defaults.
func SetDefault(h *Handler) {
	if h.StepStart != nil {
		handler.StepStart = h.StepStart
	}

	if h.StepCompletion != nil {
		handler.StepCompletion = h.StepCompletion
	}

	if h.StepFailure != nil {
		handler.StepFailure = h.StepFailure
	}
}

// As returns the current notification handler
func As() *Handler {
	return handler
}

func withMetadata(l *zerolog.Event, report *automa.Report) *zerolog.Event {
	if report == nil || len(report.Metadata) == 0 {
		return l
	}

	keys := make([]string, 0, len(report.Metadata))
	for k := range report.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		l = l.Str(k, report.Metadata[k])
	}

	return l
}
