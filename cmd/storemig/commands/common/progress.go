// SPDX-License-Identifier: Apache-2.0

package common

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/automa-saga/logx"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/hashgraph/solo-storemig/internal/migration"
	"github.com/mattn/go-isatty"
)

// logStep is the progress increment logged when the output is not a terminal.
const logStep = 0.1

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ProgressPrinter renders migration progress. On a terminal it redraws a progress bar in place, otherwise it logs
// every tenth of the work.
type ProgressPrinter struct {
	mu         sync.Mutex
	out        io.Writer
	bar        progress.Model
	live       bool
	label      string
	lastLogged float64
}

func NewProgressPrinter(out io.Writer, live bool) *ProgressPrinter {
	return &ProgressPrinter{
		out:        out,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		live:       live,
		label:      migration.Idle.String(),
		lastLogged: -1,
	}
}

func (p *ProgressPrinter) MigrationState(state migration.State, step int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state == migration.Migrating {
		p.label = fmt.Sprintf("step %d", step+1)
	} else {
		p.label = state.String()
	}

	if !p.live {
		logx.As().Info().Str("state", state.String()).Int("step", step+1).Msg("Migration state changed")
	}
}

func (p *ProgressPrinter) MigrationProgress(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live {
		_, _ = fmt.Fprintf(p.out, "\r%s %-16s", p.bar.ViewAs(fraction), p.label)
		if fraction >= 1 {
			_, _ = fmt.Fprintln(p.out)
		}
		return
	}

	if fraction >= 1 || fraction-p.lastLogged >= logStep {
		p.lastLogged = fraction
		logx.As().Info().Str("progress", fmt.Sprintf("%.0f%%", fraction*100)).Msg("Migrating store")
	}
}
